package encoding

import (
	"fmt"
	"strconv"
	"strings"
)

// #region layout

// Token layout of an encoded position: 64 board squares in rank-major order
// (a8..h1), 13 game-state metadata slots, and one trailing summary token
// whose representation the classifier reads out.
const (
	BoardTokens = 64
	MetaTokens  = 13
	SeqLen      = 78
	CLSIndex    = 77

	SideToMoveIndex = 64
	CastlingIndex   = 65 // 4 slots: K, Q, k, q
	EnPassantIndex  = 69 // 2 slots: file, rank
	HalfMoveIndex   = 71 // 3 digit slots
	FullMoveIndex   = 74 // 3 digit slots
)

// metaNames labels the 13 metadata slots for presentation.
var metaNames = [MetaTokens]string{
	"side to move",
	"castle K", "castle Q", "castle k", "castle q",
	"ep file", "ep rank",
	"halfmove 100s", "halfmove 10s", "halfmove 1s",
	"fullmove 100s", "fullmove 10s", "fullmove 1s",
}

// MetaName returns the display name of metadata slot i (0..12).
func MetaName(i int) string {
	return metaNames[i]
}

// SquareName returns the algebraic name of board token i: token 0 is a8,
// token 7 is h8, token 63 is h1.
func SquareName(i int) string {
	file := byte('a' + i%8)
	rank := byte('0' + 8 - i/8)
	return string([]byte{file, rank})
}

// #endregion layout

// #region vocabulary

// symbols is the model's character vocabulary in id order. Ids 32..35 are
// the special tokens appended by the demo tokenizer.
var symbols = []string{
	"-", ".", "0", "1", "2", "3", "4", "5", "6", "7", "8", "9",
	"B", "K", "N", "P", "Q", "R",
	"a", "b", "c", "d", "e", "f", "g", "h",
	"k", "n", "p", "q", "r", "w",
}

const (
	// EmptySquareID is the id of ".", the empty-square symbol.
	EmptySquareID int64 = 1
	// DashID is the id of "-", used for absent castling rights and en passant.
	DashID int64 = 0

	CLSID int64 = 32
	SEPID int64 = 33
	PADID int64 = 34
	UNKID int64 = 35
)

var symbolIDs = func() map[byte]int64 {
	m := make(map[byte]int64, len(symbols))
	for i, s := range symbols {
		m[s[0]] = int64(i)
	}
	return m
}()

// #endregion vocabulary

// #region length-error

// LengthError reports a position encoding that is not exactly SeqLen tokens.
// It is a caller bug: analyses fail fast on it before any model call.
type LengthError struct {
	Got int
}

func (e *LengthError) Error() string {
	return fmt.Sprintf("position encoding has %d tokens, want exactly %d", e.Got, SeqLen)
}

// ValidateLength checks that tokens is exactly SeqLen long.
func ValidateLength(tokens []int64) error {
	if len(tokens) != SeqLen {
		return &LengthError{Got: len(tokens)}
	}
	return nil
}

// #endregion length-error

// #region serialize

// Serialize expands a FEN string into the fixed 77-character position form:
// 64 board squares ("." for empty), side to move, castling rights padded to
// 4, en passant padded to 2, half-move clock and full-move counter each
// zero-padded to 3 digits.
func Serialize(fen string) (string, error) {
	fields := strings.Fields(strings.TrimSpace(fen))
	if len(fields) < 4 {
		return "", fmt.Errorf("fen %q: want at least 4 fields, got %d", fen, len(fields))
	}

	var b strings.Builder
	b.Grow(SeqLen - 1)

	board, err := expandBoard(fields[0])
	if err != nil {
		return "", fmt.Errorf("fen %q: %w", fen, err)
	}
	b.WriteString(board)

	stm := fields[1]
	if stm != "w" && stm != "b" {
		return "", fmt.Errorf("fen %q: side to move %q", fen, stm)
	}
	b.WriteString(stm)

	castling, err := expandCastling(fields[2])
	if err != nil {
		return "", fmt.Errorf("fen %q: %w", fen, err)
	}
	b.WriteString(castling)

	ep, err := expandEnPassant(fields[3])
	if err != nil {
		return "", fmt.Errorf("fen %q: %w", fen, err)
	}
	b.WriteString(ep)

	halfMove, fullMove := "0", "1"
	if len(fields) > 4 {
		halfMove = fields[4]
	}
	if len(fields) > 5 {
		fullMove = fields[5]
	}
	hm, err := expandClock(halfMove)
	if err != nil {
		return "", fmt.Errorf("fen %q: half-move clock: %w", fen, err)
	}
	b.WriteString(hm)
	fm, err := expandClock(fullMove)
	if err != nil {
		return "", fmt.Errorf("fen %q: full-move counter: %w", fen, err)
	}
	b.WriteString(fm)

	return b.String(), nil
}

func expandBoard(field string) (string, error) {
	ranks := strings.Split(field, "/")
	if len(ranks) != 8 {
		return "", fmt.Errorf("board has %d ranks, want 8", len(ranks))
	}
	var b strings.Builder
	b.Grow(BoardTokens)
	for ri, rank := range ranks {
		n := 0
		for _, c := range rank {
			switch {
			case c >= '1' && c <= '8':
				for k := 0; k < int(c-'0'); k++ {
					b.WriteByte('.')
				}
				n += int(c - '0')
			case strings.ContainsRune("prnbqkPRNBQK", c):
				b.WriteRune(c)
				n++
			default:
				return "", fmt.Errorf("rank %d: bad square %q", 8-ri, c)
			}
		}
		if n != 8 {
			return "", fmt.Errorf("rank %d: has %d squares, want 8", 8-ri, n)
		}
	}
	return b.String(), nil
}

func expandCastling(field string) (string, error) {
	if field != "-" {
		for _, c := range field {
			if !strings.ContainsRune("KQkq", c) {
				return "", fmt.Errorf("castling rights %q", field)
			}
		}
	}
	out := []byte{'-', '-', '-', '-'}
	for i, right := range []string{"K", "Q", "k", "q"} {
		if strings.Contains(field, right) {
			out[i] = right[0]
		}
	}
	return string(out), nil
}

func expandEnPassant(field string) (string, error) {
	if field == "-" {
		return "--", nil
	}
	if len(field) != 2 || field[0] < 'a' || field[0] > 'h' || (field[1] != '3' && field[1] != '6') {
		return "", fmt.Errorf("en passant square %q", field)
	}
	return field, nil
}

func expandClock(field string) (string, error) {
	n, err := strconv.Atoi(field)
	if err != nil || n < 0 || n > 999 {
		return "", fmt.Errorf("clock value %q", field)
	}
	return fmt.Sprintf("%03d", n), nil
}

// #endregion serialize

// #region encode

// Encode tokenizes a FEN string into the fixed 78-id sequence the model
// consumes: the 77 position symbols followed by the summary token.
func Encode(fen string) ([]int64, error) {
	pos, err := Serialize(fen)
	if err != nil {
		return nil, err
	}
	tokens := make([]int64, 0, SeqLen)
	for i := 0; i < len(pos); i++ {
		id, ok := symbolIDs[pos[i]]
		if !ok {
			return nil, fmt.Errorf("symbol %q at position %d not in vocabulary", pos[i], i)
		}
		tokens = append(tokens, id)
	}
	tokens = append(tokens, CLSID)
	if err := ValidateLength(tokens); err != nil {
		return nil, err
	}
	return tokens, nil
}

// EncodeMasked is Encode with board square sq replaced by the empty-square
// symbol. Each board square is one token, so masking after encoding is
// equivalent to masking the position text.
func EncodeMasked(fen string, sq int) ([]int64, error) {
	if sq < 0 || sq >= BoardTokens {
		return nil, fmt.Errorf("mask square %d out of range [0,%d)", sq, BoardTokens)
	}
	tokens, err := Encode(fen)
	if err != nil {
		return nil, err
	}
	tokens[sq] = EmptySquareID
	return tokens, nil
}

// MaskSquare returns a copy of tokens with board square sq replaced by the
// empty-square id.
func MaskSquare(tokens []int64, sq int) []int64 {
	out := make([]int64, len(tokens))
	copy(out, tokens)
	out[sq] = EmptySquareID
	return out
}

// IsEmptySquare reports whether board square sq of an encoded position is
// already empty.
func IsEmptySquare(tokens []int64, sq int) bool {
	return tokens[sq] == EmptySquareID
}

// #endregion encode
