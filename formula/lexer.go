package formula

import (
	"fmt"
	"unicode"
)

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokNot
	tokAnd
	tokOr
	tokLParen
	tokRParen
)

func (k tokenKind) String() string {
	switch k {
	case tokEOF:
		return "end of formula"
	case tokIdent:
		return "identifier"
	case tokNot:
		return "'!'"
	case tokAnd:
		return "'&'"
	case tokOr:
		return "'|'"
	case tokLParen:
		return "'('"
	case tokRParen:
		return "')'"
	}
	return "unknown"
}

type token struct {
	kind tokenKind
	text string
	pos  int
}

// SyntaxError reports a malformed formula and the byte offset where parsing failed
type SyntaxError struct {
	Formula string
	Pos     int
	Msg     string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("invalid formula %q at %d: %s", e.Formula, e.Pos, e.Msg)
}

// Is makes every syntax error match ErrEvaluation
func (e *SyntaxError) Is(target error) bool {
	return target == ErrEvaluation
}

func isIdentStart(r rune) bool {
	return r == '_' || (r < unicode.MaxASCII && unicode.IsLetter(r))
}

func isIdentPart(r rune) bool {
	return isIdentStart(r) || (r < unicode.MaxASCII && unicode.IsDigit(r))
}

func lex(text string) ([]token, error) {
	tokens := make([]token, 0)
	runes := []rune(text)
	for i := 0; i < len(runes); {
		r := runes[i]
		switch {
		case unicode.IsSpace(r):
			i++
		case r == '!':
			tokens = append(tokens, token{kind: tokNot, text: "!", pos: i})
			i++
		case r == '&':
			tokens = append(tokens, token{kind: tokAnd, text: "&", pos: i})
			i++
		case r == '|':
			tokens = append(tokens, token{kind: tokOr, text: "|", pos: i})
			i++
		case r == '(':
			tokens = append(tokens, token{kind: tokLParen, text: "(", pos: i})
			i++
		case r == ')':
			tokens = append(tokens, token{kind: tokRParen, text: ")", pos: i})
			i++
		case isIdentStart(r):
			start := i
			for i < len(runes) && isIdentPart(runes[i]) {
				i++
			}
			tokens = append(tokens, token{kind: tokIdent, text: string(runes[start:i]), pos: start})
		default:
			return nil, &SyntaxError{Formula: text, Pos: i, Msg: fmt.Sprintf("unexpected character %q", r)}
		}
	}
	tokens = append(tokens, token{kind: tokEOF, pos: len(runes)})
	return tokens, nil
}
