package parser

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/pkg/errors"
)

type TokenKind uint8

const (
	TokEOF TokenKind = iota
	TokKeyword
	TokIdent
	TokString
	TokNumber
	TokComma
	TokSemicolon
	TokStar
	TokLParen
	TokRParen
	TokDot
	TokCompare
	TokPlus
	TokMinus
	TokSlash
)

var tokenNames = map[TokenKind]string{
	TokEOF:       "end of input",
	TokKeyword:   "keyword",
	TokIdent:     "identifier",
	TokString:    "string",
	TokNumber:    "number",
	TokComma:     "','",
	TokSemicolon: "';'",
	TokStar:      "'*'",
	TokLParen:    "'('",
	TokRParen:    "')'",
	TokDot:       "'.'",
	TokCompare:   "comparison",
	TokPlus:      "'+'",
	TokMinus:     "'-'",
	TokSlash:     "'/'",
}

func (k TokenKind) String() string { return tokenNames[k] }

// Token is one lexeme. Keywords carry their upper-cased text; string tokens
// carry the unescaped value.
type Token struct {
	Kind TokenKind
	Text string
	Pos  int
}

func (t Token) String() string {
	switch t.Kind {
	case TokEOF:
		return "end of input"
	case TokString:
		return "'" + strings.ReplaceAll(t.Text, "'", "''") + "'"
	}
	return t.Text
}

func (t Token) Is(kw string) bool { return t.Kind == TokKeyword && t.Text == kw }

// keywords is the complete reserved word list. An identifier spelled like
// one of these is always the keyword.
var keywords = map[string]struct{}{}

func init() {
	for _, kw := range []string{
		"SELECT", "FROM", "WHERE", "AND", "OR", "NOT", "AS", "TOP", "PERCENT",
		"JOIN", "INNER", "CROSS", "LEFT", "RIGHT", "FULL", "OUTER", "ON",
		"SKIP", "LIMIT", "COUNT", "AVG", "SUM", "MIN", "MAX",
		"BETWEEN", "IN", "LIKE",
		"CHAR", "BYTE", "INT16", "INT32", "INT64", "SINGLE", "DOUBLE", "DECIMAL", "STRING", "BOOL",
	} {
		keywords[kw] = struct{}{}
	}
}

// IsKeyword reports whether word is reserved.
func IsKeyword(word string) bool {
	_, ok := keywords[strings.ToUpper(word)]
	return ok
}

// SyntaxError is a parse failure at a byte position of the query text.
type SyntaxError struct {
	Pos   int
	Token string
	Msg   string
}

func (e *SyntaxError) Error() string {
	if e.Token == "" {
		return fmt.Sprintf("syntax error at position %d: %s", e.Pos, e.Msg)
	}
	return fmt.Sprintf("syntax error at position %d near %s: %s", e.Pos, e.Token, e.Msg)
}

func syntaxErr(tok Token, format string, args ...any) error {
	return errors.WithStack(&SyntaxError{Pos: tok.Pos, Token: tok.String(), Msg: fmt.Sprintf(format, args...)})
}

// Lex splits a query into tokens. The result always ends with a TokEOF.
func Lex(query string) ([]Token, error) {
	var toks []Token
	i := 0
	for i < len(query) {
		r, size := utf8.DecodeRuneInString(query[i:])
		start := i

		switch {
		case unicode.IsSpace(r):
			i += size
			continue

		case r == '_' || unicode.IsLetter(r):
			for i < len(query) {
				r, size = utf8.DecodeRuneInString(query[i:])
				if r != '_' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
					break
				}
				i += size
			}
			word := query[start:i]
			if up := strings.ToUpper(word); IsKeyword(up) {
				toks = append(toks, Token{Kind: TokKeyword, Text: up, Pos: start})
			} else {
				toks = append(toks, Token{Kind: TokIdent, Text: word, Pos: start})
			}
			continue

		case r >= '0' && r <= '9':
			dot := false
			for i < len(query) {
				c := query[i]
				if c == '.' && !dot && i+1 < len(query) && isDigit(query[i+1]) {
					dot = true
					i++
					continue
				}
				if !isDigit(c) {
					break
				}
				i++
			}
			toks = append(toks, Token{Kind: TokNumber, Text: query[start:i], Pos: start})
			continue

		case r == '\'':
			var sb strings.Builder
			i++
			closed := false
			for i < len(query) {
				if query[i] == '\'' {
					if i+1 < len(query) && query[i+1] == '\'' {
						sb.WriteByte('\'')
						i += 2
						continue
					}
					i++
					closed = true
					break
				}
				sb.WriteByte(query[i])
				i++
			}
			if !closed {
				return nil, errors.WithStack(&SyntaxError{Pos: start, Msg: "unterminated string literal"})
			}
			toks = append(toks, Token{Kind: TokString, Text: sb.String(), Pos: start})
			continue
		}

		kind, n := punct(query[i:])
		if n == 0 {
			return nil, errors.WithStack(&SyntaxError{Pos: start, Token: string(r), Msg: fmt.Sprintf("unexpected character %q", r)})
		}
		text := query[i : i+n]
		if text == "!=" {
			text = "<>"
		}
		toks = append(toks, Token{Kind: kind, Text: text, Pos: start})
		i += n
	}
	return append(toks, Token{Kind: TokEOF, Pos: len(query)}), nil
}

func punct(s string) (TokenKind, int) {
	if len(s) >= 2 {
		switch s[:2] {
		case "<>", "<=", ">=", "!=":
			return TokCompare, 2
		}
	}
	switch s[0] {
	case ',':
		return TokComma, 1
	case ';':
		return TokSemicolon, 1
	case '*':
		return TokStar, 1
	case '(':
		return TokLParen, 1
	case ')':
		return TokRParen, 1
	case '.':
		return TokDot, 1
	case '=', '<', '>':
		return TokCompare, 1
	case '+':
		return TokPlus, 1
	case '-':
		return TokMinus, 1
	case '/':
		return TokSlash, 1
	}
	return 0, 0
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }
