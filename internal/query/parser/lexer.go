// Package parser parses the SQL subset the partition planner accepts:
// SELECT, UPDATE and DELETE over a single table with a WHERE clause.
package parser

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// TokenType represents the type of a lexical token.
type TokenType int

const (
	TokenEOF TokenType = iota
	TokenError
	TokenIdent
	TokenNumber
	TokenString

	TokenSelect
	TokenUpdate
	TokenDelete
	TokenSet
	TokenFrom
	TokenWhere
	TokenOrderBy
	TokenLimit
	TokenAnd
	TokenOr
	TokenNot
	TokenIn
	TokenBetween
	TokenAs
	TokenAsc
	TokenDesc
	TokenNull
	TokenIs
	TokenLike
	TokenDistinct
	TokenBy
	TokenTrue
	TokenFalse

	TokenEq
	TokenNe
	TokenLt
	TokenGt
	TokenLe
	TokenGe
	TokenPlus
	TokenMinus
	TokenStar
	TokenSlash
	TokenComma
	TokenLParen
	TokenRParen
	TokenDot
	TokenSemicolon

	numTokenTypes
)

var tokenNames = [numTokenTypes]string{
	TokenEOF:    "EOF",
	TokenError:  "ERROR",
	TokenIdent:  "IDENT",
	TokenNumber: "NUMBER",
	TokenString: "STRING",

	TokenSelect:   "SELECT",
	TokenUpdate:   "UPDATE",
	TokenDelete:   "DELETE",
	TokenSet:      "SET",
	TokenFrom:     "FROM",
	TokenWhere:    "WHERE",
	TokenOrderBy:  "ORDER",
	TokenLimit:    "LIMIT",
	TokenAnd:      "AND",
	TokenOr:       "OR",
	TokenNot:      "NOT",
	TokenIn:       "IN",
	TokenBetween:  "BETWEEN",
	TokenAs:       "AS",
	TokenAsc:      "ASC",
	TokenDesc:     "DESC",
	TokenNull:     "NULL",
	TokenIs:       "IS",
	TokenLike:     "LIKE",
	TokenDistinct: "DISTINCT",
	TokenBy:       "BY",
	TokenTrue:     "TRUE",
	TokenFalse:    "FALSE",

	TokenEq:        "=",
	TokenNe:        "<>",
	TokenLt:        "<",
	TokenGt:        ">",
	TokenLe:        "<=",
	TokenGe:        ">=",
	TokenPlus:      "+",
	TokenMinus:     "-",
	TokenStar:      "*",
	TokenSlash:     "/",
	TokenComma:     ",",
	TokenLParen:    "(",
	TokenRParen:    ")",
	TokenDot:       ".",
	TokenSemicolon: ";",
}

// String returns the keyword or symbol a token type stands for.
func (t TokenType) String() string {
	if t >= 0 && t < numTokenTypes {
		return tokenNames[t]
	}
	return "UNKNOWN"
}

// keywords is built from tokenNames so a keyword and its display name
// cannot disagree.
var keywords = func() map[string]TokenType {
	m := make(map[string]TokenType, TokenFalse-TokenSelect+1)
	for t := TokenSelect; t <= TokenFalse; t++ {
		m[tokenNames[t]] = t
	}
	return m
}()

// operators lists the symbol tokens, two-character forms first so the scan
// is longest-match.
var operators = []struct {
	lit string
	typ TokenType
}{
	{"<=", TokenLe},
	{">=", TokenGe},
	{"<>", TokenNe},
	{"!=", TokenNe},
	{"=", TokenEq},
	{"<", TokenLt},
	{">", TokenGt},
	{"+", TokenPlus},
	{"-", TokenMinus},
	{"*", TokenStar},
	{"/", TokenSlash},
	{",", TokenComma},
	{"(", TokenLParen},
	{")", TokenRParen},
	{".", TokenDot},
	{";", TokenSemicolon},
}

// Token represents a lexical token. Pos is a byte offset into the input.
type Token struct {
	Type    TokenType
	Literal string
	Pos     int
}

func (t Token) String() string {
	return fmt.Sprintf("Token{%s, %q, %d}", t.Type, t.Literal, t.Pos)
}

// Lexer tokenizes SQL input. It skips whitespace and "--" line comments.
// Double-quoted identifiers are returned as TokenIdent without quotes.
type Lexer struct {
	input string
	pos   int
}

// NewLexer creates a new Lexer for the given input.
func NewLexer(input string) *Lexer {
	return &Lexer{input: input}
}

// NextToken returns the next token. After TokenEOF it keeps returning
// TokenEOF.
func (l *Lexer) NextToken() Token {
	l.skipIgnored()
	if l.pos >= len(l.input) {
		return Token{Type: TokenEOF, Pos: l.pos}
	}

	start := l.pos
	rest := l.input[l.pos:]
	r, width := utf8.DecodeRuneInString(rest)

	switch {
	case r == '\'':
		return l.scanString()
	case r == '"':
		return l.scanQuotedIdent()
	case isDigit(r):
		return l.scanNumber()
	case r == '_' || unicode.IsLetter(r):
		return l.scanWord()
	}

	for _, op := range operators {
		if strings.HasPrefix(rest, op.lit) {
			l.pos += len(op.lit)
			return Token{Type: op.typ, Literal: op.lit, Pos: start}
		}
	}

	l.pos += width
	return Token{Type: TokenError, Literal: string(r), Pos: start}
}

// Tokenize returns all tokens up to and including EOF or the first error.
func (l *Lexer) Tokenize() []Token {
	var tokens []Token
	for {
		tok := l.NextToken()
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF || tok.Type == TokenError {
			return tokens
		}
	}
}

func (l *Lexer) skipIgnored() {
	for l.pos < len(l.input) {
		switch c := l.input[l.pos]; {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			l.pos++
		case strings.HasPrefix(l.input[l.pos:], "--"):
			if nl := strings.IndexByte(l.input[l.pos:], '\n'); nl >= 0 {
				l.pos += nl + 1
			} else {
				l.pos = len(l.input)
			}
		default:
			return
		}
	}
}

func (l *Lexer) scanWord() Token {
	start := l.pos
	for l.pos < len(l.input) {
		r, width := utf8.DecodeRuneInString(l.input[l.pos:])
		if r != '_' && !unicode.IsLetter(r) && !isDigit(r) {
			break
		}
		l.pos += width
	}
	word := l.input[start:l.pos]
	if t, ok := keywords[strings.ToUpper(word)]; ok {
		return Token{Type: t, Literal: tokenNames[t], Pos: start}
	}
	return Token{Type: TokenIdent, Literal: word, Pos: start}
}

// scanNumber reads digits with an optional fraction and exponent.
func (l *Lexer) scanNumber() Token {
	start := l.pos
	l.skipDigits()
	if l.peek() == '.' {
		l.pos++
		l.skipDigits()
	}
	if c := l.peek(); c == 'e' || c == 'E' {
		save := l.pos
		l.pos++
		if c := l.peek(); c == '+' || c == '-' {
			l.pos++
		}
		if !isDigit(rune(l.peek())) {
			l.pos = save
		} else {
			l.skipDigits()
		}
	}
	return Token{Type: TokenNumber, Literal: l.input[start:l.pos], Pos: start}
}

// scanString reads a single-quoted literal. The literal keeps doubled
// quotes; the parser unescapes them.
func (l *Lexer) scanString() Token {
	start := l.pos
	end, ok := closingQuote(l.input, l.pos+1, '\'')
	if !ok {
		l.pos = len(l.input)
		return Token{Type: TokenError, Literal: "unterminated string", Pos: start}
	}
	l.pos = end + 1
	return Token{Type: TokenString, Literal: l.input[start+1 : end], Pos: start}
}

func (l *Lexer) scanQuotedIdent() Token {
	start := l.pos
	end, ok := closingQuote(l.input, l.pos+1, '"')
	if !ok || end == start+1 {
		l.pos = len(l.input)
		return Token{Type: TokenError, Literal: "unterminated or empty identifier", Pos: start}
	}
	l.pos = end + 1
	return Token{Type: TokenIdent, Literal: strings.ReplaceAll(l.input[start+1:end], `""`, `"`), Pos: start}
}

// closingQuote finds the quote ending a literal that starts at from,
// treating a doubled quote as an escape.
func closingQuote(s string, from int, q byte) (int, bool) {
	for i := from; i < len(s); i++ {
		if s[i] != q {
			continue
		}
		if i+1 < len(s) && s[i+1] == q {
			i++
			continue
		}
		return i, true
	}
	return 0, false
}

func (l *Lexer) skipDigits() {
	for l.pos < len(l.input) && isDigit(rune(l.input[l.pos])) {
		l.pos++
	}
}

func (l *Lexer) peek() byte {
	if l.pos < len(l.input) {
		return l.input[l.pos]
	}
	return 0
}

func isDigit(r rune) bool {
	return r >= '0' && r <= '9'
}
