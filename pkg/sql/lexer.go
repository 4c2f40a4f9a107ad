package sql

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

type tokenKind int

const (
	tokWord        tokenKind = iota // bare word: keyword or unquoted identifier
	tokQuotedIdent                  // "ident", `ident`, [ident]
	tokString                       // 'text', E'text', N'text', $tag$text$tag$
	tokNumber
	tokParam // $1, ?, :name, @name
	tokPunct // ; ( ) , . [ ]
	tokOperator
)

type token struct {
	kind tokenKind
	// text is the raw source slice.
	text string
	// value is the normalized form: upper-cased for words, unescaped
	// content for quoted identifiers and string literals.
	value string
	pos   int
}

func (t token) is(kind tokenKind, value string) bool {
	return t.kind == kind && t.value == value
}

func (t token) isWord(words ...string) bool {
	if t.kind != tokWord {
		return false
	}
	for _, w := range words {
		if t.value == w {
			return true
		}
	}
	return false
}

func (t token) isPunct(p string) bool {
	return t.is(tokPunct, p)
}

// LexError reports text the tokenizer cannot split unambiguously.
type LexError struct {
	Pos int
	Msg string
}

func (e *LexError) Error() string {
	return fmt.Sprintf("%s at offset %d", e.Msg, e.Pos)
}

type lexer struct {
	src     string
	pos     int
	dialect Dialect
	tokens  []token
}

// lex splits src into tokens under dialect's quoting rules, dropping
// whitespace and comments. Any construct that engines of the dialect could
// read differently (nested block comments, backslash-escaped quotes in
// standard strings) is an error.
func lex(src string, dialect Dialect) ([]token, error) {
	l := &lexer{src: src, dialect: dialect}
	for {
		l.skipSpace()
		if l.pos >= len(l.src) {
			return l.tokens, nil
		}
		if err := l.next(); err != nil {
			return nil, err
		}
	}
}

func (l *lexer) peek(offset int) byte {
	if l.pos+offset < len(l.src) {
		return l.src[l.pos+offset]
	}
	return 0
}

func (l *lexer) emit(kind tokenKind, start int, value string) {
	l.tokens = append(l.tokens, token{kind: kind, text: l.src[start:l.pos], value: value, pos: start})
}

func (l *lexer) fail(pos int, msg string) error {
	return &LexError{Pos: pos, Msg: msg}
}

func (l *lexer) skipSpace() {
	for l.pos < len(l.src) {
		r, size := utf8.DecodeRuneInString(l.src[l.pos:])
		if !unicode.IsSpace(r) {
			return
		}
		l.pos += size
	}
}

func (l *lexer) next() error {
	start := l.pos
	c := l.src[l.pos]

	switch {
	case c == '-' && l.peek(1) == '-':
		return l.lineComment()

	case c == '/' && l.peek(1) == '*':
		return l.blockComment()

	case c == '\'':
		return l.quotedString(start, l.pos, false)

	case (c == 'E' || c == 'e') && l.peek(1) == '\'' && l.dialect.escapeStrings():
		return l.quotedString(start, l.pos+1, true)

	case (c == 'N' || c == 'n' || c == 'X' || c == 'x' || c == 'B' || c == 'b') && l.peek(1) == '\'':
		return l.quotedString(start, l.pos+1, false)

	case c == '"' || c == '`':
		return l.quotedIdent(start, c, true)

	case c == '[' && l.dialect.bracketIdents():
		return l.quotedIdent(start, ']', l.dialect.bracketEscape())

	case c == '$' && !l.dialect.dollarQuotes():
		l.pos++
		l.consumeIdent()
		if l.pos == start+1 {
			l.emit(tokOperator, start, "$")
			return nil
		}
		return l.param(start)

	case c == '#' && l.dialect == DialectSQLite && isIdentStart(l.peekRune(1)):
		l.pos++
		l.consumeIdent()
		return l.param(start)

	case c == '$':
		if isDigit(l.peek(1)) {
			l.pos++
			for l.pos < len(l.src) && isDigit(l.src[l.pos]) {
				l.pos++
			}
			l.emit(tokParam, start, l.src[start:l.pos])
			return nil
		}
		return l.dollarString(start)

	case c == '?':
		l.pos++
		l.emit(tokParam, start, "?")
		return nil

	case c == ':' && l.peek(1) == ':':
		l.pos += 2
		l.emit(tokOperator, start, "::")
		return nil

	case c == '@' && (l.peek(1) == '@' || isIdentStart(l.peekRune(1))),
		c == ':' && isIdentStart(l.peekRune(1)):
		l.pos++
		if l.src[l.pos] == '@' {
			l.pos++
		}
		l.consumeIdent()
		return l.param(start)

	case isDigit(c) || (c == '.' && isDigit(l.peek(1))):
		l.number()
		l.emit(tokNumber, start, l.src[start:l.pos])
		return nil

	case strings.IndexByte(";(),.[]", c) >= 0:
		l.pos++
		l.emit(tokPunct, start, string(c))
		return nil
	}

	r, size := utf8.DecodeRuneInString(l.src[l.pos:])
	if r == utf8.RuneError && size <= 1 {
		return l.fail(start, "invalid UTF-8")
	}
	if isIdentStart(r) {
		l.consumeIdent()
		l.emit(tokWord, start, strings.ToUpper(l.src[start:l.pos]))
		return nil
	}

	l.pos += size
	l.emit(tokOperator, start, l.src[start:l.pos])
	return nil
}

func (l *lexer) peekRune(offset int) rune {
	if l.pos+offset >= len(l.src) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(l.src[l.pos+offset:])
	return r
}

// param emits the named parameter ending at l.pos. SQLite reads a
// parenthesized suffix on a parameter name as part of the token, through
// quotes and separators, so that form is refused there.
func (l *lexer) param(start int) error {
	if l.dialect == DialectSQLite && l.peek(0) == '(' {
		return l.fail(start, "parameter name followed by a parenthesized suffix")
	}
	l.emit(tokParam, start, l.src[start:l.pos])
	return nil
}

// lineComment skips a -- comment through its terminator. On SQL Server a
// bare carriage return inside the comment is refused because client tools
// and the server may disagree on whether it ends the line.
func (l *lexer) lineComment() error {
	start := l.pos
	for l.pos += 2; l.pos < len(l.src); l.pos++ {
		c := l.src[l.pos]
		if l.dialect.lineCommentEnd(c) {
			l.pos++
			return nil
		}
		if c == '\r' && l.dialect == DialectMSSQL && l.peek(1) != '\n' {
			return l.fail(start, "carriage return inside line comment")
		}
	}
	return nil
}

func (l *lexer) blockComment() error {
	start := l.pos
	l.pos += 2
	for l.pos < len(l.src) {
		switch {
		case l.src[l.pos] == '*' && l.peek(1) == '/':
			l.pos += 2
			return nil
		case l.src[l.pos] == '/' && l.peek(1) == '*':
			return l.fail(l.pos, "nested block comment")
		}
		l.pos++
	}
	return l.fail(start, "unterminated block comment")
}

// quotedString lexes a single-quoted literal whose opening quote is at
// quote. Doubled quotes are always an escape; backslash escapes are honored
// only for E'...' strings.
func (l *lexer) quotedString(start, quote int, backslashEscapes bool) error {
	var b strings.Builder
	l.pos = quote + 1
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case c == '\'' && l.peek(1) == '\'':
			b.WriteByte('\'')
			l.pos += 2
		case c == '\'':
			l.pos++
			l.emit(tokString, start, b.String())
			return nil
		case c == '\\' && backslashEscapes:
			if l.pos+1 >= len(l.src) {
				return l.fail(start, "unterminated string literal")
			}
			b.WriteByte(l.src[l.pos+1])
			l.pos += 2
		case c == '\\' && l.peek(1) == '\'' && l.dialect.escapeStrings():
			return l.fail(l.pos, "ambiguous backslash-escaped quote")
		default:
			b.WriteByte(c)
			l.pos++
		}
	}
	return l.fail(start, "unterminated string literal")
}

// quotedIdent lexes an identifier opened at start and closed by closer. A
// doubled closer is an escape when doubled is set.
func (l *lexer) quotedIdent(start int, closer byte, doubled bool) error {
	var b strings.Builder
	l.pos++
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		if c == closer {
			if doubled && l.peek(1) == closer {
				b.WriteByte(closer)
				l.pos += 2
				continue
			}
			l.pos++
			if b.Len() == 0 {
				return l.fail(start, "empty quoted identifier")
			}
			l.emit(tokQuotedIdent, start, b.String())
			return nil
		}
		b.WriteByte(c)
		l.pos++
	}
	return l.fail(start, "unterminated quoted identifier")
}

// dollarString lexes $$...$$ and $tag$...$tag$ bodies.
func (l *lexer) dollarString(start int) error {
	end := l.pos + 1
	for end < len(l.src) && (isIdentByte(l.src[end])) {
		end++
	}
	if end >= len(l.src) || l.src[end] != '$' {
		return l.fail(start, "unexpected '$'")
	}
	tag := l.src[start : end+1]
	if len(tag) > 2 && isDigit(tag[1]) {
		return l.fail(start, "invalid dollar-quote tag")
	}
	bodyStart := end + 1
	idx := strings.Index(l.src[bodyStart:], tag)
	if idx < 0 {
		return l.fail(start, "unterminated dollar-quoted string")
	}
	l.pos = bodyStart + idx + len(tag)
	l.emit(tokString, start, l.src[bodyStart:bodyStart+idx])
	return nil
}

func (l *lexer) consumeIdent() {
	for l.pos < len(l.src) {
		r, size := utf8.DecodeRuneInString(l.src[l.pos:])
		if r != '_' && r != '$' && !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			return
		}
		l.pos += size
	}
}

func (l *lexer) number() {
	if l.src[l.pos] == '0' && (l.peek(1) == 'x' || l.peek(1) == 'X') {
		l.pos += 2
		for l.pos < len(l.src) && isHexDigit(l.src[l.pos]) {
			l.pos++
		}
		return
	}
	for l.pos < len(l.src) {
		c := l.src[l.pos]
		switch {
		case isDigit(c) || c == '.' || c == '_':
			l.pos++
		case c == 'e' || c == 'E':
			l.pos++
			if l.pos < len(l.src) && (l.src[l.pos] == '+' || l.src[l.pos] == '-') {
				l.pos++
			}
		default:
			return
		}
	}
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isHexDigit(c byte) bool {
	return isDigit(c) || (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
}

func isIdentByte(c byte) bool {
	return c == '_' || isDigit(c) || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentStart(r rune) bool {
	return r == '_' || unicode.IsLetter(r)
}
