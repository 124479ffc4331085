package shell

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

// Tokenize splits a command line into words and operators.
//
// Whitespace separates words outside of quotes. Single quotes preserve
// everything up to the closing quote, double quotes allow variable expansion
// and a backslash outside single quotes escapes the following character.
// Inside double quotes a backslash only escapes $, `, ", \ and newline.
//
// The operators |, &, <, >, >> and their descriptor-prefixed forms (2>,
// 2>>, 0<) are split out even when not surrounded by whitespace.
func Tokenize(line string) ([]Token, error) {
	l := &lexer{line: line}
	if err := l.run(); err != nil {
		return nil, err
	}
	return l.tokens, nil
}

type lexer struct {
	line   string
	tokens []Token

	inWord      bool
	start       int
	segments    []segment
	sawSingle   bool
	sawDouble   bool
	sawUnquoted bool
}

func isBlank(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isOperatorByte(c byte) bool {
	return c == '|' || c == '&' || c == '<' || c == '>'
}

func isSpecial(c byte) bool {
	return isBlank(c) || isOperatorByte(c) || c == '\'' || c == '"' || c == '\\'
}

func (l *lexer) run() error {
	s := l.line
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case isBlank(c):
			l.endWord()
			i++

		case c == '\'':
			end := strings.IndexByte(s[i+1:], '\'')
			if end < 0 {
				return &ParseError{Err: ErrUnterminatedQuote, Pos: i}
			}
			l.sawSingle = true
			l.add(i, segLiteral, s[i+1:i+1+end])
			i += end + 2

		case c == '"':
			next, err := l.doubleQuoted(i)
			if err != nil {
				return err
			}
			i = next

		case c == '\\':
			l.sawUnquoted = true
			if i+1 >= len(s) {
				l.add(i, segLiteral, `\`)
				i++
				continue
			}
			_, size := utf8.DecodeRuneInString(s[i+1:])
			l.add(i, segLiteral, s[i+1:i+1+size])
			i += 1 + size

		case isOperatorByte(c):
			l.endWord()
			i = l.operator(i, -1, i)

		case isDigit(c) && !l.inWord:
			j := i
			for j < len(s) && isDigit(s[j]) {
				j++
			}
			if j < len(s) && (s[j] == '<' || s[j] == '>') {
				fd, err := strconv.Atoi(s[i:j])
				if err != nil || fd > MaxFd {
					return &ParseError{Err: ErrBadDescriptor, Pos: i, Near: s[i:j]}
				}
				i = l.operator(j, fd, i)
				continue
			}
			l.sawUnquoted = true
			l.add(i, segUnquoted, s[i:j])
			i = j

		default:
			j := i + 1
			for j < len(s) && !isSpecial(s[j]) {
				j++
			}
			l.sawUnquoted = true
			l.add(i, segUnquoted, s[i:j])
			i = j
		}
	}
	l.endWord()
	return nil
}

// doubleQuoted consumes a double quoted string starting at the opening quote
// and returns the offset after the closing quote.
func (l *lexer) doubleQuoted(open int) (int, error) {
	s := l.line
	l.sawDouble = true
	l.add(open, segDouble, "")

	runStart := open + 1
	for i := runStart; i < len(s); {
		switch s[i] {
		case '"':
			l.add(open, segDouble, s[runStart:i])
			return i + 1, nil
		case '\\':
			if i+1 < len(s) && strings.IndexByte("$`\"\\\n", s[i+1]) >= 0 {
				l.add(open, segDouble, s[runStart:i])
				l.add(open, segLiteral, s[i+1:i+2])
				i += 2
				runStart = i
				continue
			}
			i++
		default:
			i++
		}
	}
	return 0, &ParseError{Err: ErrUnterminatedQuote, Pos: open}
}

// operator emits the operator at offset i. start is where the token begins,
// which differs from i when there's a descriptor prefix.
func (l *lexer) operator(i, fd, start int) int {
	s := l.line
	var op Op
	width := 1
	switch s[i] {
	case '|':
		op = OpPipe
	case '&':
		op = OpBackground
	case '<':
		op = OpRedirectIn
	case '>':
		op = OpRedirectOut
		if i+1 < len(s) && s[i+1] == '>' {
			op = OpRedirectAppend
			width = 2
		}
	}

	l.tokens = append(l.tokens, Token{
		Kind:  Operator,
		Op:    op,
		Fd:    fd,
		Value: s[start : i+width],
		Pos:   start,
	})
	return i + width
}

func (l *lexer) add(pos int, kind segmentKind, text string) {
	if !l.inWord {
		l.inWord = true
		l.start = pos
	}
	if n := len(l.segments); n > 0 && l.segments[n-1].kind == kind {
		l.segments[n-1].text += text
		return
	}
	l.segments = append(l.segments, segment{kind: kind, text: text})
}

func (l *lexer) endWord() {
	if !l.inWord {
		return
	}

	var value strings.Builder
	for _, seg := range l.segments {
		value.WriteString(seg.text)
	}

	quote := Unquoted
	switch {
	case l.sawSingle && !l.sawDouble && !l.sawUnquoted:
		quote = SingleQuoted
	case l.sawDouble && !l.sawSingle && !l.sawUnquoted:
		quote = DoubleQuoted
	}

	l.tokens = append(l.tokens, Token{
		Kind:     Word,
		Value:    value.String(),
		Quote:    quote,
		Fd:       -1,
		Pos:      l.start,
		segments: l.segments,
	})

	l.inWord = false
	l.segments = nil
	l.sawSingle = false
	l.sawDouble = false
	l.sawUnquoted = false
}
