package shell

import "strings"

// Kind distinguishes words from operators.
type Kind int

const (
	Word Kind = iota
	Operator
)

// Quote records how a word was quoted in the source line.
type Quote int

const (
	// Unquoted words, including words mixing quoted and unquoted parts.
	Unquoted Quote = iota
	SingleQuoted
	DoubleQuoted
)

func (q Quote) String() string {
	switch q {
	case SingleQuoted:
		return "single-quoted"
	case DoubleQuoted:
		return "double-quoted"
	default:
		return "unquoted"
	}
}

// Op identifies an operator token.
type Op int

const (
	OpNone Op = iota
	OpPipe
	OpBackground
	OpRedirectIn
	OpRedirectOut
	OpRedirectAppend
)

func (o Op) String() string {
	switch o {
	case OpPipe:
		return "|"
	case OpBackground:
		return "&"
	case OpRedirectIn:
		return "<"
	case OpRedirectOut:
		return ">"
	case OpRedirectAppend:
		return ">>"
	default:
		return ""
	}
}

// IsRedirect reports whether the operator takes a path operand.
func (o Op) IsRedirect() bool {
	return o == OpRedirectIn || o == OpRedirectOut || o == OpRedirectAppend
}

// segmentKind controls which expansions apply to a run of characters.
type segmentKind int

const (
	segUnquoted segmentKind = iota
	segDouble
	// segLiteral covers single-quoted text and backslash-escaped characters.
	segLiteral
)

type segment struct {
	kind segmentKind
	text string
}

// Token is a single word or operator read from a command line.
type Token struct {
	Kind  Kind
	Value string
	Quote Quote

	// Op and Fd are set for operators. Fd is -1 when the operator has no
	// numeric prefix.
	Op Op
	Fd int

	// Pos is the byte offset of the token in the source line.
	Pos int

	// Assign marks a NAME=value word in command position.
	Assign bool

	segments []segment
}

// NewWord creates an unquoted word token.
func NewWord(value string) Token {
	return Token{
		Kind:     Word,
		Value:    value,
		Fd:       -1,
		segments: []segment{{kind: segUnquoted, text: value}},
	}
}

// NewOperator creates an operator token without a descriptor prefix.
func NewOperator(op Op) Token {
	return Token{Kind: Operator, Op: op, Value: op.String(), Fd: -1}
}

func (t Token) String() string {
	return t.Value
}

// literalOnly reports whether no part of the word is subject to expansion.
func (t Token) literalOnly() bool {
	for _, seg := range t.segments {
		if seg.kind != segLiteral {
			return false
		}
	}
	return true
}

// assignmentName returns the variable name if the word has the form
// NAME=value with NAME written unquoted.
func (t Token) assignmentName() (string, bool) {
	if t.Kind != Word || len(t.segments) == 0 || t.segments[0].kind != segUnquoted {
		return "", false
	}
	idx := strings.IndexByte(t.segments[0].text, '=')
	if idx <= 0 {
		return "", false
	}
	name := t.segments[0].text[:idx]
	if !IsName(name) {
		return "", false
	}
	return name, true
}

// IsName reports whether s is a valid variable name.
func IsName(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '_' || isAlpha(c) || (i > 0 && isDigit(c)) {
			continue
		}
		return false
	}
	return true
}

func isAlpha(c byte) bool {
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

func isDigit(c byte) bool {
	return '0' <= c && c <= '9'
}

// Values returns the string values of the tokens.
func Values(tokens []Token) []string {
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = t.Value
	}
	return out
}
