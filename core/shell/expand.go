package shell

import (
	"path/filepath"
	"runtime"
	"sort"
	"strings"

	"github.com/spf13/afero"
)

// Env supplies values for variable expansion.
type Env interface {
	LookupEnv(key string) (string, bool)
}

// Expander performs variable, tilde and glob expansion on words.
type Expander struct {
	// Env resolves variable references. Unset variables expand to "".
	Env Env
	// Fs is searched for glob matches, globbing is disabled if nil.
	Fs afero.Fs
	// Dir is the working directory relative globs are resolved against.
	Dir string
}

// Expand returns the tokens with all expansions applied. Operators are passed
// through unchanged and words that are entirely single quoted are returned
// as-is. A single word may expand to zero or more words after splitting an
// unquoted variable or matching a glob. Globs that match nothing are left in
// place. Redirection targets must expand to exactly one word.
func (e *Expander) Expand(tokens []Token) ([]Token, error) {
	var out []Token
	commandPos := true
	afterRedirect := false

	for _, tok := range tokens {
		if tok.Kind == Operator {
			out = append(out, tok)
			afterRedirect = tok.Op.IsRedirect()
			if tok.Op == OpPipe {
				commandPos = true
			}
			continue
		}

		if commandPos && !afterRedirect {
			if _, ok := tok.assignmentName(); ok {
				assigned, err := e.expandAssignment(tok)
				if err != nil {
					return nil, err
				}
				out = append(out, assigned)
				continue
			}
			commandPos = false
		}
		target := afterRedirect
		afterRedirect = false

		words, err := e.expandWord(tok)
		if err != nil {
			return nil, err
		}
		if target && len(words) != 1 {
			return nil, &ExpansionError{Err: ErrAmbiguousRedirect, Word: tok.Value}
		}
		out = append(out, words...)
	}

	return out, nil
}

func (e *Expander) lookup(name string) string {
	if e.Env == nil {
		return ""
	}
	val, _ := e.Env.LookupEnv(name)
	return val
}

func (e *Expander) home() string {
	if home := e.lookup("HOME"); home != "" {
		return home
	}
	if runtime.GOOS == "windows" {
		return e.lookup("USERPROFILE")
	}
	return ""
}

// expandWord applies variable expansion, field splitting and globbing.
func (e *Expander) expandWord(tok Token) ([]Token, error) {
	if tok.literalOnly() {
		return []Token{tok}, nil
	}

	var fb fieldBuilder
	for i, seg := range tok.segments {
		switch seg.kind {
		case segLiteral:
			fb.touch()
			fb.append(seg.text, false)

		case segDouble:
			val, err := e.substitute(seg.text, tok, nil)
			if err != nil {
				return nil, err
			}
			fb.touch()
			fb.append(val, false)

		case segUnquoted:
			text := seg.text
			if i == 0 {
				if rest, ok := tildePrefix(text); ok {
					if home := e.home(); home != "" {
						fb.append(home, false)
						text = rest
					}
				}
			}
			if _, err := e.substitute(text, tok, &fb); err != nil {
				return nil, err
			}
		}
	}

	fields := fb.finish()
	quote := Unquoted
	if len(fields) == 1 {
		quote = tok.Quote
	}

	var out []Token
	for _, f := range fields {
		if matches := e.globField(f); len(matches) > 0 {
			for _, m := range matches {
				out = append(out, expandedWord(tok, m, Unquoted))
			}
			continue
		}
		out = append(out, expandedWord(tok, f.String(), quote))
	}
	return out, nil
}

func (e *Expander) expandAssignment(tok Token) (Token, error) {
	var value strings.Builder
	for _, seg := range tok.segments {
		if seg.kind == segLiteral {
			value.WriteString(seg.text)
			continue
		}
		val, err := e.substitute(seg.text, tok, nil)
		if err != nil {
			return Token{}, err
		}
		value.WriteString(val)
	}
	out := expandedWord(tok, value.String(), Unquoted)
	out.Assign = true
	return out, nil
}

func expandedWord(src Token, value string, quote Quote) Token {
	return Token{
		Kind:     Word,
		Value:    value,
		Quote:    quote,
		Fd:       -1,
		Pos:      src.Pos,
		segments: []segment{{kind: segLiteral, text: value}},
	}
}

func tildePrefix(s string) (string, bool) {
	if s == "~" {
		return "", true
	}
	if strings.HasPrefix(s, "~/") {
		return s[1:], true
	}
	return "", false
}

// substitute replaces variable references in text. If fb is nil the result
// is returned as a single string, otherwise values are split into fb's
// fields and literal text is marked as glob-able.
func (e *Expander) substitute(text string, tok Token, fb *fieldBuilder) (string, error) {
	var out strings.Builder
	emit := func(s string, fromVar bool) {
		switch {
		case fb == nil:
			out.WriteString(s)
		case fromVar:
			fb.split(s)
		default:
			fb.append(s, true)
		}
	}

	for {
		idx := strings.IndexByte(text, '$')
		if idx < 0 {
			emit(text, false)
			break
		}
		emit(text[:idx], false)
		text = text[idx:]

		name, width, err := parseReference(text)
		if err != nil {
			return "", &ExpansionError{Err: err, Word: tok.Value}
		}
		if width == 0 {
			emit("$", false)
			text = text[1:]
			continue
		}
		emit(e.lookup(name), true)
		text = text[width:]
	}
	return out.String(), nil
}

// parseReference reads a variable reference at the start of s, which begins
// with '$'. A width of zero means the '$' is literal.
func parseReference(s string) (name string, width int, err error) {
	if len(s) < 2 {
		return "", 0, nil
	}
	c := s[1]
	switch {
	case c == '{':
		end := strings.IndexByte(s, '}')
		if end < 0 {
			return "", 0, ErrBadSubstitution
		}
		name = s[2:end]
		if !IsName(name) && !isSpecialParam(name) {
			return "", 0, ErrBadSubstitution
		}
		return name, end + 1, nil
	case isSpecialParam(s[1:2]):
		return s[1:2], 2, nil
	case c == '_' || isAlpha(c):
		end := 2
		for end < len(s) && (s[end] == '_' || isAlpha(s[end]) || isDigit(s[end])) {
			end++
		}
		return s[1:end], end, nil
	}
	return "", 0, nil
}

func isSpecialParam(name string) bool {
	return name == "?" || name == "$" || (len(name) == 1 && isDigit(name[0]))
}

func (e *Expander) globField(f field) []string {
	if e.Fs == nil || !f.hasMeta() {
		return nil
	}
	pattern, ok := f.pattern()
	if !ok {
		return nil
	}

	abs := pattern
	if !filepath.IsAbs(pattern) {
		abs = filepath.Join(e.Dir, pattern)
	}

	matches, err := afero.Glob(e.Fs, abs)
	if err != nil {
		// Malformed patterns are treated like patterns without matches.
		return nil
	}

	var out []string
	for _, m := range matches {
		if hiddenMatch(abs, m) {
			continue
		}
		if !filepath.IsAbs(pattern) && e.Dir != "" {
			if rel, err := filepath.Rel(e.Dir, m); err == nil {
				m = rel
			}
		}
		out = append(out, m)
	}
	sort.Strings(out)
	return out
}

// hiddenMatch reports whether a wildcard matched a dot file without the
// pattern asking for one explicitly.
func hiddenMatch(pattern, match string) bool {
	pc := strings.Split(filepath.ToSlash(filepath.Clean(pattern)), "/")
	mc := strings.Split(filepath.ToSlash(filepath.Clean(match)), "/")
	if len(pc) != len(mc) {
		return false
	}
	for i := range pc {
		if hasGlobMeta(pc[i]) && !strings.HasPrefix(pc[i], ".") && strings.HasPrefix(mc[i], ".") {
			return true
		}
	}
	return false
}

func hasGlobMeta(s string) bool {
	if strings.ContainsAny(s, "*?") {
		return true
	}
	open := strings.IndexByte(s, '[')
	return open >= 0 && strings.IndexByte(s[open+1:], ']') >= 0
}

type piece struct {
	text string
	glob bool
}

// field is one output word under construction.
type field struct {
	pieces []piece
}

func (f field) String() string {
	var sb strings.Builder
	for _, p := range f.pieces {
		sb.WriteString(p.text)
	}
	return sb.String()
}

func (f field) hasMeta() bool {
	// A bracket expression may be split across pieces, e.g. [$X].
	var globOnly strings.Builder
	for _, p := range f.pieces {
		if p.glob {
			globOnly.WriteString(p.text)
		}
	}
	return hasGlobMeta(globOnly.String())
}

// pattern builds a glob pattern where quoted characters match literally.
// Escaping isn't possible with Windows path separators, so there a field
// with quoted metacharacters is never globbed.
func (f field) pattern() (string, bool) {
	var sb strings.Builder
	for _, p := range f.pieces {
		if p.glob {
			sb.WriteString(p.text)
			continue
		}
		if runtime.GOOS == "windows" {
			if strings.ContainsAny(p.text, `*?[`) {
				return "", false
			}
			sb.WriteString(p.text)
			continue
		}
		for _, r := range p.text {
			switch r {
			case '*', '?', '[', ']', '\\':
				sb.WriteByte('\\')
			}
			sb.WriteRune(r)
		}
	}
	return sb.String(), true
}

type fieldBuilder struct {
	fields []field
	cur    field
	exists bool
}

// touch marks the current field as present even if it is empty, which is how
// "" survives as an argument.
func (fb *fieldBuilder) touch() {
	fb.exists = true
}

func (fb *fieldBuilder) append(text string, glob bool) {
	if text == "" {
		return
	}
	fb.exists = true
	fb.cur.pieces = append(fb.cur.pieces, piece{text: text, glob: glob})
}

func isFieldSeparator(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n'
}

// split appends an unquoted expansion result, breaking fields on whitespace.
func (fb *fieldBuilder) split(value string) {
	for value != "" {
		idx := strings.IndexFunc(value, isFieldSeparator)
		switch {
		case idx < 0:
			fb.append(value, true)
			return
		case idx == 0:
			fb.breakField()
			value = strings.TrimLeftFunc(value, isFieldSeparator)
		default:
			fb.append(value[:idx], true)
			value = value[idx:]
		}
	}
}

func (fb *fieldBuilder) breakField() {
	if fb.exists {
		fb.fields = append(fb.fields, fb.cur)
	}
	fb.cur = field{}
	fb.exists = false
}

func (fb *fieldBuilder) finish() []field {
	fb.breakField()
	return fb.fields
}
