// Package alias holds shell aliases and substitutes them into command lines
// before they're tokenized.
package alias

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	shlex "github.com/anmitsu/go-shlex"
)

var (
	ErrInvalidName  = errors.New("invalid alias name")
	ErrInvalidValue = errors.New("invalid alias value")
)

// Alias is a single name to replacement text mapping.
type Alias struct {
	Name  string
	Value string
}

func (a Alias) String() string {
	return fmt.Sprintf("alias %s='%s'", a.Name, strings.ReplaceAll(a.Value, "'", `'\''`))
}

// Table is a set of aliases safe for concurrent use.
type Table struct {
	mu      sync.RWMutex
	aliases map[string]string
}

// NewTable creates an empty table.
func NewTable() *Table {
	return &Table{aliases: make(map[string]string)}
}

// ValidName reports whether name can be used as an alias.
func ValidName(name string) bool {
	if name == "" {
		return false
	}
	return !strings.ContainsAny(name, " \t\n=|&<>;'\"\\$`/")
}

// Set defines or replaces an alias. The value must be well formed shell text.
func (t *Table) Set(name, value string) error {
	if !ValidName(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	if _, err := shlex.Split(value, true); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidValue, name, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.aliases[name] = value
	return nil
}

// SetAll defines every alias in the map, stopping at the first error.
func (t *Table) SetAll(aliases map[string]string) error {
	names := make([]string, 0, len(aliases))
	for name := range aliases {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := t.Set(name, aliases[name]); err != nil {
			return err
		}
	}
	return nil
}

func (t *Table) Get(name string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	value, ok := t.aliases[name]
	return value, ok
}

// Remove deletes an alias and reports whether it existed.
func (t *Table) Remove(name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.aliases[name]
	delete(t.aliases, name)
	return ok
}

// List returns every alias sorted by name.
func (t *Table) List() []Alias {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Alias, 0, len(t.aliases))
	for name, value := range t.aliases {
		out = append(out, Alias{Name: name, Value: value})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Expand replaces the command word of each pipeline stage in line with its
// alias. Replacement text is expanded again, but an alias is never expanded
// inside its own replacement. Quoted or escaped command words are left alone.
func (t *Table) Expand(line string) string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if len(t.aliases) == 0 {
		return line
	}

	var sb strings.Builder
	for i, stage := range splitStages(line) {
		if i > 0 {
			sb.WriteByte('|')
		}
		sb.WriteString(t.expandStage(stage, nil))
	}
	return sb.String()
}

func (t *Table) expandStage(stage string, seen map[string]bool) string {
	start := len(stage) - len(strings.TrimLeft(stage, " \t"))
	end := start
	for end < len(stage) && !isWordEnd(stage[end]) {
		end++
	}

	if end < len(stage) && isQuote(stage[end]) {
		return stage
	}

	word := stage[start:end]
	value, ok := t.aliases[word]
	if !ok || seen[word] {
		return stage
	}

	if seen == nil {
		seen = make(map[string]bool)
	}
	seen[word] = true

	return stage[:start] + t.expandStage(value, seen) + stage[end:]
}

func isWordEnd(c byte) bool {
	switch c {
	case ' ', '\t', '\n', '|', '&', '<', '>', ';', '\'', '"', '\\', '$', '`':
		return true
	}
	return false
}

func isQuote(c byte) bool {
	return c == '\'' || c == '"' || c == '\\'
}

// splitStages splits line on pipes outside of quotes.
func splitStages(line string) []string {
	var (
		stages []string
		quote  byte
		last   int
	)

	for i := 0; i < len(line); i++ {
		c := line[i]
		switch {
		case quote == '\'':
			if c == '\'' {
				quote = 0
			}
		case c == '\\':
			i++
		case quote == '"':
			if c == '"' {
				quote = 0
			}
		case c == '\'' || c == '"':
			quote = c
		case c == '|':
			stages = append(stages, line[last:i])
			last = i + 1
		}
	}
	return append(stages, line[last:])
}
