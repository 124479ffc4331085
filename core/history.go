package core

import (
	"strings"
	"sync"

	"github.com/josephlewis42/flexsh/core/config"
)

// History is the in-memory list of lines entered in a session.
type History struct {
	cfg config.History

	mu      sync.Mutex
	entries []string
}

// NewHistory creates an empty history following cfg.
func NewHistory(cfg config.History) *History {
	return &History{cfg: cfg}
}

// Add records line and reports whether it was kept. Blank lines are never
// kept.
func (h *History) Add(line string) bool {
	line = strings.TrimRight(line, "\r\n")
	switch {
	case strings.TrimSpace(line) == "":
		return false
	case h.cfg.MaxEntries == 0:
		return false
	case h.cfg.IgnoreSpacePrefixed && strings.HasPrefix(line, " "):
		return false
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.cfg.IgnoreDuplicates && len(h.entries) > 0 && h.entries[len(h.entries)-1] == line {
		return false
	}

	h.entries = append(h.entries, line)
	if over := len(h.entries) - h.cfg.MaxEntries; over > 0 {
		h.entries = append([]string(nil), h.entries[over:]...)
	}
	return true
}

// Entries returns a copy of the history, oldest first.
func (h *History) Entries() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.entries...)
}

func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = nil
}
