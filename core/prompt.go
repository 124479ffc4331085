package core

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
)

var colorNames = map[string]color.Attribute{
	"black":   color.FgBlack,
	"red":     color.FgRed,
	"green":   color.FgGreen,
	"yellow":  color.FgYellow,
	"blue":    color.FgBlue,
	"magenta": color.FgMagenta,
	"cyan":    color.FgCyan,
	"white":   color.FgWhite,
}

func newColor(name string, enabled bool, extra ...color.Attribute) *color.Color {
	attrs := append([]color.Attribute{colorNames[name]}, extra...)
	c := color.New(attrs...)
	if !enabled {
		c.DisableColor()
	}
	return c
}

// Prompt renders the configured prompt.
func (s *Shell) Prompt() string {
	return s.renderPrompt(time.Now())
}

func (s *Shell) renderPrompt(now time.Time) string {
	cfg := s.cfg.Prompt

	status := ""
	if last := s.LastStatus(); cfg.ShowExitCode && last != 0 {
		status = fmt.Sprintf("[%d] ", last)
	}
	clock := ""
	if cfg.ShowTime {
		clock = now.Format("15:04:05") + " "
	}

	user := s.env.Getenv(EnvUser)
	if user == "" {
		user = s.env.Getenv("USERNAME")
	}
	host := s.env.Getenv(EnvHostname)
	if host == "" {
		host, _ = os.Hostname()
	}

	replacer := strings.NewReplacer(
		"{user}", user,
		"{host}", host,
		"{cwd}", s.displayDir(),
		"{status}", status,
		"{time}", clock,
	)

	return s.promptColor.Sprint(replacer.Replace(cfg.Format))
}

// displayDir abbreviates the home directory to ~.
func (s *Shell) displayDir() string {
	cwd := s.Getwd()
	home := s.env.Getenv(EnvHome)
	if home == "" {
		return cwd
	}
	home = filepath.Clean(home)

	switch {
	case cwd == home:
		return "~"
	case strings.HasPrefix(cwd, home+string(filepath.Separator)):
		return "~" + cwd[len(home):]
	default:
		return cwd
	}
}
