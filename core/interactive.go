package core

import (
	"context"
	"errors"
	"io"

	"github.com/abiosoft/readline"
	"go.uber.org/zap"
)

// RunInteractive reads lines from a line editor until EOF or exit and
// returns the status to exit with.
func (s *Shell) RunInteractive(ctx context.Context) (int, error) {
	cfg := &readline.Config{
		Prompt:                 s.Prompt(),
		HistoryLimit:           s.cfg.History.MaxEntries,
		DisableAutoSaveHistory: true,
		InterruptPrompt:        "^C",
		EOFPrompt:              "exit",
		Stdout:                 s.stdout,
		Stderr:                 s.stderr,
	}
	if rc, ok := s.stdin.(io.ReadCloser); ok {
		cfg.Stdin = readline.NewCancelableStdin(rc)
	}
	if cfg.HistoryLimit == 0 {
		cfg.HistoryLimit = -1
	}

	rl, err := readline.NewEx(cfg)
	if err != nil {
		return 1, err
	}
	defer rl.Close()

	s.mu.Lock()
	s.readline = rl
	s.mu.Unlock()

	stop := s.forwardInterrupts()
	defer stop()

	for {
		s.ReportFinishedJobs()
		rl.SetPrompt(s.Prompt())

		line, err := rl.Readline()
		switch {
		case err == io.EOF:
			return s.LastStatus(), nil

		case errors.Is(err, readline.ErrInterrupt):
			// Ctrl-C at the prompt discards the line.
			continue

		case err != nil:
			s.log.Warn("couldn't read line", zap.Error(err))
			return 1, err
		}

		if s.history.Add(line) {
			rl.SaveHistory(line)
		}

		s.RunLine(ctx, line)

		if exited, code := s.Exited(); exited {
			return code, nil
		}
		if err := ctx.Err(); err != nil {
			return s.LastStatus(), err
		}
	}
}
