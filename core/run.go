package core

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/josephlewis42/flexsh/core/executor"
	"github.com/josephlewis42/flexsh/core/jobs"
	"github.com/josephlewis42/flexsh/core/shell"
	"github.com/josephlewis42/flexsh/core/vos"
	"go.uber.org/zap"
)

// expander builds the expander for the next line, exposing $? and $$.
func (s *Shell) expander() *shell.Expander {
	return &shell.Expander{
		Env: &vos.Overlay{
			Base: s.env,
			Vars: map[string]string{
				"?": strconv.Itoa(s.LastStatus()),
				"$": strconv.Itoa(os.Getpid()),
			},
		},
		Fs:  s.fs,
		Dir: s.Getwd(),
	}
}

// RunLine runs a single command line and returns its exit status. Errors are
// reported on the shell's stderr.
func (s *Shell) RunLine(ctx context.Context, line string) int {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return s.LastStatus()
	}

	s.log.Debug("running line", zap.String("line", trimmed))

	p, err := shell.Compile(s.aliases.Expand(line), s.expander())
	var (
		parseErr     *shell.ParseError
		expansionErr *shell.ExpansionError
	)
	switch {
	case errors.As(err, &parseErr) || errors.As(err, &expansionErr):
		s.printError(err)
		return s.setStatus(executor.ExitUsage)
	case err != nil:
		s.printError(err)
		return s.setStatus(executor.ExitFailure)
	case p == nil:
		return s.LastStatus()
	}
	p.Source = trimmed

	res, err := s.exec.Run(ctx, p)
	if err != nil {
		s.printError(err)
	}
	if res.Background {
		s.reportLaunch(res)
	}
	return s.setStatus(res.ExitCode)
}

func (s *Shell) reportLaunch(res executor.Result) {
	if len(res.Pids) == 0 {
		fmt.Fprintf(s.stderr, "[%d]\n", res.JobID)
		return
	}
	fmt.Fprintf(s.stderr, "[%d] %d\n", res.JobID, res.Pids[len(res.Pids)-1])
}

// ReportFinishedJobs prints a notice for every background job that finished
// since the last call and removes it from the job table.
func (s *Shell) ReportFinishedJobs() {
	for _, job := range s.exec.Jobs().Collect() {
		fmt.Fprintf(s.stderr, "[%d]  %s  %s\n", job.ID, describeStatus(job.Status), job.Source)
	}
}

func describeStatus(status jobs.Status) string {
	switch {
	case status.State == jobs.Signaled && status.Signal == "SIGKILL":
		return "Killed"
	case status.State == jobs.Signaled:
		return status.Signal
	case status.Code != 0:
		return fmt.Sprintf("Exit %d", status.Code)
	default:
		return "Done"
	}
}

// RunScript runs every line of r until it's exhausted or exit is called and
// returns the last status.
func (s *Shell) RunScript(ctx context.Context, r io.Reader) (int, error) {
	stop := s.forwardInterrupts()
	defer stop()

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return s.LastStatus(), err
		}

		s.RunLine(ctx, scanner.Text())
		s.ReportFinishedJobs()

		if exited, code := s.Exited(); exited {
			return code, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return executor.ExitFailure, err
	}
	return s.LastStatus(), nil
}

// RunCommand runs a single line as with -c and returns its status.
func (s *Shell) RunCommand(ctx context.Context, line string) int {
	stop := s.forwardInterrupts()
	defer stop()

	status := s.RunLine(ctx, line)
	if exited, code := s.Exited(); exited {
		return code
	}
	return status
}

// forwardInterrupts turns interrupt signals received by the shell into
// interrupts of the foreground pipeline. Signals arriving while nothing runs
// in the foreground are dropped.
func (s *Shell) forwardInterrupts() (stop func()) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)

	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-sigs:
				if !s.exec.Interrupt() {
					s.log.Debug("ignoring interrupt, nothing running")
				}
			case <-done:
				return
			}
		}
	}()

	return func() {
		signal.Stop(sigs)
		close(done)
	}
}
