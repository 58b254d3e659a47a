package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/OCAP2/mapview/internal/analysis"
	"github.com/OCAP2/mapview/internal/dispatcher"
	"github.com/OCAP2/mapview/internal/handlers"
	"github.com/OCAP2/mapview/pkg/core"
)

const prompt = "> "

// shell reads one command per line, e.g. "MARKER:ADD 2.35,48.85", and
// prints the outcome.
type shell struct {
	d   *dispatcher.Dispatcher
	in  io.Reader
	out io.Writer

	// afterExport runs once a session export has been written.
	afterExport func(ctx context.Context) error
}

func newShell(d *dispatcher.Dispatcher, in io.Reader, out io.Writer) *shell {
	return &shell{d: d, in: in, out: out}
}

// parseLine turns "BUFFER:ANALYZE 10 <id>" into an event for ":BUFFER:ANALYZE:".
// Blank lines and comments yield ok == false.
func parseLine(line string) (e dispatcher.Event, ok bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
		return dispatcher.Event{}, false
	}
	name := strings.Trim(strings.ToUpper(fields[0]), ":")
	if name == "" {
		return dispatcher.Event{}, false
	}
	return dispatcher.Event{
		Command: ":" + name + ":",
		Args:    fields[1:],
	}, true
}

// Run serves lines until the input ends, "quit" is read or ctx is done.
func (s *shell) Run(ctx context.Context) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)

	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(s.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-done:
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	fmt.Fprint(s.out, prompt)
	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(s.out)
			return nil
		case line, open := <-lines:
			if !open {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			if quit := s.handle(ctx, line); quit {
				return nil
			}
			fmt.Fprint(s.out, prompt)
		}
	}
}

func (s *shell) handle(ctx context.Context, line string) (quit bool) {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "quit", "exit":
		return true
	case "help", "?":
		s.help()
		return false
	}

	e, ok := parseLine(line)
	if !ok {
		return false
	}
	if handlers.Internal(e.Command) || !s.d.HasHandler(e.Command) {
		fmt.Fprintln(s.out, formatError(e.Command, dispatcher.ErrUnknownCommand))
		return false
	}

	result, err := s.d.Dispatch(ctx, e)
	if err != nil {
		fmt.Fprintln(s.out, formatError(e.Command, err))
		return false
	}
	fmt.Fprintln(s.out, formatResult(result))

	if e.Command == handlers.CmdSessionExport && s.afterExport != nil {
		if err := s.afterExport(ctx); err != nil {
			Logger.Warn("Flush after export failed", "error", err)
		}
	}
	return false
}

func (s *shell) help() {
	cmds := s.d.Commands()
	sort.Strings(cmds)
	for _, c := range cmds {
		if handlers.Internal(c) {
			continue
		}
		fmt.Fprintln(s.out, strings.Trim(c, ":"))
	}
	fmt.Fprintln(s.out, "QUIT")
}

func formatResult(v any) string {
	switch r := v.(type) {
	case nil:
		return "ok"
	case string:
		return r
	case []string:
		if len(r) == 0 {
			return "no markers"
		}
		return strings.Join(r, "\n")
	case *core.BufferResult:
		return r.Report()
	default:
		return fmt.Sprint(r)
	}
}

func formatError(command string, err error) string {
	switch {
	case errors.Is(err, dispatcher.ErrBusy):
		return analysis.Message(analysis.ErrInProgress)
	case errors.Is(err, dispatcher.ErrUnknownCommand):
		return fmt.Sprintf("unknown command %s, type help", strings.Trim(command, ":"))
	case command == handlers.CmdBufferAnalyze:
		return analysis.Message(err)
	default:
		return "error: " + err.Error()
	}
}
