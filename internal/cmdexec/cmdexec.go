// Package cmdexec runs external CLIs (dvc, git) behind an injectable Executor
// so version-control steps can be tested with stubs.
package cmdexec

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
)

// Executor abstracts command execution for testability. onOutput receives
// stdout and stderr lines as they are produced.
type Executor interface {
	Run(ctx context.Context, dir, binary string, args []string, onOutput func(string)) error
}

// ExitError reports a command that ran and exited non-zero.
type ExitError struct {
	Binary string
	Args   []string
	Code   int
	Tail   []string
}

func (e *ExitError) Error() string {
	cmd := strings.TrimSpace(e.Binary + " " + strings.Join(e.Args, " "))
	if len(e.Tail) == 0 {
		return fmt.Sprintf("%s exited with status %d", cmd, e.Code)
	}
	return fmt.Sprintf("%s exited with status %d: %s", cmd, e.Code, strings.Join(e.Tail, " | "))
}

// ExitCode extracts the exit status from err when it is an *ExitError.
func ExitCode(err error) (int, bool) {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code, true
	}
	return 0, false
}

const tailLines = 5

// Default returns the os/exec backed executor.
func Default() Executor {
	return commandExecutor{}
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, dir, binary string, args []string, onOutput func(string)) error {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	cmd.Dir = dir
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", binary, err)
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		scanErr error
		once    sync.Once
		tail    []string
	)
	forward := func(line string) {
		mu.Lock()
		defer mu.Unlock()
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			tail = append(tail, trimmed)
			if len(tail) > tailLines {
				tail = tail[1:]
			}
		}
		if onOutput != nil {
			onOutput(line)
		}
	}
	scan := func(r io.Reader) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			forward(scanner.Text())
		}
		if err := scanner.Err(); err != nil {
			once.Do(func() { scanErr = err })
		}
	}

	wg.Add(2)
	go scan(stdout)
	go scan(stderr)
	wg.Wait()

	if scanErr != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return fmt.Errorf("scan output: %w", scanErr)
	}
	if err := cmd.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%s interrupted: %w", binary, ctxErr)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return &ExitError{Binary: binary, Args: append([]string(nil), args...), Code: exitErr.ExitCode(), Tail: tail}
		}
		return fmt.Errorf("wait %s: %w", binary, err)
	}
	return nil
}
