// Package gitrepo commits DVC metadata into a local git repository through the
// git command line.
package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"apodpipe/internal/cmdexec"
	"apodpipe/internal/logging"
)

// CommitMessagePrefix starts every metadata commit message.
const CommitMessagePrefix = "Add DVC metadata for APOD data - "

// CommitMessage formats the metadata commit message for ts.
func CommitMessage(ts time.Time) string {
	return CommitMessagePrefix + ts.UTC().Format(time.RFC3339)
}

// CommitResult describes the outcome of CommitPaths.
type CommitResult struct {
	Committed bool
	Hash      string
	Paths     []string
}

// Client wraps git CLI interactions inside one work tree.
type Client struct {
	binary    string
	repoDir   string
	userName  string
	userEmail string
	timeout   time.Duration
	exec      cmdexec.Executor
	logger    *slog.Logger
}

// Option configures the client.
type Option func(*Client)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec cmdexec.Executor) Option {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// WithIdentity sets the author identity used for repository setup and commits.
func WithIdentity(name, email string) Option {
	return func(c *Client) {
		c.userName = strings.TrimSpace(name)
		c.userEmail = strings.TrimSpace(email)
	}
}

// WithTimeout bounds each git invocation.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// WithLogger routes git output to logger at debug level.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New constructs a git client for repoDir.
func New(binary, repoDir string, opts ...Option) (*Client, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("git binary required")
	}
	repoDir = strings.TrimSpace(repoDir)
	if repoDir == "" {
		return nil, errors.New("git repository directory required")
	}
	client := &Client{
		binary:  binary,
		repoDir: repoDir,
		exec:    cmdexec.Default(),
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// EnsureRepo runs `git init` and configures the local identity when repoDir
// is not yet a work tree. It reports whether initialization happened.
func (c *Client) EnsureRepo(ctx context.Context) (bool, error) {
	if _, err := os.Stat(filepath.Join(c.repoDir, ".git")); err == nil {
		return false, nil
	}
	if err := os.MkdirAll(c.repoDir, 0o755); err != nil {
		return false, fmt.Errorf("create repository directory: %w", err)
	}
	if _, err := c.run(ctx, "init"); err != nil {
		return false, err
	}
	if c.userName != "" {
		if _, err := c.run(ctx, "config", "user.name", c.userName); err != nil {
			return true, err
		}
	}
	if c.userEmail != "" {
		if _, err := c.run(ctx, "config", "user.email", c.userEmail); err != nil {
			return true, err
		}
	}
	return true, nil
}

// CommitPaths stages the given repository-relative paths that exist and
// commits them. When nothing differs from HEAD the call is a no-op and
// Committed is false.
func (c *Client) CommitPaths(ctx context.Context, message string, paths ...string) (CommitResult, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return CommitResult{}, errors.New("commit message required")
	}
	var present []string
	for _, p := range paths {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, err := os.Stat(filepath.Join(c.repoDir, p)); err == nil {
			present = append(present, p)
		}
	}
	result := CommitResult{Paths: present}
	if len(present) == 0 {
		return result, nil
	}

	if _, err := c.run(ctx, append([]string{"add", "--"}, present...)...); err != nil {
		return result, err
	}

	_, err := c.run(ctx, append([]string{"diff", "--cached", "--quiet", "--"}, present...)...)
	if err == nil {
		return result, nil
	}
	if code, ok := cmdexec.ExitCode(err); !ok || code != 1 {
		return result, err
	}

	args := c.identityArgs()
	args = append(args, "commit", "-m", message, "--")
	args = append(args, present...)
	if _, err := c.run(ctx, args...); err != nil {
		if strings.Contains(err.Error(), "nothing to commit") {
			return result, nil
		}
		return result, err
	}

	hash, err := c.Head(ctx)
	if err != nil {
		return result, err
	}
	result.Committed = true
	result.Hash = hash
	return result, nil
}

// Head returns the commit hash HEAD points at.
func (c *Client) Head(ctx context.Context) (string, error) {
	lines, err := c.run(ctx, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			return line, nil
		}
	}
	return "", errors.New("git rev-parse HEAD returned no output")
}

func (c *Client) identityArgs() []string {
	var args []string
	if c.userName != "" {
		args = append(args, "-c", "user.name="+c.userName)
	}
	if c.userEmail != "" {
		args = append(args, "-c", "user.email="+c.userEmail)
	}
	return args
}

func (c *Client) run(ctx context.Context, args ...string) ([]string, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	var lines []string
	err := c.exec.Run(ctx, c.repoDir, c.binary, args, func(line string) {
		lines = append(lines, line)
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			c.logger.Debug("git output", logging.String("line", trimmed))
		}
	})
	if err != nil {
		return lines, fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return lines, nil
}
