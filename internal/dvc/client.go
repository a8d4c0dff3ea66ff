package dvc

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"apodpipe/internal/cmdexec"
	"apodpipe/internal/logging"
)

// MetadataSuffix is appended to a tracked path to name its metadata file.
const MetadataSuffix = ".dvc"

// Client wraps DVC CLI interactions inside one repository directory.
type Client struct {
	binary  string
	repoDir string
	timeout time.Duration
	exec    cmdexec.Executor
	logger  *slog.Logger
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

// WithTimeout bounds each dvc invocation.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// WithLogger routes dvc output to logger at debug level.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New constructs a DVC client for repoDir.
func New(binary, repoDir string, opts ...Option) (*Client, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("dvc binary required")
	}
	repoDir = strings.TrimSpace(repoDir)
	if repoDir == "" {
		return nil, errors.New("dvc repository directory required")
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

// RepoDir returns the repository root.
func (c *Client) RepoDir() string {
	return c.repoDir
}

// EnsureRepo runs `dvc init` when the repository has no .dvc directory. The
// repository is initialized without SCM integration when it is not a git
// work tree. It reports whether initialization happened.
func (c *Client) EnsureRepo(ctx context.Context) (bool, error) {
	if exists(filepath.Join(c.repoDir, ".dvc")) {
		return false, nil
	}
	if err := os.MkdirAll(c.repoDir, 0o755); err != nil {
		return false, fmt.Errorf("create repository directory: %w", err)
	}
	args := []string{"init"}
	if !exists(filepath.Join(c.repoDir, ".git")) {
		args = append(args, "--no-scm")
	}
	if err := c.run(ctx, args...); err != nil {
		return false, err
	}
	return true, nil
}

// Add tracks relPath (relative to the repository root) and returns the
// absolute path of its metadata file.
func (c *Client) Add(ctx context.Context, relPath string) (string, error) {
	relPath = filepath.Clean(strings.TrimSpace(relPath))
	if relPath == "." || filepath.IsAbs(relPath) || strings.HasPrefix(relPath, "..") {
		return "", fmt.Errorf("dvc add: path %q must be relative to the repository", relPath)
	}
	if !exists(filepath.Join(c.repoDir, relPath)) {
		return "", fmt.Errorf("dvc add: %s: %w", relPath, fs.ErrNotExist)
	}
	if err := c.run(ctx, "add", relPath); err != nil {
		return "", err
	}
	metadataPath := filepath.Join(c.repoDir, relPath+MetadataSuffix)
	if !exists(metadataPath) {
		return "", fmt.Errorf("dvc add did not produce %s", metadataPath)
	}
	return metadataPath, nil
}

func (c *Client) run(ctx context.Context, args ...string) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	c.logger.Debug("running dvc", logging.String("args", strings.Join(args, " ")))
	err := c.exec.Run(ctx, c.repoDir, c.binary, args, func(line string) {
		if line = strings.TrimSpace(line); line != "" {
			c.logger.Debug("dvc output", logging.String("line", line))
		}
	})
	if err != nil {
		return fmt.Errorf("dvc %s: %w", strings.Join(args, " "), err)
	}
	return nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
