package testsupport

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"apodpipe/internal/cmdexec"
	"apodpipe/internal/dvc"
	"apodpipe/internal/fileutil"
)

// FakeVCS is a cmdexec.Executor that emulates the dvc and git subcommands the
// pipeline runs, writing real metadata files so hashes can be verified.
type FakeVCS struct {
	mu        sync.Mutex
	calls     []string
	staged    map[string][]byte
	committed map[string][]byte
	commits   int
	fail      map[string]error
}

// NewFakeVCS returns an executor with an empty history.
func NewFakeVCS() *FakeVCS {
	return &FakeVCS{
		staged:    make(map[string][]byte),
		committed: make(map[string][]byte),
		fail:      make(map[string]error),
	}
}

// FailOn makes the command "<binary> <subcommand>" (e.g. "git commit") return err.
func (f *FakeVCS) FailOn(command string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[command] = err
}

// Calls returns every command run, as "<binary> <args...>".
func (f *FakeVCS) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// Commits returns how many commits were created.
func (f *FakeVCS) Commits() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.commits
}

func (f *FakeVCS) Run(_ context.Context, dir, binary string, args []string, onOutput func(string)) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	tool := filepath.Base(binary)
	f.calls = append(f.calls, strings.TrimSpace(tool+" "+strings.Join(args, " ")))
	args = stripConfigArgs(args)
	if len(args) == 0 {
		return fmt.Errorf("%s: no subcommand", tool)
	}
	if err, ok := f.fail[tool+" "+args[0]]; ok {
		return err
	}

	switch tool {
	case "dvc":
		return f.dvc(dir, args)
	case "git":
		return f.git(dir, args, onOutput)
	default:
		return fmt.Errorf("unexpected binary %q", binary)
	}
}

func (f *FakeVCS) dvc(dir string, args []string) error {
	switch args[0] {
	case "init":
		return os.MkdirAll(filepath.Join(dir, ".dvc"), 0o755)
	case "add":
		if len(args) < 2 {
			return fmt.Errorf("dvc add: missing path")
		}
		rel := args[1]
		sum, size, err := fileutil.MD5File(filepath.Join(dir, rel))
		if err != nil {
			return err
		}
		data, err := yaml.Marshal(dvc.Metadata{Outs: []dvc.Output{{MD5: sum, Size: size, Hash: "md5", Path: rel}}})
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(dir, rel+dvc.MetadataSuffix), data, 0o644); err != nil {
			return err
		}
		return ensureIgnored(filepath.Join(dir, ".gitignore"), "/"+rel)
	default:
		return fmt.Errorf("unexpected dvc subcommand %q", args[0])
	}
}

func (f *FakeVCS) git(dir string, args []string, onOutput func(string)) error {
	switch args[0] {
	case "init":
		return os.MkdirAll(filepath.Join(dir, ".git"), 0o755)
	case "config":
		return nil
	case "add":
		for _, p := range pathArgs(args) {
			data, err := os.ReadFile(filepath.Join(dir, p))
			if err != nil {
				return &cmdexec.ExitError{Binary: "git", Args: args, Code: 128, Tail: []string{err.Error()}}
			}
			f.staged[p] = data
		}
		return nil
	case "diff":
		for p, data := range f.staged {
			if !bytes.Equal(f.committed[p], data) {
				return &cmdexec.ExitError{Binary: "git", Args: args, Code: 1}
			}
		}
		return nil
	case "commit":
		for p, data := range f.staged {
			f.committed[p] = data
		}
		f.commits++
		return nil
	case "rev-parse":
		if f.commits == 0 {
			return &cmdexec.ExitError{Binary: "git", Args: args, Code: 128, Tail: []string{"unknown revision HEAD"}}
		}
		if onOutput != nil {
			onOutput(fmt.Sprintf("%040x", f.commits))
		}
		return nil
	default:
		return fmt.Errorf("unexpected git subcommand %q", args[0])
	}
}

func stripConfigArgs(args []string) []string {
	for len(args) >= 2 && args[0] == "-c" {
		args = args[2:]
	}
	return args
}

func pathArgs(args []string) []string {
	for i, a := range args {
		if a == "--" {
			return args[i+1:]
		}
	}
	return nil
}

func ensureIgnored(path, entry string) error {
	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	for _, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == entry {
			return nil
		}
	}
	return os.WriteFile(path, append(data, []byte(entry+"\n")...), 0o644)
}
