package dvc_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"apodpipe/internal/dvc"
	"apodpipe/internal/fileutil"
)

// fakeDVC emulates the parts of the dvc CLI the client drives.
type fakeDVC struct {
	calls [][]string
	err   error
}

func (f *fakeDVC) Run(ctx context.Context, dir, binary string, args []string, onOutput func(string)) error {
	f.calls = append(f.calls, append([]string(nil), args...))
	if f.err != nil {
		return f.err
	}
	switch args[0] {
	case "init":
		return os.MkdirAll(filepath.Join(dir, ".dvc"), 0o755)
	case "add":
		target := filepath.Join(dir, args[1])
		sum, size, err := fileutil.MD5File(target)
		if err != nil {
			return err
		}
		data, err := yaml.Marshal(dvc.Metadata{Outs: []dvc.Output{{MD5: sum, Size: size, Hash: "md5", Path: filepath.Base(args[1])}}})
		if err != nil {
			return err
		}
		if onOutput != nil {
			onOutput("To track the changes with git, run:")
		}
		return os.WriteFile(target+dvc.MetadataSuffix, data, 0o644)
	}
	return nil
}

func TestEnsureRepoUsesNoSCMWithoutGit(t *testing.T) {
	repo := filepath.Join(t.TempDir(), "repo")
	fake := &fakeDVC{}
	client, err := dvc.New("dvc", repo, dvc.WithExecutor(fake))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	initialized, err := client.EnsureRepo(context.Background())
	if err != nil {
		t.Fatalf("EnsureRepo: %v", err)
	}
	if !initialized {
		t.Fatal("expected repository to be initialized")
	}
	if got := strings.Join(fake.calls[0], " "); got != "init --no-scm" {
		t.Fatalf("unexpected init args: %q", got)
	}

	initialized, err = client.EnsureRepo(context.Background())
	if err != nil {
		t.Fatalf("second EnsureRepo: %v", err)
	}
	if initialized || len(fake.calls) != 1 {
		t.Fatalf("expected second EnsureRepo to be a no-op, calls=%v", fake.calls)
	}
}

func TestEnsureRepoIntegratesWithGit(t *testing.T) {
	repo := t.TempDir()
	if err := os.Mkdir(filepath.Join(repo, ".git"), 0o755); err != nil {
		t.Fatal(err)
	}
	fake := &fakeDVC{}
	client, err := dvc.New("dvc", repo, dvc.WithExecutor(fake))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := client.EnsureRepo(context.Background()); err != nil {
		t.Fatalf("EnsureRepo: %v", err)
	}
	if got := strings.Join(fake.calls[0], " "); got != "init" {
		t.Fatalf("unexpected init args: %q", got)
	}
}

func TestAddProducesVerifiableMetadata(t *testing.T) {
	repo := t.TempDir()
	csvPath := filepath.Join(repo, "apod_data.csv")
	if err := os.WriteFile(csvPath, []byte("date,title\n2024-01-01,Moon\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	client, err := dvc.New("dvc", repo, dvc.WithExecutor(&fakeDVC{}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	metadataPath, err := client.Add(context.Background(), "apod_data.csv")
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if metadataPath != csvPath+".dvc" {
		t.Fatalf("unexpected metadata path: %s", metadataPath)
	}

	v, err := dvc.Verify(metadataPath, csvPath)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if !v.Matches() || v.Tracked.Path != "apod_data.csv" {
		t.Fatalf("unexpected verification: %+v", v)
	}

	if err := os.WriteFile(csvPath, []byte("date,title\n2024-01-02,Sun\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := dvc.Verify(metadataPath, csvPath); !errors.Is(err, dvc.ErrHashMismatch) {
		t.Fatalf("expected ErrHashMismatch after edit, got %v", err)
	}
}

func TestAddRejectsPathsOutsideRepo(t *testing.T) {
	client, err := dvc.New("dvc", t.TempDir(), dvc.WithExecutor(&fakeDVC{}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for _, path := range []string{"../escape.csv", "/abs/file.csv", "missing.csv"} {
		if _, err := client.Add(context.Background(), path); err == nil {
			t.Fatalf("expected error for %q", path)
		}
	}
}

func TestAddPropagatesExecutorError(t *testing.T) {
	repo := t.TempDir()
	if err := os.WriteFile(filepath.Join(repo, "a.csv"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	client, err := dvc.New("dvc", repo, dvc.WithExecutor(&fakeDVC{err: errors.New("boom")}))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := client.Add(context.Background(), "a.csv"); err == nil || !strings.Contains(err.Error(), "dvc add a.csv") {
		t.Fatalf("expected wrapped executor error, got %v", err)
	}
}

func TestReadMetadataParsesRealDVCFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "apod_data.csv.dvc")
	content := "outs:\n- md5: 0123456789abcdef0123456789abcdef\n  size: 42\n  hash: md5\n  path: apod_data.csv\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	meta, err := dvc.ReadMetadata(path)
	if err != nil {
		t.Fatalf("ReadMetadata: %v", err)
	}
	if len(meta.Outs) != 1 || meta.Outs[0].Size != 42 || meta.Outs[0].Hash != "md5" {
		t.Fatalf("unexpected metadata: %+v", meta)
	}

	empty := filepath.Join(t.TempDir(), "empty.dvc")
	if err := os.WriteFile(empty, []byte("outs: []\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := dvc.ReadMetadata(empty); err == nil {
		t.Fatal("expected error for metadata without outputs")
	}
}
