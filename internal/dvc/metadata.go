package dvc

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"apodpipe/internal/fileutil"
)

// ErrHashMismatch reports a data file whose content no longer matches the
// hash recorded in its metadata.
var ErrHashMismatch = errors.New("dvc hash mismatch")

// Output is one tracked entry of a .dvc file.
type Output struct {
	MD5  string `yaml:"md5"`
	Size int64  `yaml:"size"`
	Hash string `yaml:"hash,omitempty"`
	Path string `yaml:"path"`
}

// Metadata is the parsed content of a .dvc file.
type Metadata struct {
	Outs []Output `yaml:"outs"`
}

// ReadMetadata parses the .dvc file at path.
func ReadMetadata(path string) (Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("read dvc metadata: %w", err)
	}
	var meta Metadata
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return Metadata{}, fmt.Errorf("parse dvc metadata %s: %w", path, err)
	}
	if len(meta.Outs) == 0 {
		return Metadata{}, fmt.Errorf("dvc metadata %s lists no outputs", path)
	}
	return meta, nil
}

// Verification compares a metadata entry with the file it tracks.
type Verification struct {
	Tracked    Output
	ActualMD5  string
	ActualSize int64
}

// Matches reports whether the file content still matches the tracked hash.
func (v Verification) Matches() bool {
	return strings.EqualFold(v.Tracked.MD5, v.ActualMD5) && v.Tracked.Size == v.ActualSize
}

// Verify recomputes the MD5 of dataPath and compares it with the first output
// recorded in metadataPath. A mismatch returns the verification together with
// ErrHashMismatch.
func Verify(metadataPath, dataPath string) (Verification, error) {
	meta, err := ReadMetadata(metadataPath)
	if err != nil {
		return Verification{}, err
	}
	sum, size, err := fileutil.MD5File(dataPath)
	if err != nil {
		return Verification{}, fmt.Errorf("hash tracked file: %w", err)
	}
	v := Verification{Tracked: meta.Outs[0], ActualMD5: sum, ActualSize: size}
	if !v.Matches() {
		return v, fmt.Errorf("%w: %s tracked md5 %s (%d bytes), file has %s (%d bytes)",
			ErrHashMismatch, dataPath, v.Tracked.MD5, v.Tracked.Size, sum, size)
	}
	return v, nil
}
