// Package snapshot persists the last good ranked result so a restart can
// show something before the first refresh completes.
package snapshot

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/unklstewy/overhead/pkg/flight"
)

const version = 1

// ErrVersion is returned when a snapshot was written by an incompatible build.
var ErrVersion = errors.New("snapshot: unsupported version")

type envelope struct {
	Version int                 `msgpack:"version"`
	Result  flight.RankedResult `msgpack:"result"`
}

// File stores a RankedResult as zstd-compressed msgpack.
type File struct {
	path string
}

func NewFile(path string) *File {
	return &File{path: path}
}

func (f *File) Path() string { return f.path }

// Save atomically replaces the snapshot with r.
func (f *File) Save(r flight.RankedResult) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(f.path), ".snapshot-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	zw, err := zstd.NewWriter(tmp, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return err
	}
	if err := msgpack.NewEncoder(zw).Encode(envelope{Version: version, Result: r}); err != nil {
		zw.Close()
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := zw.Close(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), f.path)
}

// Load returns the stored result. A missing file yields the zero result
// and no error.
func (f *File) Load() (flight.RankedResult, error) {
	fh, err := os.Open(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return flight.RankedResult{}, nil
	} else if err != nil {
		return flight.RankedResult{}, err
	}
	defer fh.Close()

	zr, err := zstd.NewReader(fh)
	if err != nil {
		return flight.RankedResult{}, err
	}
	defer zr.Close()

	var env envelope
	if err := msgpack.NewDecoder(zr).Decode(&env); err != nil {
		return flight.RankedResult{}, fmt.Errorf("decode snapshot: %w", err)
	}
	if env.Version != version {
		return flight.RankedResult{}, ErrVersion
	}
	return env.Result, nil
}
