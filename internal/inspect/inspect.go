// Package inspect takes cheap metadata snapshots of log files and performs
// the bounded content reads the tail engine needs.
package inspect

import (
	"io"
	"os"
	"time"

	"github.com/tripwire/logviewer/internal/fault"
)

// Snapshot is the metadata of one file at one instant. A Snapshot is never
// mutated after Stat returns it.
type Snapshot struct {
	Exists    bool
	IsRegular bool
	Readable  bool
	Size      int64
	ModTime   time.Time
}

// Local inspects files on the host filesystem. The zero value is ready to use.
type Local struct{}

// Stat returns a Snapshot of path. It never fails: a missing file yields
// Exists=false, and any other stat failure yields a snapshot that exists but
// is neither regular nor readable.
func (Local) Stat(path string) Snapshot {
	return Stat(path)
}

// ReadAll implements the whole-file read used for init and reload events.
func (Local) ReadAll(path string) ([]byte, error) {
	return ReadAll(path)
}

// ReadRange implements the exact-length read used for update events.
func (Local) ReadRange(path string, from, length int64) ([]byte, error) {
	return ReadRange(path, from, length)
}

// Stat is the package-level form of Local.Stat.
func Stat(path string) Snapshot {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Snapshot{}
		}
		return Snapshot{Exists: true}
	}
	snap := Snapshot{
		Exists:    true,
		IsRegular: info.Mode().IsRegular(),
		Size:      info.Size(),
		ModTime:   info.ModTime(),
	}
	if snap.IsRegular {
		snap.Readable = Readable(path)
	}
	return snap
}

// ReadAll returns the full content of path. Failures are classified.
func ReadAll(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fault.Classify(err)
	}
	return data, nil
}

// ReadRange reads exactly length bytes of path starting at offset from. A
// file that ends before from+length is reported as IO_ERROR rather than
// returning fewer bytes.
func ReadRange(path string, from, length int64) ([]byte, error) {
	if from < 0 || length < 0 {
		return nil, fault.New(fault.IOError, "invalid read range")
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fault.Classify(err)
	}
	defer f.Close()

	buf := make([]byte, length)
	if _, err := io.ReadFull(io.NewSectionReader(f, from, length), buf); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, fault.Wrap(fault.IOError, "file shorter than expected", err)
		}
		return nil, fault.Classify(err)
	}
	return buf, nil
}
