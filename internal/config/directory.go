package config

import (
	"strings"
	"sync/atomic"
)

// Directory holds the log directory shared by every request. Reads vastly
// outnumber writes, so it is an atomic pointer rather than a locked field.
// The zero value is an unconfigured directory.
type Directory struct {
	root atomic.Pointer[string]
}

// NewDirectory returns a Directory set to root, which may be empty.
func NewDirectory(root string) *Directory {
	d := &Directory{}
	d.SetRoot(root)
	return d
}

// Root returns the configured directory or "".
func (d *Directory) Root() string {
	if p := d.root.Load(); p != nil {
		return *p
	}
	return ""
}

// SetRoot replaces the configured directory.
func (d *Directory) SetRoot(root string) {
	d.root.Store(&root)
}

// IsConfigured reports whether a non-blank directory is set.
func (d *Directory) IsConfigured() bool {
	return strings.TrimSpace(d.Root()) != ""
}
