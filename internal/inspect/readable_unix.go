//go:build unix

package inspect

import "golang.org/x/sys/unix"

// Readable asks the kernel whether the process may read path, without
// opening it.
func Readable(path string) bool {
	return unix.Access(path, unix.R_OK) == nil
}
