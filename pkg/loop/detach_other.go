//go:build !unix

package loop

import "fmt"

// Detached reports whether this process is the re-spawned background child.
func Detached() bool { return false }

// Detach is unsupported outside unix; session detachment relies on setsid.
func Detach(string) (int, error) {
	return 0, fmt.Errorf("detached mode is only supported on unix platforms")
}
