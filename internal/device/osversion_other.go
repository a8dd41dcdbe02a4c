//go:build !linux && !darwin && !freebsd && !netbsd && !openbsd && !windows

package device

func osVersion() string {
	return ""
}
