//go:build windows

package device

import (
	"fmt"

	"golang.org/x/sys/windows"
)

// osVersion returns the Windows version as major.minor.build.
func osVersion() string {
	v := windows.RtlGetVersion()
	if v == nil {
		return ""
	}
	return fmt.Sprintf("%d.%d.%d", v.MajorVersion, v.MinorVersion, v.BuildNumber)
}
