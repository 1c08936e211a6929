//go:build !linux || (!arm && !arm64)

package sysled

import "fmt"

// Open is unsupported on non-Linux and/or non-ARM platforms.
func Open(chip string, pin int) (Pin, error) {
	return nil, fmt.Errorf("sysled: gpio unsupported on this platform")
}
