//go:build windows

package mmfile

import (
	"os"
)

// Map reads the file into memory. Windows file locking makes a plain read
// friendlier than a mapping held across the decode.
func Map(path string) ([]byte, func() error, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, func() error { return nil }, err
	}
	return data, func() error { return nil }, nil
}
