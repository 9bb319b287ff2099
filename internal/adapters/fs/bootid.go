package fs

import (
	"os"
	"strings"
)

// DefaultBootIDPath is where Linux exposes the id of the running boot.
const DefaultBootIDPath = "/proc/sys/kernel/random/boot_id"

// ReadBootID returns the kernel boot id, or "" if it cannot be read.
func ReadBootID(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
