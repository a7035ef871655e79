package channel

import (
	"os"
	"path/filepath"
	"strconv"
)

// Channels live under a shared-memory root, one subdirectory per process
// id. A relative socket or channel name resolves against the pid
// directory of the process that owns it.

const ChannelName = "config-follower-channel"

// DefaultRoot is where rings and control sockets are created unless the
// caller overrides it.
func DefaultRoot() string {
	return "/dev/shm/ptree"
}

// PidDir returns (and creates) the per-process directory under root.
func PidDir(root string, pid int) (string, error) {
	dir := filepath.Join(root, strconv.Itoa(pid))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// FollowerPath is the ring location for a follower process.
func FollowerPath(root string, pid int) string {
	return filepath.Join(root, strconv.Itoa(pid), ChannelName)
}
