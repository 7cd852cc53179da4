// Package privilege implements the one-shot privilege drop the
// listener performs after binding the (possibly privileged) listening
// port: group first, then user, using the real/effective/saved-set
// identity primitive so the process cannot re-escalate afterward.
package privilege

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Drop sets the process's real, effective, and saved group and user
// IDs to gid/uid. If the process is already unprivileged on a given
// axis (neither its real nor effective ID is root for that axis), the
// drop for that axis is skipped. Group is always dropped before user,
// since once the user ID is dropped the process may no longer be able
// to change its group.
func Drop(uid, gid int) error {
	if needsGroupDrop() {
		if err := unix.Setresgid(gid, gid, gid); err != nil {
			return fmt.Errorf("privilege: setresgid(%d): %w", gid, err)
		}
	}
	if needsUserDrop() {
		if err := unix.Setresuid(uid, uid, uid); err != nil {
			return fmt.Errorf("privilege: setresuid(%d): %w", uid, err)
		}
	}
	return nil
}

func needsGroupDrop() bool {
	return unix.Getgid() == 0 || unix.Getegid() == 0
}

func needsUserDrop() bool {
	return unix.Getuid() == 0 || unix.Geteuid() == 0
}
