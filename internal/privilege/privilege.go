// Package privilege keeps files written by a sudo-elevated threadprobe owned by
// the user who invoked it.
package privilege

import (
	"fmt"
	"os"
	"os/user"
	"strconv"
)

// UserContext is the identity files should belong to.
type UserContext struct {
	Username string
	UID      int
	GID      int
	HomeDir  string
}

// DetectOriginalUser returns the user that invoked sudo, read from
// SUDO_USER/SUDO_UID/SUDO_GID, or the current user otherwise.
func DetectOriginalUser() (*UserContext, error) {
	sudoUser := os.Getenv("SUDO_USER")
	if sudoUser == "" {
		return currentUser()
	}

	uidStr, gidStr := os.Getenv("SUDO_UID"), os.Getenv("SUDO_GID")
	if uidStr == "" || gidStr == "" {
		return nil, fmt.Errorf("SUDO_USER set but SUDO_UID or SUDO_GID missing")
	}
	uid, err := strconv.Atoi(uidStr)
	if err != nil {
		return nil, fmt.Errorf("invalid SUDO_UID: %w", err)
	}
	gid, err := strconv.Atoi(gidStr)
	if err != nil {
		return nil, fmt.Errorf("invalid SUDO_GID: %w", err)
	}

	ctx := &UserContext{Username: sudoUser, UID: uid, GID: gid}
	if u, err := user.Lookup(sudoUser); err == nil {
		ctx.HomeDir = u.HomeDir
	}
	return ctx, nil
}

func currentUser() (*UserContext, error) {
	u, err := user.Current()
	if err != nil {
		return nil, fmt.Errorf("failed to get current user: %w", err)
	}
	return &UserContext{
		Username: u.Username,
		UID:      os.Getuid(),
		GID:      os.Getgid(),
		HomeDir:  u.HomeDir,
	}, nil
}

// IsRoot reports whether the effective UID is 0.
func IsRoot() bool {
	return os.Geteuid() == 0
}

// FixFileOwnership hands path back to the original user when running as root.
// It does nothing for unprivileged processes.
func FixFileOwnership(path string) error {
	if !IsRoot() {
		return nil
	}

	userCtx, err := DetectOriginalUser()
	if err != nil {
		return fmt.Errorf("failed to detect original user: %w", err)
	}
	if err := os.Chown(path, userCtx.UID, userCtx.GID); err != nil {
		return fmt.Errorf("failed to chown %s to %d:%d: %w", path, userCtx.UID, userCtx.GID, err)
	}
	return nil
}
