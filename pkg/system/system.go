// Package system isolates the side effects bootstrap performs on the host:
// running commands, resolving executables, and managing users and ownership.
package system

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/user"
	"strconv"
	"strings"
)

// ErrUnknownUser is returned by LookupUser when the account does not exist
var ErrUnknownUser = errors.New("unknown user")

// Account is a resolved OS user
type Account struct {
	Name    string
	UID     int
	GID     int
	HomeDir string
}

// System is the host effect layer
type System interface {
	// LookPath resolves an executable on the command search path
	LookPath(file string) (string, error)

	// Run executes a command and returns its combined output
	Run(ctx context.Context, name string, args ...string) ([]byte, error)

	// LookupUser resolves an account, returning ErrUnknownUser if absent
	LookupUser(name string) (*Account, error)

	// Chown changes ownership of path without following symlinks
	Chown(path string, uid, gid int) error
}

// OS is the real host implementation
type OS struct{}

// NewOS returns the host implementation
func NewOS() *OS {
	return &OS{}
}

func (o *OS) LookPath(file string) (string, error) {
	return exec.LookPath(file)
}

func (o *OS) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	// #nosec G204 - commands are fixed tool names with validated arguments
	cmd := exec.CommandContext(ctx, name, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return out, fmt.Errorf("%s %s failed: %w output=%s", name, strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return out, nil
}

func (o *OS) LookupUser(name string) (*Account, error) {
	u, err := user.Lookup(name)
	if err != nil {
		var unknown user.UnknownUserError
		if errors.As(err, &unknown) {
			return nil, fmt.Errorf("%w: %s", ErrUnknownUser, name)
		}
		return nil, fmt.Errorf("failed to look up user %s: %w", name, err)
	}

	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return nil, fmt.Errorf("user %s has non-numeric uid %q", name, u.Uid)
	}
	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		return nil, fmt.Errorf("user %s has non-numeric gid %q", name, u.Gid)
	}

	return &Account{Name: u.Username, UID: uid, GID: gid, HomeDir: u.HomeDir}, nil
}

func (o *OS) Chown(path string, uid, gid int) error {
	return os.Lchown(path, uid, gid)
}
