package system

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
)

// Fake is an in-memory System for tests. useradd invocations create the
// account so repeated runs observe it; every command is recorded.
type Fake struct {
	mu sync.Mutex

	// Paths maps executable names to resolved paths
	Paths map[string]string

	// SearchDirs are scanned for executables not listed in Paths
	SearchDirs []string

	// Users holds the known accounts
	Users map[string]*Account

	// Commands records every Run invocation as name followed by args
	Commands [][]string

	// RunFunc overrides command execution when set
	RunFunc func(name string, args ...string) ([]byte, error)

	// Owners records the last Chown for each path
	Owners map[string][2]int

	nextUID int
}

// NewFake creates an empty fake host
func NewFake() *Fake {
	return &Fake{
		Paths:   make(map[string]string),
		Users:   make(map[string]*Account),
		Owners:  make(map[string][2]int),
		nextUID: 1000,
	}
}

func (f *Fake) LookPath(file string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if p, ok := f.Paths[file]; ok {
		return p, nil
	}
	for _, dir := range f.SearchDirs {
		candidate := filepath.Join(dir, file)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}
	return "", &exec.Error{Name: file, Err: exec.ErrNotFound}
}

func (f *Fake) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	f.mu.Lock()
	f.Commands = append(f.Commands, append([]string{name}, args...))
	runFunc := f.RunFunc
	f.mu.Unlock()

	if runFunc != nil {
		return runFunc(name, args...)
	}

	if name == "useradd" && len(args) > 0 {
		username := args[len(args)-1]
		f.mu.Lock()
		f.nextUID++
		f.Users[username] = &Account{Name: username, UID: f.nextUID, GID: f.nextUID}
		f.mu.Unlock()
	}
	return nil, nil
}

func (f *Fake) LookupUser(name string) (*Account, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if acct, ok := f.Users[name]; ok {
		copied := *acct
		return &copied, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownUser, name)
}

func (f *Fake) Chown(path string, uid, gid int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Owners[path] = [2]int{uid, gid}
	return nil
}

// AddUser registers an existing account
func (f *Fake) AddUser(name string, uid, gid int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Users[name] = &Account{Name: name, UID: uid, GID: gid}
}

// CommandLines returns the recorded commands joined with spaces
func (f *Fake) CommandLines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	lines := make([]string, 0, len(f.Commands))
	for _, c := range f.Commands {
		lines = append(lines, strings.Join(c, " "))
	}
	return lines
}

// Ran reports whether a command with the given prefix was recorded
func (f *Fake) Ran(prefix string) bool {
	for _, line := range f.CommandLines() {
		if strings.HasPrefix(line, prefix) {
			return true
		}
	}
	return false
}
