package agentconfig

import (
	"fmt"

	"github.com/cuemby/nomad-bootstrap/pkg/system"
	"github.com/cuemby/nomad-bootstrap/pkg/types"
)

// FilePerm is the mode of the written configuration file
const FilePerm = 0644

// Writer persists an encoded document and hands it to the run-as user
type Writer struct {
	sys system.System
}

// NewWriter creates a writer on top of the given effect layer
func NewWriter(sys system.System) *Writer {
	return &Writer{sys: sys}
}

// Write replaces path with data and chowns it to owner. The owner is
// resolved first so an unknown user leaves the old file untouched.
func (w *Writer) Write(path string, data []byte, owner string) error {
	acct, err := w.sys.LookupUser(owner)
	if err != nil {
		return types.NewError(types.KindEnvironment, "write configuration", err)
	}

	if err := system.WriteFileAtomic(path, data, FilePerm); err != nil {
		return err
	}

	if err := w.sys.Chown(path, acct.UID, acct.GID); err != nil {
		return fmt.Errorf("failed to chown %s to %s: %w", path, owner, err)
	}
	return nil
}
