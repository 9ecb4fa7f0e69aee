package unit

import (
	"github.com/cuemby/nomad-bootstrap/pkg/system"
)

// FilePerm is the mode of the written unit file
const FilePerm = 0644

// Write renders spec and replaces the unit file wholesale. Nothing from a
// previous unit survives, so rerunning with new inputs converges.
func Write(path string, spec Spec) error {
	data, err := Render(spec)
	if err != nil {
		return err
	}
	return system.WriteFileAtomic(path, data, FilePerm)
}
