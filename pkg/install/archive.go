package install

import (
	"archive/zip"
	"fmt"
	"io"
	"path"
)

// maxBinarySize caps how much is read from a single archive entry
const maxBinarySize = 1 << 30

// extractBinary returns the contents of the entry whose base name is name.
// Entries larger than limit are rejected rather than truncated.
func extractBinary(archive, name string, limit int64) ([]byte, error) {
	r, err := zip.OpenReader(archive)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive %s: %w", archive, err)
	}
	defer r.Close()

	for _, f := range r.File {
		if f.FileInfo().IsDir() || path.Base(f.Name) != name {
			continue
		}

		if f.UncompressedSize64 > uint64(limit) {
			return nil, fmt.Errorf("%s in archive is %d bytes, over the %d byte limit", f.Name, f.UncompressedSize64, limit)
		}

		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open %s in archive: %w", f.Name, err)
		}
		defer rc.Close()

		data, err := io.ReadAll(io.LimitReader(rc, limit+1))
		if err != nil {
			return nil, fmt.Errorf("failed to extract %s: %w", f.Name, err)
		}
		if int64(len(data)) > limit {
			return nil, fmt.Errorf("%s in archive exceeds the %d byte limit", f.Name, limit)
		}
		return data, nil
	}

	return nil, fmt.Errorf("archive %s does not contain %s", archive, name)
}
