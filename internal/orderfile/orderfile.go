// Package orderfile moves a signed order between processes as a JSON file.
package orderfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/harshkas4na/VolatilityProtection/internal/lop"
)

// Load reads and verifies a signed order. found is false when path does not
// exist.
func Load(path string) (so *lop.SignedOrder, found bool, err error) {
	if path == "" {
		return nil, false, nil
	}

	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, err
	}

	var out lop.SignedOrder
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, true, fmt.Errorf("parse order file %s: %w", path, err)
	}
	if err := out.Verify(); err != nil {
		return nil, true, fmt.Errorf("order file %s: %w", path, err)
	}
	return &out, true, nil
}

// Save writes so atomically (temp file + rename).
func Save(path string, so *lop.SignedOrder) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	b, err := json.MarshalIndent(so, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
