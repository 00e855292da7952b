package dotenv

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

// Load reads the first .env file that exists. With no paths it looks in the
// working directory and then its parent, so tools run from a subdirectory
// still pick up the repository's .env. Variables already set in the
// environment win.
func Load(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env", "../.env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
		return nil
	}
	return nil
}
