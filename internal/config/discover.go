package config

import (
	"os"
	"path/filepath"
)

// Find walks up from start looking for a directory holding agentmem.yaml.
// It returns start itself when nothing is found.
func Find(start string) string {
	abs, err := filepath.Abs(start)
	if err != nil {
		return start
	}
	for dir := abs; ; {
		for _, name := range FileNames {
			if _, err := os.Stat(filepath.Join(dir, name)); err == nil {
				return dir
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return abs
		}
		dir = parent
	}
}
