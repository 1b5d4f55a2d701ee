package checks

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/exiloncms/exiloncms/internal/monitoring"
)

// Directories verifies that each named directory exists and accepts writes,
// which extension installs and backups require.
func Directories(dirs map[string]string) monitoring.Check {
	return monitoring.NewCheck("storage", func(ctx context.Context) monitoring.ProbeResult {
		names := make([]string, 0, len(dirs))
		for name := range dirs {
			names = append(names, name)
		}
		sort.Strings(names)

		var problems []string
		for _, name := range names {
			if err := writable(dirs[name]); err != nil {
				problems = append(problems, fmt.Sprintf("%s: %v", name, err))
			}
		}
		if len(problems) > 0 {
			return monitoring.ProbeResult{Status: monitoring.StatusDown, Details: strings.Join(problems, "; ")}
		}
		return monitoring.ProbeResult{Status: monitoring.StatusUp}
	})
}

func writable(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", dir)
	}
	f, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return err
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(filepath.Clean(name))
}
