package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"docsync/internal/logging"
)

// SweepStale removes core-asset partitions from previous generations. It runs
// on daemon start so a deploy that bumps CoreVersion reclaims the old
// partition. Document partitions hold user-requested offline documents and
// are deliberately left untouched.
func (s *Store) SweepStale() (int, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("read cache root: %w", err)
	}

	current := CorePartition()
	removed := 0
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		name := entry.Name()
		if !strings.HasPrefix(name, corePartitionPrefix+"-") || name == current {
			continue
		}
		if err := os.RemoveAll(filepath.Join(s.root, name)); err != nil {
			return removed, fmt.Errorf("remove stale partition %s: %w", name, err)
		}
		removed++
		s.logger.Info("removed stale core partition", logging.String("partition", name))
	}
	return removed, nil
}
