// Package strategy persists the active allocation and orchestrates the
// optimization cycle.
package strategy

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/aristath/subnet-sentinel/internal/domain"
)

// Allocations below this fraction are dropped from the published file.
const fileDustThreshold = 0.001

// FileStore writes the active strategy to the per-hotkey file the network
// submission picks up. The format is a plain "netuid: fraction" line per
// entry, sorted by fraction descending — parsed strictly on read, never
// evaluated as code.
type FileStore struct {
	dir string
	log zerolog.Logger
}

// NewFileStore creates a file store rooted at dir.
func NewFileStore(dir string, log zerolog.Logger) *FileStore {
	return &FileStore{
		dir: dir,
		log: log.With().Str("component", "strategy_file").Logger(),
	}
}

// Path returns the strategy file path for a hotkey.
func (s *FileStore) Path(hotkey string) string {
	return filepath.Join(s.dir, hotkey+".strategy")
}

// Save writes the allocation map for a hotkey, dropping dust entries.
// The write goes through a temp file and rename so readers never observe a
// half-written strategy.
func (s *FileStore) Save(hotkey string, allocations domain.AllocationMap) error {
	if len(allocations) == 0 {
		return fmt.Errorf("refusing to save empty strategy for %s", hotkey)
	}
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create strategy directory: %w", err)
	}

	type entry struct {
		netuid     int
		allocation float64
	}
	entries := make([]entry, 0, len(allocations))
	for netuid, allocation := range allocations {
		if allocation < fileDustThreshold {
			continue
		}
		entries = append(entries, entry{netuid, allocation})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].allocation != entries[j].allocation {
			return entries[i].allocation > entries[j].allocation
		}
		return entries[i].netuid < entries[j].netuid
	})

	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "%d: %.4f\n", e.netuid, e.allocation)
	}

	path := s.Path(hotkey)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(b.String()), 0644); err != nil {
		return fmt.Errorf("failed to write strategy file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to move strategy file into place: %w", err)
	}

	s.log.Info().
		Str("hotkey", hotkey).
		Int("entries", len(entries)).
		Msg("Strategy file saved")
	return nil
}

// Load reads the allocation map for a hotkey. A missing file yields an empty
// map and no error (bootstrap case). A malformed line rejects the whole file.
func (s *FileStore) Load(hotkey string) (domain.AllocationMap, error) {
	f, err := os.Open(s.Path(hotkey))
	if os.IsNotExist(err) {
		return domain.AllocationMap{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open strategy file: %w", err)
	}
	defer f.Close()

	allocations := make(domain.AllocationMap)
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		netuid, allocation, err := parseLine(line)
		if err != nil {
			return nil, fmt.Errorf("malformed strategy file at line %d: %w", lineNo, err)
		}
		allocations[netuid] = allocation
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read strategy file: %w", err)
	}

	return allocations, nil
}

func parseLine(line string) (int, float64, error) {
	parts := strings.SplitN(line, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected 'netuid: fraction', got %q", line)
	}

	netuid, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, fmt.Errorf("invalid netuid %q: %w", parts[0], err)
	}

	allocation, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid allocation %q: %w", parts[1], err)
	}
	if allocation < 0 || allocation > 1 {
		return 0, 0, fmt.Errorf("allocation %.4f out of [0, 1]", allocation)
	}

	return netuid, allocation, nil
}
