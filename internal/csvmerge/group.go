package csvmerge

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
)

// ErrInputDirNotFound signals that the scanned directory does not exist.
// Callers treat it as "nothing to do" rather than as a failure.
var ErrInputDirNotFound = errors.New("input directory not found")

// exportPattern matches TradingView exports such as "CRYPTO_BTCUSD, 60.csv" and
// "CRYPTO_BTCUSD, 60 (1).csv".
var exportPattern = regexp.MustCompile(`(?i)^.*,\s*(\d+|1D)(\s*\(\d+\))?\.csv$`)

// Groups maps a raw timeframe token to its ordered source files.
type Groups map[string][]string

// Timeframes returns the group keys in ascending lexicographic order.
func (g Groups) Timeframes() []string {
	keys := make([]string, 0, len(g))
	for k := range g {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MatchExport reports whether name follows the export naming convention and,
// if so, its timeframe token and whether it carries a duplicate-index suffix.
func MatchExport(name string) (timeframe string, duplicate bool, ok bool) {
	m := exportPattern.FindStringSubmatch(name)
	if m == nil {
		return "", false, false
	}
	return m[1], m[2] != "", true
}

// DetectGroups scans dir (non-recursively) and groups matching exports by
// timeframe. Within a group base exports come first, then numbered duplicates,
// each ordered by file name.
func DetectGroups(dir string) (Groups, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Groups{}, fmt.Errorf("%w: %s", ErrInputDirNotFound, dir)
		}
		return nil, fmt.Errorf("read input dir: %w", err)
	}

	type candidate struct {
		name      string
		duplicate bool
	}
	buckets := make(map[string][]candidate)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		tf, dup, ok := MatchExport(entry.Name())
		if !ok {
			continue
		}
		buckets[tf] = append(buckets[tf], candidate{name: entry.Name(), duplicate: dup})
	}

	groups := make(Groups, len(buckets))
	for tf, files := range buckets {
		sort.SliceStable(files, func(i, j int) bool {
			if files[i].duplicate != files[j].duplicate {
				return !files[i].duplicate
			}
			return files[i].name < files[j].name
		})
		paths := make([]string, len(files))
		for i, f := range files {
			paths[i] = filepath.Join(dir, f.name)
		}
		groups[tf] = paths
	}
	return groups, nil
}

// FindMatching lists CSV files in dir whose names contain a variant of symbol and
// a variant of timeframe, case-insensitively. Previously merged outputs are
// skipped. Results are ordered like DetectGroups: files without a duplicate
// suffix first, then by name.
func FindMatching(dir, symbol, timeframe string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read folder: %w", err)
	}

	symbols := []string{
		symbol,
		strings.ReplaceAll(symbol, "_", ""),
		strings.ReplaceAll(symbol, "_", "-"),
		strings.ReplaceAll(symbol, "/", "_"),
		strings.ReplaceAll(symbol, "/", ""),
	}
	timeframes := []string{timeframe}

	var matches []string
	for _, entry := range entries {
		lower := strings.ToLower(entry.Name())
		if entry.IsDir() || !strings.HasSuffix(lower, ".csv") || strings.HasSuffix(lower, mergedSuffix) {
			continue
		}
		upper := strings.ToUpper(entry.Name())
		if containsAny(upper, symbols) && containsAny(upper, timeframes) {
			matches = append(matches, filepath.Join(dir, entry.Name()))
		}
	}
	sort.SliceStable(matches, func(i, j int) bool {
		di, dj := isDuplicateExport(matches[i]), isDuplicateExport(matches[j])
		if di != dj {
			return !di
		}
		return matches[i] < matches[j]
	})
	return matches, nil
}

const mergedSuffix = "_merged.csv"

func isDuplicateExport(path string) bool {
	_, duplicate, _ := MatchExport(filepath.Base(path))
	return duplicate
}

func containsAny(upper string, needles []string) bool {
	for _, n := range needles {
		if n != "" && strings.Contains(upper, strings.ToUpper(n)) {
			return true
		}
	}
	return false
}
