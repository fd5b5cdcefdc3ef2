package redact

import (
	"fmt"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/andresmejia3/redactor/internal/types"
)

// SortFrameKeys returns a copy of keys in natural order of their basenames,
// so "frame_2.jpg" sorts before "frame_10.jpg". Keys that compare equal keep
// their relative order.
func SortFrameKeys(keys []string) []string {
	sorted := make([]string, len(keys))
	copy(sorted, keys)

	parts := make(map[string][]string, len(keys))
	for _, k := range sorted {
		if _, ok := parts[k]; !ok {
			parts[k] = splitRuns(path.Base(k))
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return compareRuns(parts[sorted[i]], parts[sorted[j]]) < 0
	})
	return sorted
}

// ParseFrameIndex extracts the frame index from a key shaped
// "<prefix>_<index>.<ext>". The last digit run of the basename is used.
func ParseFrameIndex(key string) (int, error) {
	base := path.Base(key)
	stem := strings.TrimSuffix(base, path.Ext(base))
	runs := splitRuns(stem)
	for i := len(runs) - 1; i >= 0; i-- {
		if isDigits(runs[i]) {
			n, err := strconv.Atoi(runs[i])
			if err != nil {
				return 0, fmt.Errorf("%w: frame index in %q: %v", types.ErrInput, key, err)
			}
			return n, nil
		}
	}
	return 0, fmt.Errorf("%w: no frame index in key %q", types.ErrInput, key)
}

// splitRuns splits s into alternating non-digit and digit runs.
func splitRuns(s string) []string {
	var runs []string
	start := 0
	for i := 1; i < len(s); i++ {
		if isDigit(s[i-1]) != isDigit(s[i]) {
			runs = append(runs, s[start:i])
			start = i
		}
	}
	if len(s) > 0 {
		runs = append(runs, s[start:])
	}
	return runs
}

func compareRuns(a, b []string) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if c := compareRun(a[i], b[i]); c != 0 {
			return c
		}
	}
	return len(a) - len(b)
}

func compareRun(a, b string) int {
	if isDigits(a) && isDigits(b) {
		// Numeric compare without parsing, so long runs cannot overflow.
		ta, tb := strings.TrimLeft(a, "0"), strings.TrimLeft(b, "0")
		if len(ta) != len(tb) {
			return len(ta) - len(tb)
		}
		return strings.Compare(ta, tb)
	}
	return strings.Compare(a, b)
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !isDigit(s[i]) {
			return false
		}
	}
	return true
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
