// Package batch expands a chapter-range expression into concrete chapter
// URLs and fans translation work for each one across the Pipeline, per
// §4.9's Batch Orchestrator.
package batch

import (
	"sort"
	"strconv"
	"strings"

	"github.com/toonrelay/pipeline/internal/pipelineerr"
)

// ParseRange parses a comma-separated range expression — each item either a
// bare integer `N` or a bounded range `A-B` with A <= B, all integers >= 1 —
// into a sorted, deduplicated chapter-number list. Per §6's CLI surface
// grammar.
func ParseRange(expr string) ([]int, error) {
	seen := make(map[int]struct{})
	for _, item := range strings.Split(expr, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if lo, hi, ok := strings.Cut(item, "-"); ok {
			a, err := parsePositiveInt(lo)
			if err != nil {
				return nil, err
			}
			b, err := parsePositiveInt(hi)
			if err != nil {
				return nil, err
			}
			if a > b {
				return nil, pipelineerr.Wrap(pipelineerr.KindInvariant, "batch.ParseRange", "range start exceeds end: "+item)
			}
			for n := a; n <= b; n++ {
				seen[n] = struct{}{}
			}
			continue
		}
		n, err := parsePositiveInt(item)
		if err != nil {
			return nil, err
		}
		seen[n] = struct{}{}
	}

	out := make([]int, 0, len(seen))
	for n := range seen {
		out = append(out, n)
	}
	sort.Ints(out)
	return out, nil
}

func parsePositiveInt(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 1 {
		return 0, pipelineerr.Wrap(pipelineerr.KindInvariant, "batch.parsePositiveInt", "invalid chapter number: "+s)
	}
	return n, nil
}
