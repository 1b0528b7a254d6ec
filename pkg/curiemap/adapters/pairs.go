package adapters

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cognicore/curiemap/pkg/curiemap/internalerr"
)

// Pairs parses pre-extracted two-column dumps: curie \t pmid.
type Pairs struct{}

// Name implements Adapter.
func (Pairs) Name() string { return "pairs" }

// ParseLine implements Adapter.
func (Pairs) ParseLine(line string) ([]Pair, int, error) {
	if line == "" {
		return nil, 0, nil
	}
	parts := strings.Split(line, "\t")
	if len(parts) != 2 {
		return nil, 0, fmt.Errorf("%w: pairs line has %d columns", internalerr.ErrParse, len(parts))
	}
	curie := strings.TrimSpace(parts[0])
	if curie == "" {
		return nil, 0, fmt.Errorf("%w: pairs line has empty curie", internalerr.ErrParse)
	}
	pmid, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: pairs pmid %q", internalerr.ErrParse, parts[1])
	}
	return []Pair{{CURIE: curie, PMID: pmid}}, 0, nil
}
