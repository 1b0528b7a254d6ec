// Package adapters holds the closed set of source-format parsers. Each
// adapter turns one raw input line into zero or more CURIE→PMID pairs and
// is pure: no state, no I/O, the same line always yields the same pairs.
package adapters

import (
	"fmt"

	"github.com/cognicore/curiemap/pkg/curiemap/internalerr"
)

// Pair is a single literature association extracted from a raw line.
type Pair struct {
	CURIE string
	PMID  int64
	// Pattern labels how the CURIE was constructed, e.g.
	// "Species->NCBITaxon". Empty for identifiers taken as-is.
	Pattern string
	// Unknown carries the unresolved-pattern token for the unknown sink
	// when the construction could not be mapped to a real namespace.
	Unknown string
}

// Format selects an adapter from the closed set of supported sources.
type Format string

const (
	// FormatPubTator is the PubTator central TSV dump:
	// PMID, Type, Concept ID, Mentions, Resource.
	FormatPubTator Format = "pubtator"
	// FormatOmniCorp is the OmniCorp TSV export: PubMed URL, entity IRI.
	FormatOmniCorp Format = "omnicorp"
	// FormatPairs is a pre-extracted two-column curie\tpmid TSV.
	FormatPairs Format = "pairs"
)

// Adapter parses one raw line into association pairs.
type Adapter interface {
	Name() string
	// ParseLine returns the pairs found on the line plus the number of
	// concept mentions dropped as invalid. A malformed line returns an
	// error wrapping internalerr.ErrParse; callers count and skip it.
	ParseLine(line string) (pairs []Pair, dropped int, err error)
}

// ForFormat returns the adapter for a supported format.
func ForFormat(f Format) (Adapter, error) {
	switch f {
	case FormatPubTator:
		return PubTator{}, nil
	case FormatOmniCorp:
		return OmniCorp{}, nil
	case FormatPairs:
		return Pairs{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown source format %q", internalerr.ErrInvalidConfig, f)
	}
}
