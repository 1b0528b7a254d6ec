package adapters

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/cognicore/curiemap/pkg/curiemap/internalerr"
)

// PubTator parses the PubTator central bioconcepts TSV:
// PMID \t Type \t Concept ID \t Mentions \t Resource.
// Concept IDs may be semicolon-delimited; each is emitted as its own pair.
type PubTator struct{}

// Name implements Adapter.
func (PubTator) Name() string { return "pubtator" }

const pubtatorColumns = 5

// ParseLine implements Adapter.
func (PubTator) ParseLine(line string) ([]Pair, int, error) {
	if line == "" {
		return nil, 0, nil
	}
	parts := strings.Split(line, "\t")
	if len(parts) != pubtatorColumns {
		return nil, 0, fmt.Errorf("%w: pubtator line has %d columns", internalerr.ErrParse, len(parts))
	}
	pmid, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: pubtator pmid %q", internalerr.ErrParse, parts[0])
	}
	entityType := parts[1]

	var pairs []Pair
	var dropped int
	for _, conceptID := range strings.Split(parts[2], ";") {
		conceptID = strings.TrimSpace(conceptID)
		if conceptID == "" {
			continue
		}
		curie, pattern, unknown, ok := conceptToCURIE(conceptID, entityType)
		if !ok {
			dropped++
			continue
		}
		pairs = append(pairs, Pair{CURIE: curie, PMID: pmid, Pattern: pattern, Unknown: unknown})
	}
	return pairs, dropped, nil
}

// conceptToCURIE converts a PubTator concept ID to CURIE form using the
// entity type for bare-number prefix inference.
func conceptToCURIE(conceptID, entityType string) (curie, pattern, unknown string, ok bool) {
	if conceptID == "-" || strings.TrimSpace(conceptID) == "" {
		return "", "", "", false
	}

	// Already a CURIE.
	if strings.Contains(conceptID, ":") {
		return conceptID, "", "", true
	}

	// Bare number: infer the prefix from the entity type.
	if isDigits(conceptID) {
		switch strings.ToLower(entityType) {
		case "species":
			return "NCBITaxon:" + conceptID, "Species->NCBITaxon", "", true
		case "gene":
			return "NCBIGene:" + conceptID, "Gene->NCBIGene", "", true
		case "disease":
			return "OMIM:" + conceptID, "Disease->OMIM", "", true
		case "chemical":
			// Numeric chemical IDs have no recoverable namespace.
			curie = "UNKNOWN_CHEMICAL:" + conceptID
			return curie, "Chemical->UNKNOWN", curie, true
		default:
			curie = "UNKNOWN_" + strings.ToUpper(entityType) + ":" + conceptID
			return curie, entityType + "->UNKNOWN", curie, true
		}
	}

	// Cellosaurus cell lines arrive as CVCL_ accessions.
	if strings.HasPrefix(conceptID, "CVCL_") {
		return strings.Replace(conceptID, "CVCL_", "Cellosaurus:", 1), "CVCL_->Cellosaurus", "", true
	}

	// Anything else passes through as-is but is flagged for analysis.
	return conceptID, entityType + "->OTHER", "OTHER_" + strings.ToUpper(entityType) + ":" + conceptID, true
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
