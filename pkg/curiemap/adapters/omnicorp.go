package adapters

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/cognicore/curiemap/pkg/curiemap/internalerr"
)

// OmniCorp parses OmniCorp TSV exports: PubMed article URL \t entity IRI.
// IRIs are rewritten to CURIE form per the ontology-specific rules below;
// unrecognized IRIs pass through unchanged and are flagged for analysis.
type OmniCorp struct{}

// Name implements Adapter.
func (OmniCorp) Name() string { return "omnicorp" }

// ParseLine implements Adapter.
func (OmniCorp) ParseLine(line string) ([]Pair, int, error) {
	if line == "" {
		return nil, 0, nil
	}
	parts := strings.Split(line, "\t")
	if len(parts) != 2 {
		return nil, 0, fmt.Errorf("%w: omnicorp line has %d columns", internalerr.ErrParse, len(parts))
	}
	pmid, ok := pmidFromURL(parts[0])
	if !ok {
		return nil, 1, nil
	}
	curie, prefix, unknown := iriToCURIE(parts[1])
	return []Pair{{CURIE: curie, PMID: pmid, Pattern: prefix, Unknown: unknown}}, 0, nil
}

var pubmedURLRe = regexp.MustCompile(`/pubmed/(\d+)$`)

// pmidFromURL extracts the PMID from a PubMed article URL such as
// https://www.ncbi.nlm.nih.gov/pubmed/3963809.
func pmidFromURL(url string) (int64, bool) {
	m := pubmedURLRe.FindStringSubmatch(url)
	if m == nil {
		return 0, false
	}
	pmid, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, false
	}
	return pmid, true
}

var (
	oboRe      = regexp.MustCompile(`purl\.obolibrary\.org/obo/([A-Z]+)_([A-Za-z0-9_]+)`)
	hgncOldRe  = regexp.MustCompile(`genenames\.org/cgi-bin/gene_symbol_report\?hgnc_id=(\d+)`)
	hgncNewRe  = regexp.MustCompile(`genenames\.org/data/gene-symbol-report/#!/hgnc_id/HGNC:(\d+)`)
	rgdRe      = regexp.MustCompile(`rgd\.mcw\.edu/rgdweb/report/gene/main\.html\?id=(\d+)`)
	orphanetRe = regexp.MustCompile(`orpha\.net/ORDO/Orphanet_(\d+)`)
	wormbaseRe = regexp.MustCompile(`wormbase\.org/species/c_elegans/gene/(WBGene\d+)`)
)

// iriToCURIE rewrites an entity IRI to CURIE form. The second return value
// is the namespace label for conversion statistics; the third is non-empty
// when the IRI did not match any rule.
func iriToCURIE(iri string) (curie, prefix, unknown string) {
	// CHEBI: http://purl.obolibrary.org/obo/CHEBI_17822 -> CHEBI:17822
	if strings.Contains(iri, "purl.obolibrary.org/obo/CHEBI_") {
		return strings.Replace(iri, "http://purl.obolibrary.org/obo/CHEBI_", "CHEBI:", 1), "CHEBI", ""
	}
	// MESH: http://id.nlm.nih.gov/mesh/D014346 -> MESH:D014346
	if strings.Contains(iri, "id.nlm.nih.gov/mesh/") {
		return strings.Replace(iri, "http://id.nlm.nih.gov/mesh/", "MESH:", 1), "MESH", ""
	}
	// Generic OBO: http://purl.obolibrary.org/obo/NCIT_C12378 -> NCIT:C12378
	if m := oboRe.FindStringSubmatch(iri); m != nil {
		return m[1] + ":" + m[2], m[1], ""
	}
	// dictyBase: http://dictybase.org/gene/DDB_G0268618 -> dictyBase:DDB_G0268618
	if strings.Contains(iri, "dictybase.org/gene/") {
		return "dictyBase:" + lastSegment(iri, "/gene/"), "dictyBase", ""
	}
	// FlyBase: http://flybase.org/reports/FBgn0013717 -> FB:FBgn0013717
	if strings.Contains(iri, "flybase.org/reports/") {
		return "FB:" + lastSegment(iri, "/reports/"), "FB", ""
	}
	// HGNC: http://identifiers.org/hgnc/10001 -> HGNC:10001
	if strings.Contains(iri, "identifiers.org/hgnc/") {
		return "HGNC:" + lastSegment(iri, "/hgnc/"), "HGNC", ""
	}
	if m := hgncOldRe.FindStringSubmatch(iri); m != nil {
		return "HGNC:" + m[1], "HGNC", ""
	}
	if m := hgncNewRe.FindStringSubmatch(iri); m != nil {
		return "HGNC:" + m[1], "HGNC", ""
	}
	// RGD: http://rgd.mcw.edu/rgdweb/report/gene/main.html?id=11414885 -> RGD:11414885
	if m := rgdRe.FindStringSubmatch(iri); m != nil {
		return "RGD:" + m[1], "RGD", ""
	}
	// EFO: http://www.ebi.ac.uk/efo/EFO_0000174 -> EFO:0000174
	if strings.Contains(iri, "ebi.ac.uk/efo/EFO_") {
		return "EFO:" + lastSegment(iri, "/EFO_"), "EFO", ""
	}
	// MGI: http://www.informatics.jax.org/marker/MGI:101783 -> MGI:101783
	if strings.Contains(iri, "informatics.jax.org/marker/MGI:") {
		return lastSegment(iri, "/marker/"), "MGI", ""
	}
	// NCBIGene: http://www.ncbi.nlm.nih.gov/gene/100135518 -> NCBIGene:100135518
	if strings.Contains(iri, "ncbi.nlm.nih.gov/gene/") {
		return "NCBIGene:" + lastSegment(iri, "/gene/"), "NCBIGene", ""
	}
	// Orphanet: http://www.orpha.net/ORDO/Orphanet_101000 -> orphanet:101000
	if m := orphanetRe.FindStringSubmatch(iri); m != nil {
		return "orphanet:" + m[1], "orphanet", ""
	}
	// WormBase: .../species/c_elegans/gene/WBGene00007403 -> WormBase:WBGene00007403
	if m := wormbaseRe.FindStringSubmatch(iri); m != nil {
		return "WormBase:" + m[1], "WormBase", ""
	}
	// SGD: http://www.yeastgenome.org/locus/S000003272 -> SGD:S000003272
	if strings.Contains(iri, "yeastgenome.org/locus/") {
		return "SGD:" + lastSegment(iri, "/locus/"), "SGD", ""
	}
	// ZFIN: http://zfin.org/action/marker/view/ZDB-GENE-001222-1 -> ZFIN:ZDB-GENE-001222-1
	if strings.Contains(iri, "zfin.org/action/marker/view/") {
		return "ZFIN:" + lastSegment(iri, "/view/"), "ZFIN", ""
	}

	// Unknown IRI shape: pass through as-is, flag for analysis.
	return iri, "UNKNOWN", iri
}

func lastSegment(iri, sep string) string {
	idx := strings.LastIndex(iri, sep)
	return iri[idx+len(sep):]
}
