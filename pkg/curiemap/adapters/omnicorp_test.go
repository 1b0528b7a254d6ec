package adapters

import (
	"errors"
	"testing"

	"github.com/cognicore/curiemap/pkg/curiemap/internalerr"
)

func TestOmniCorpIRIConversion(t *testing.T) {
	tests := []struct {
		name string
		iri  string
		want string
	}{
		{"chebi", "http://purl.obolibrary.org/obo/CHEBI_17822", "CHEBI:17822"},
		{"mesh", "http://id.nlm.nih.gov/mesh/D014346", "MESH:D014346"},
		{"generic obo", "http://purl.obolibrary.org/obo/RO_0002432", "RO:0002432"},
		{"ncbitaxon", "http://purl.obolibrary.org/obo/NCBITaxon_10", "NCBITaxon:10"},
		{"ncit", "http://purl.obolibrary.org/obo/NCIT_C12378", "NCIT:C12378"},
		{"protein ontology", "http://purl.obolibrary.org/obo/PR_A0A0R4IGV4", "PR:A0A0R4IGV4"},
		{"dictybase", "http://dictybase.org/gene/DDB_G0268618", "dictyBase:DDB_G0268618"},
		{"flybase", "http://flybase.org/reports/FBgn0013717", "FB:FBgn0013717"},
		{"hgnc identifiers.org", "http://identifiers.org/hgnc/10001", "HGNC:10001"},
		{"hgnc old genenames", "http://www.genenames.org/cgi-bin/gene_symbol_report?hgnc_id=10044", "HGNC:10044"},
		{"hgnc new genenames", "https://www.genenames.org/data/gene-symbol-report/#!/hgnc_id/HGNC:10383", "HGNC:10383"},
		{"rgd", "http://rgd.mcw.edu/rgdweb/report/gene/main.html?id=11414885", "RGD:11414885"},
		{"efo", "http://www.ebi.ac.uk/efo/EFO_0000174", "EFO:0000174"},
		{"mgi", "http://www.informatics.jax.org/marker/MGI:101783", "MGI:101783"},
		{"ncbigene", "http://www.ncbi.nlm.nih.gov/gene/100135518", "NCBIGene:100135518"},
		{"orphanet", "http://www.orpha.net/ORDO/Orphanet_101000", "orphanet:101000"},
		{"wormbase", "http://www.wormbase.org/species/c_elegans/gene/WBGene00007403", "WormBase:WBGene00007403"},
		{"sgd", "http://www.yeastgenome.org/locus/S000003272", "SGD:S000003272"},
		{"zfin", "http://zfin.org/action/marker/view/ZDB-GENE-001222-1", "ZFIN:ZDB-GENE-001222-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line := "https://www.ncbi.nlm.nih.gov/pubmed/3963809\t" + tt.iri
			pairs, _, err := OmniCorp{}.ParseLine(line)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(pairs) != 1 {
				t.Fatalf("expected 1 pair, got %d", len(pairs))
			}
			if pairs[0].CURIE != tt.want {
				t.Errorf("curie = %q, want %q", pairs[0].CURIE, tt.want)
			}
			if pairs[0].PMID != 3963809 {
				t.Errorf("pmid = %d, want 3963809", pairs[0].PMID)
			}
			if pairs[0].Unknown != "" {
				t.Errorf("known IRI should not be flagged, got %q", pairs[0].Unknown)
			}
		})
	}
}

func TestOmniCorpUnknownIRIPassesThrough(t *testing.T) {
	iri := "http://example.org/some/unmapped/thing"
	pairs, _, err := OmniCorp{}.ParseLine("https://www.ncbi.nlm.nih.gov/pubmed/99\t" + iri)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pairs) != 1 {
		t.Fatalf("expected 1 pair, got %d", len(pairs))
	}
	if pairs[0].CURIE != iri {
		t.Errorf("unknown IRI should pass through as-is, got %q", pairs[0].CURIE)
	}
	if pairs[0].Unknown != iri {
		t.Errorf("unknown IRI should be flagged for analysis, got %q", pairs[0].Unknown)
	}
}

func TestOmniCorpBadPubMedURL(t *testing.T) {
	pairs, dropped, err := OmniCorp{}.ParseLine("https://example.com/not-pubmed\thttp://id.nlm.nih.gov/mesh/D014346")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pairs) != 0 {
		t.Errorf("expected no pairs, got %+v", pairs)
	}
	if dropped != 1 {
		t.Errorf("dropped = %d, want 1", dropped)
	}
}

func TestOmniCorpMalformedLine(t *testing.T) {
	_, _, err := OmniCorp{}.ParseLine("only-one-column")
	if !errors.Is(err, internalerr.ErrParse) {
		t.Errorf("expected ErrParse, got %v", err)
	}
}

func TestForFormat(t *testing.T) {
	for _, f := range []Format{FormatPubTator, FormatOmniCorp, FormatPairs} {
		if _, err := ForFormat(f); err != nil {
			t.Errorf("ForFormat(%q) failed: %v", f, err)
		}
	}
	if _, err := ForFormat("bogus"); !errors.Is(err, internalerr.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig for bogus format, got %v", err)
	}
}

func TestPairsAdapter(t *testing.T) {
	pairs, _, err := Pairs{}.ParseLine("CHEBI:15365\t4242")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(pairs) != 1 || pairs[0].CURIE != "CHEBI:15365" || pairs[0].PMID != 4242 {
		t.Errorf("unexpected pairs: %+v", pairs)
	}
	if _, _, err := (Pairs{}).ParseLine("CHEBI:15365\tnot-a-pmid"); !errors.Is(err, internalerr.ErrParse) {
		t.Errorf("expected ErrParse, got %v", err)
	}
}
