package nodenorm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cognicore/curiemap/pkg/curiemap/internalerr"
)

func fastClient(url string) *Client {
	c := New(url)
	c.sleep = func(context.Context, time.Duration) error { return nil }
	return c
}

func TestNormalizeBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Curies               []string `json:"curies"`
			Conflate             bool     `json:"conflate"`
			DrugChemicalConflate bool     `json:"drug_chemical_conflate"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("bad request body: %v", err)
		}
		if !req.Conflate || !req.DrugChemicalConflate {
			t.Error("conflation flags not forwarded")
		}
		resp := map[string]any{
			"MESH:D014527": map[string]any{
				"id":   map[string]any{"identifier": "CHEBI:15365", "label": "acetylsalicylic acid"},
				"type": []string{"biolink:SmallMolecule", "biolink:ChemicalEntity"},
			},
			"CHEBI:99999": nil,
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	got, err := fastClient(srv.URL).NormalizeBatch(context.Background(),
		[]string{"MESH:D014527", "CHEBI:99999", "UNSEEN:1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	res, ok := got["MESH:D014527"]
	if !ok {
		t.Fatal("expected result for MESH:D014527")
	}
	if res.Identifier != "CHEBI:15365" {
		t.Errorf("identifier = %q, want CHEBI:15365", res.Identifier)
	}
	if len(res.Types) != 2 || res.Types[0] != "biolink:SmallMolecule" {
		t.Errorf("unexpected types: %v", res.Types)
	}
	if _, ok := got["CHEBI:99999"]; ok {
		t.Error("null node must not yield a result")
	}
	if _, ok := got["UNSEEN:1"]; ok {
		t.Error("absent node must not yield a result")
	}
}

func TestRetriesTransientFailures(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"CHEBI:1": map[string]any{"id": map[string]any{"identifier": "CHEBI:1"}},
		})
	}))
	defer srv.Close()

	got, err := fastClient(srv.URL).NormalizeBatch(context.Background(), []string{"CHEBI:1"})
	if err != nil {
		t.Fatalf("unexpected error after retries: %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
	if got["CHEBI:1"].Identifier != "CHEBI:1" {
		t.Errorf("unexpected result: %+v", got)
	}
}

func TestExhaustedRetriesFailBatch(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := fastClient(srv.URL)
	c.MaxRetries = 3
	_, err := c.NormalizeBatch(context.Background(), []string{"CHEBI:1"})
	if !errors.Is(err, internalerr.ErrServiceUnavailable) {
		t.Fatalf("expected ErrServiceUnavailable, got %v", err)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestClientErrorNotRetried(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	_, err := fastClient(srv.URL).NormalizeBatch(context.Background(), []string{"CHEBI:1"})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1 (4xx must not be retried)", calls.Load())
	}
}

func TestRateLimitedStatusRetried(t *testing.T) {
	var calls atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{})
	}))
	defer srv.Close()

	if _, err := fastClient(srv.URL).NormalizeBatch(context.Background(), []string{"CHEBI:1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestEmptyBatch(t *testing.T) {
	got, err := fastClient("http://127.0.0.1:1").NormalizeBatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected empty result, got %v", got)
	}
}

func TestBackoffCapped(t *testing.T) {
	c := New("")
	c.BaseDelay = time.Second
	c.MaxDelay = 4 * time.Second
	for exp := 0; exp < 10; exp++ {
		d := c.backoff(exp)
		// Delay plus up to 10% jitter must respect the cap.
		if d > 4*time.Second+400*time.Millisecond {
			t.Errorf("backoff(%d) = %v exceeds cap", exp, d)
		}
	}
}
