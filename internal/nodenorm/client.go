// Package nodenorm calls the SRI node-normalization service to resolve
// raw CURIEs to their canonical identifiers and biolink types.
package nodenorm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/cognicore/curiemap/pkg/curiemap/internalerr"
)

// DefaultBaseURL is the public SRI node normalizer endpoint.
const DefaultBaseURL = "https://nodenormalization-sri.renci.org/get_normalized_nodes"

// Defaults match the production pipeline's tuning against the public service.
const (
	DefaultMaxRetries     = 5
	DefaultBaseDelay      = 2 * time.Second
	DefaultMaxDelay       = 300 * time.Second
	DefaultRequestTimeout = 120 * time.Second
)

// Result is a successful normalization for one CURIE.
type Result struct {
	Identifier string
	Label      string
	Types      []string
}

// Client is a batch client for the node normalizer with bounded
// exponential-backoff retries and request pacing.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client

	// Conflation flags forwarded to the service.
	Conflate             bool
	DrugChemicalConflate bool

	MaxRetries     int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	RequestTimeout time.Duration

	// Limiter paces requests across concurrent batches. Nil disables pacing.
	Limiter *rate.Limiter
	Logger  *slog.Logger

	// sleep is replaced in tests to avoid real backoff waits.
	sleep func(ctx context.Context, d time.Duration) error
}

// New returns a client with production defaults against baseURL
// (DefaultBaseURL when empty).
func New(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		BaseURL:              baseURL,
		Conflate:             true,
		DrugChemicalConflate: true,
		MaxRetries:           DefaultMaxRetries,
		BaseDelay:            DefaultBaseDelay,
		MaxDelay:             DefaultMaxDelay,
		RequestTimeout:       DefaultRequestTimeout,
	}
}

type request struct {
	Curies               []string `json:"curies"`
	Conflate             bool     `json:"conflate"`
	DrugChemicalConflate bool     `json:"drug_chemical_conflate"`
}

// node is the per-CURIE response shape; an unresolvable CURIE arrives as
// JSON null and decodes to a nil pointer in the response map.
type node struct {
	ID struct {
		Identifier string `json:"identifier"`
		Label      string `json:"label"`
	} `json:"id"`
	Type []string `json:"type"`
}

// NormalizeBatch resolves one batch of CURIEs. The returned map holds an
// entry for every CURIE the service resolved; absent keys failed to
// normalize. A non-nil error means the whole batch is unconfirmed after
// exhausting retries; callers must record every CURIE in it as a failure
// rather than inventing results.
func (c *Client) NormalizeBatch(ctx context.Context, curies []string) (map[string]Result, error) {
	if len(curies) == 0 {
		return map[string]Result{}, nil
	}
	body, err := json.Marshal(request{
		Curies:               curies,
		Conflate:             c.Conflate,
		DrugChemicalConflate: c.DrugChemicalConflate,
	})
	if err != nil {
		return nil, fmt.Errorf("nodenorm: marshal batch: %w", err)
	}

	raw, err := c.postWithRetry(ctx, body)
	if err != nil {
		return nil, err
	}

	out := make(map[string]Result, len(curies))
	for _, curie := range curies {
		n, present := raw[curie]
		if !present || n == nil || n.ID.Identifier == "" {
			continue
		}
		out[curie] = Result{Identifier: n.ID.Identifier, Label: n.ID.Label, Types: n.Type}
	}
	return out, nil
}

// postWithRetry is a bounded ATTEMPT → WAIT → RETRY | FAIL machine:
// transient failures back off exponentially with jitter, capped at
// MaxDelay; exhausting MaxRetries fails the batch.
func (c *Client) postWithRetry(ctx context.Context, body []byte) (map[string]*node, error) {
	log := c.logger()
	var lastErr error
	for attempt := 0; attempt < c.maxRetries(); attempt++ {
		if attempt > 0 {
			delay := c.backoff(attempt - 1)
			log.Info("retrying normalization request", "attempt", attempt+1, "delay", delay)
			if err := c.wait(ctx, delay); err != nil {
				return nil, err
			}
		}
		if c.Limiter != nil {
			if err := c.Limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}

		resp, retryable, err := c.post(ctx, body)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !retryable {
			return nil, err
		}
		log.Warn("normalization request failed", "attempt", attempt+1, "error", err)
	}
	return nil, fmt.Errorf("%w: %d attempts exhausted: %w",
		internalerr.ErrServiceUnavailable, c.maxRetries(), lastErr)
}

func (c *Client) post(ctx context.Context, body []byte) (resp map[string]*node, retryable bool, err error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.requestTimeout())
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, c.baseURL(), bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("nodenorm: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient().Do(req)
	if err != nil {
		if ctx.Err() != nil {
			// Run cancelled, not a service fault.
			return nil, false, ctx.Err()
		}
		return nil, true, fmt.Errorf("nodenorm: request: %w", err)
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusOK:
	case res.StatusCode == http.StatusTooManyRequests || res.StatusCode >= 500:
		io.Copy(io.Discard, io.LimitReader(res.Body, 4096))
		return nil, true, fmt.Errorf("nodenorm: http %d", res.StatusCode)
	default:
		return nil, false, fmt.Errorf("nodenorm: http %d", res.StatusCode)
	}

	var payload map[string]*node
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return nil, true, fmt.Errorf("nodenorm: decode response: %w", err)
	}
	return payload, false, nil
}

func (c *Client) backoff(exp int) time.Duration {
	if exp > 20 {
		exp = 20
	}
	delay := c.baseDelay() << exp
	if max := c.maxDelay(); delay > max {
		delay = max
	}
	// Up to 10% jitter so concurrent batches don't retry in lockstep.
	return delay + time.Duration(rand.Int63n(int64(delay)/10+1))
}

func (c *Client) wait(ctx context.Context, d time.Duration) error {
	if c.sleep != nil {
		return c.sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (c *Client) baseURL() string {
	if c.BaseURL != "" {
		return c.BaseURL
	}
	return DefaultBaseURL
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) maxRetries() int {
	if c.MaxRetries > 0 {
		return c.MaxRetries
	}
	return DefaultMaxRetries
}

func (c *Client) baseDelay() time.Duration {
	if c.BaseDelay > 0 {
		return c.BaseDelay
	}
	return DefaultBaseDelay
}

func (c *Client) maxDelay() time.Duration {
	if c.MaxDelay > 0 {
		return c.MaxDelay
	}
	return DefaultMaxDelay
}

func (c *Client) requestTimeout() time.Duration {
	if c.RequestTimeout > 0 {
		return c.RequestTimeout
	}
	return DefaultRequestTimeout
}

func (c *Client) logger() *slog.Logger {
	l := c.Logger
	if l == nil {
		l = slog.Default()
	}
	return l.With("component", "nodenorm")
}
