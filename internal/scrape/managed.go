package scrape

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"

	"knowledgetree/internal/config"
)

// ManagedEngine delegates scraping to a third-party REST crawling
// service (POST /scrape, then polling GET /scrape/{job_id} until the job
// completes or fails; the service's /crawl endpoint is not used),
// disabled when no API key is configured. Retry uses cenkalti/backoff/v5, promoted here from an
// indirect dependency of the Anthropic SDK to a direct one for this
// polling loop.
type ManagedEngine struct {
	endpoint string
	apiKey   string
	httpc    *http.Client
}

// NewManagedEngine builds a ManagedEngine from scrape config. Returns
// nil when no API key is configured, matching spec.md's
// "unavailable without an API key" contract.
func NewManagedEngine(cfg config.ScrapeConfig) *ManagedEngine {
	if cfg.ManagedAPIKey == "" {
		return nil
	}
	return &ManagedEngine{endpoint: cfg.ManagedEndpoint, apiKey: cfg.ManagedAPIKey, httpc: &http.Client{Timeout: 30 * time.Second}}
}

func (e *ManagedEngine) Name() string { return "managed_remote" }

type scrapeJobRequest struct {
	URL string `json:"url"`
}

type scrapeJobResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
	Result *Page  `json:"result,omitempty"`
}

func (e *ManagedEngine) Scrape(ctx context.Context, url string) (Page, error) {
	job, err := e.submit(ctx, url)
	if err != nil {
		return Page{}, fmt.Errorf("scrape: managed: submit: %w", err)
	}
	if job.Result != nil {
		return *job.Result, nil
	}

	operation := func() (*Page, error) {
		status, err := e.poll(ctx, job.JobID)
		if err != nil {
			return nil, err
		}
		if status.Status == "failed" {
			return nil, backoff.Permanent(fmt.Errorf("scrape: managed: job %s failed", job.JobID))
		}
		if status.Status != "completed" || status.Result == nil {
			return nil, fmt.Errorf("scrape: managed: job %s still %s", job.JobID, status.Status)
		}
		return status.Result, nil
	}

	result, err := backoff.Retry(ctx, operation, backoff.WithMaxTries(10))
	if err != nil {
		return Page{}, fmt.Errorf("scrape: managed: poll: %w", err)
	}
	return *result, nil
}

func (e *ManagedEngine) submit(ctx context.Context, url string) (scrapeJobResponse, error) {
	body, _ := json.Marshal(scrapeJobRequest{URL: url})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint+"/scrape", bytes.NewReader(body))
	if err != nil {
		return scrapeJobResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.httpc.Do(req)
	if err != nil {
		return scrapeJobResponse{}, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return scrapeJobResponse{}, err
	}
	var out scrapeJobResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return scrapeJobResponse{}, fmt.Errorf("decode: %w (%s)", err, string(raw))
	}
	return out, nil
}

func (e *ManagedEngine) poll(ctx context.Context, jobID string) (scrapeJobResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.endpoint+"/scrape/"+jobID, nil)
	if err != nil {
		return scrapeJobResponse{}, err
	}
	req.Header.Set("Authorization", "Bearer "+e.apiKey)

	resp, err := e.httpc.Do(req)
	if err != nil {
		return scrapeJobResponse{}, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return scrapeJobResponse{}, err
	}
	var out scrapeJobResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return scrapeJobResponse{}, fmt.Errorf("decode: %w (%s)", err, string(raw))
	}
	return out, nil
}
