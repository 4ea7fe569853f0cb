// Package registry implements a rate-limited, retrying client for the public
// filings registry. Every request made through a Client shares one throttle.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/edgar-exhibit-archiver/internal/metrics"
)

// Response is what a Transport returns for a completed HTTP exchange.
type Response struct {
	StatusCode int
	Body       []byte
}

// Transport performs one GET. It reports any HTTP status as a Response and
// only returns an error when no response was received.
type Transport interface {
	Get(ctx context.Context, url string) (Response, error)
}

// Options configures a Client.
type Options struct {
	BaseURL     string
	DataBaseURL string
	Retry       RetryPolicy
	Logger      *zap.Logger
}

// Client issues throttled, retried requests against the registry.
type Client struct {
	transport   Transport
	throttle    *Throttle
	clock       Clock
	retry       RetryPolicy
	baseURL     string
	dataBaseURL string
	logger      *zap.Logger
}

// New constructs a Client.
func New(transport Transport, throttle *Throttle, clock Clock, opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	retry := opts.Retry
	if retry.MaxAttempts <= 0 {
		retry = DefaultRetryPolicy()
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://www.sec.gov"
	}
	dataBaseURL := strings.TrimRight(opts.DataBaseURL, "/")
	if dataBaseURL == "" {
		dataBaseURL = "https://data.sec.gov"
	}
	return &Client{
		transport:   transport,
		throttle:    throttle,
		clock:       clock,
		retry:       retry,
		baseURL:     baseURL,
		dataBaseURL: dataBaseURL,
		logger:      logger,
	}
}

// Fetch returns the body at url, retrying transient failures. The last
// failure is returned once attempts are exhausted.
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	for attempt := 1; ; attempt++ {
		body, err := c.fetchOnce(ctx, url)
		if err == nil {
			metrics.ObserveRegistryRequest(url, "ok")
			return body, nil
		}
		metrics.ObserveRegistryRequest(url, "error")
		if !c.retry.ShouldRetry(err, attempt) {
			return nil, err
		}
		delay := c.retry.Backoff(attempt)
		c.logger.Warn("registry request failed; retrying",
			zap.String("url", url),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", delay),
			zap.Error(err),
		)
		metrics.ObserveRegistryRetry(url)
		if sleepErr := c.clock.Sleep(ctx, delay); sleepErr != nil {
			return nil, errors.Join(err, sleepErr)
		}
	}
}

func (c *Client) fetchOnce(ctx context.Context, url string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("registry GET %s: %w", url, err)
	}
	if _, err := c.throttle.Wait(ctx); err != nil {
		return nil, err
	}
	c.logger.Debug("registry request", zap.String("url", url))
	resp, err := c.transport.Get(ctx, url)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("registry GET %s: %w", url, ctxErr)
		}
		return nil, &TransientError{URL: url, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &TransientError{URL: url, StatusCode: resp.StatusCode}
	}
	return resp.Body, nil
}

// FetchJSON fetches url and decodes the body into dest. Decoding failures
// are reported as DecodeError and are not retried.
func (c *Client) FetchJSON(ctx context.Context, url string, dest any) error {
	body, err := c.Fetch(ctx, url)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return &DecodeError{URL: url, Err: err}
	}
	return nil
}

// IdentifierMap returns uppercase ticker -> 10-digit zero-padded identifier.
func (c *Client) IdentifierMap(ctx context.Context) (map[string]string, error) {
	url := c.baseURL + "/files/company_tickers.json"
	var payload map[string]tickerEntry
	if err := c.FetchJSON(ctx, url, &payload); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(payload))
	for _, entry := range payload {
		ticker := strings.ToUpper(strings.TrimSpace(entry.Ticker))
		if ticker == "" {
			continue
		}
		out[ticker] = PadIdentifier(int64(entry.CIK))
	}
	return out, nil
}

// EntityFilings returns the filing-history document for a padded identifier.
func (c *Client) EntityFilings(ctx context.Context, cik string) (Submissions, error) {
	url := fmt.Sprintf("%s/submissions/CIK%s.json", c.dataBaseURL, cik)
	var subs Submissions
	if err := c.FetchJSON(ctx, url, &subs); err != nil {
		return Submissions{}, err
	}
	return subs, nil
}

// FilingIndex returns the document listing of one filing.
func (c *Client) FilingIndex(ctx context.Context, cik, accession string) (FilingIndex, error) {
	url := c.ArchiveURL(cik, accession, "index.json")
	var index FilingIndex
	if err := c.FetchJSON(ctx, url, &index); err != nil {
		return FilingIndex{}, err
	}
	return index, nil
}

// ArchiveURL builds the archive path for a file of a filing. The identifier
// is written without leading zeros and the accession without dashes.
func (c *Client) ArchiveURL(cik, accession, filename string) string {
	return fmt.Sprintf("%s/Archives/edgar/data/%s/%s/%s",
		c.baseURL, UnpadIdentifier(cik), StripAccession(accession), filename)
}

// PadIdentifier formats an entity identifier as the 10-digit lookup key.
func PadIdentifier(cik int64) string {
	return fmt.Sprintf("%010d", cik)
}

// UnpadIdentifier drops leading zeros for use in archive paths.
func UnpadIdentifier(cik string) string {
	trimmed := strings.TrimLeft(strings.TrimSpace(cik), "0")
	if trimmed == "" {
		return "0"
	}
	return trimmed
}

// StripAccession removes the dashes from an accession identifier.
func StripAccession(accession string) string {
	return strings.ReplaceAll(accession, "-", "")
}
