// Package collyfetcher implements registry.Transport using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"

	"github.com/JakeFAU/edgar-exhibit-archiver/internal/registry"
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
}

// Fetcher performs registry GETs through a Colly collector.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

var _ registry.Transport = (*Fetcher)(nil)

// New builds a Fetcher. The collector revisits URLs freely so that retries
// reach the network, and non-2xx responses are surfaced instead of swallowed.
func New(cfg Config) *Fetcher {
	c := colly.NewCollector(colly.Async(false))
	c.AllowURLRevisit = true
	c.ParseHTTPErrorResponse = true
	c.IgnoreRobotsTxt = true
	c.MaxBodySize = 0
	c.WithTransport(newHTTPTransport())

	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
	}
}

// Get executes a single HTTP GET. Any received status is reported in the
// Response; an error means no response arrived.
func (f *Fetcher) Get(ctx context.Context, url string) (registry.Response, error) {
	return f.runCollector(ctx, url)
}

func (f *Fetcher) buildCollector(result *registry.Response, fetchErr *error) *colly.Collector {
	collector := f.baseCollector.Clone()
	collector.AllowURLRevisit = true
	collector.ParseHTTPErrorResponse = true
	collector.IgnoreRobotsTxt = true
	collector.MaxBodySize = 0
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	timeout := f.cfg.Timeout
	if timeout == 0 {
		timeout = 20 * time.Second
	}
	collector.SetRequestTimeout(timeout)

	f.configureCollectorHooks(collector, result, fetchErr)
	return collector
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, result *registry.Response, fetchErr *error) {
	hooks.OnRequest(func(r *colly.Request) {
		if f.cfg.UserAgent != "" {
			r.Headers.Set("User-Agent", f.cfg.UserAgent)
		}
	})

	hooks.OnResponse(func(r *colly.Response) {
		*result = registry.Response{
			StatusCode: r.StatusCode,
			Body:       append([]byte(nil), r.Body...),
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		// A response with a status is still a response; the caller decides.
		if r != nil && r.StatusCode != 0 {
			*result = registry.Response{
				StatusCode: r.StatusCode,
				Body:       append([]byte(nil), r.Body...),
			}
			return
		}
		*fetchErr = err
	})
}

// visitOutcome carries everything the collector goroutine produced. The
// goroutine owns result and fetchErr until it sends on the channel.
type visitOutcome struct {
	resp registry.Response
	err  error
}

func (f *Fetcher) runCollector(ctx context.Context, url string) (registry.Response, error) {
	done := make(chan visitOutcome, 1)
	go func() {
		var (
			result   registry.Response
			fetchErr error
		)
		collector := f.buildCollector(&result, &fetchErr)
		visitErr := collector.Visit(url)
		done <- visitOutcome{resp: result, err: visitError(result, fetchErr, visitErr)}
	}()

	select {
	case <-ctx.Done():
		return registry.Response{}, fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case out := <-done:
		if out.err != nil {
			return registry.Response{}, out.err
		}
		return out.resp, nil
	}
}

// visitError reports a failure only when no status was received.
func visitError(result registry.Response, fetchErr, visitErr error) error {
	if result.StatusCode != 0 {
		return nil
	}
	if fetchErr != nil {
		return fmt.Errorf("colly response failed: %w", fetchErr)
	}
	if visitErr != nil {
		return fmt.Errorf("colly visit failed: %w", visitErr)
	}
	return nil
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
