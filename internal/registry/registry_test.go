package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	c.mu.Unlock()
	return ctx.Err()
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func (c *fakeClock) Sleeps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.sleeps...)
}

type scriptedTransport struct {
	mu    sync.Mutex
	calls []string
	fn    func(call int, url string) (Response, error)
}

func (s *scriptedTransport) Get(_ context.Context, url string) (Response, error) {
	s.mu.Lock()
	s.calls = append(s.calls, url)
	n := len(s.calls)
	s.mu.Unlock()
	return s.fn(n, url)
}

func (s *scriptedTransport) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

// httpTransport is a plain net/http Transport for exercising the client against httptest.
type httpTransport struct{ client *http.Client }

func (h httpTransport) Get(ctx context.Context, url string) (Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Response{}, err
	}
	resp, err := h.client.Do(req)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, err
	}
	return Response{StatusCode: resp.StatusCode, Body: body}, nil
}

func newTestClient(transport Transport, clock *fakeClock, interval time.Duration) *Client {
	return New(transport, NewThrottle(interval, clock), clock, Options{
		BaseURL:     "https://registry.test",
		DataBaseURL: "https://data.registry.test",
		Retry:       DefaultRetryPolicy(),
	})
}

func TestFetchGivesUpAfterFiveTransientFailures(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	boom := errors.New("connection reset by peer")
	transport := &scriptedTransport{fn: func(int, string) (Response, error) {
		return Response{}, boom
	}}
	client := newTestClient(transport, clock, 0)

	_, err := client.Fetch(context.Background(), "https://registry.test/a")
	require.Error(t, err)

	var transient *TransientError
	require.ErrorAs(t, err, &transient)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 5, transport.Calls(), "a sixth attempt must never be made")
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second}, clock.Sleeps())
}

func TestFetchRetriesNon2xxThenSucceeds(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	transport := &scriptedTransport{fn: func(call int, _ string) (Response, error) {
		if call < 3 {
			return Response{StatusCode: http.StatusServiceUnavailable}, nil
		}
		return Response{StatusCode: http.StatusOK, Body: []byte("ok")}, nil
	}}
	client := newTestClient(transport, clock, 0)

	body, err := client.Fetch(context.Background(), "https://registry.test/a")
	require.NoError(t, err)
	assert.Equal(t, "ok", string(body))
	assert.Equal(t, 3, transport.Calls())
}

func TestFetchSurfacesStatusAfterExhaustion(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	transport := &scriptedTransport{fn: func(int, string) (Response, error) {
		return Response{StatusCode: http.StatusNotFound}, nil
	}}
	client := newTestClient(transport, clock, 0)

	_, err := client.Fetch(context.Background(), "https://registry.test/missing")
	var transient *TransientError
	require.ErrorAs(t, err, &transient)
	assert.Equal(t, http.StatusNotFound, transient.StatusCode)
	assert.Equal(t, 5, transport.Calls())
}

func TestFetchJSONDecodeErrorIsNotRetried(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	transport := &scriptedTransport{fn: func(int, string) (Response, error) {
		return Response{StatusCode: http.StatusOK, Body: []byte("<html>not json</html>")}, nil
	}}
	client := newTestClient(transport, clock, 0)

	var dest map[string]any
	err := client.FetchJSON(context.Background(), "https://registry.test/x.json", &dest)
	var decodeErr *DecodeError
	require.ErrorAs(t, err, &decodeErr)
	var transient *TransientError
	assert.False(t, errors.As(err, &transient))
	assert.Equal(t, 1, transport.Calls())
	assert.Empty(t, clock.Sleeps())
}

func TestFetchStopsOnCanceledContext(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	transport := &scriptedTransport{fn: func(int, string) (Response, error) {
		return Response{StatusCode: http.StatusOK}, nil
	}}
	client := newTestClient(transport, clock, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.Fetch(ctx, "https://registry.test/a")
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, transport.Calls())
}

func TestThrottleSpacesRequestsAcrossHosts(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	transport := &scriptedTransport{fn: func(int, string) (Response, error) {
		return Response{StatusCode: http.StatusOK}, nil
	}}
	client := newTestClient(transport, clock, 200*time.Millisecond)
	ctx := context.Background()

	_, err := client.Fetch(ctx, "https://registry.test/a")
	require.NoError(t, err)
	_, err = client.Fetch(ctx, "https://data.registry.test/b")
	require.NoError(t, err)
	_, err = client.Fetch(ctx, "https://other.test/c")
	require.NoError(t, err)

	sleeps := clock.Sleeps()
	require.Len(t, sleeps, 2)
	for _, d := range sleeps {
		assert.InDelta(t, float64(200*time.Millisecond), float64(d), float64(time.Millisecond))
	}
}

func TestThrottleOnlyWaitsForRemainder(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	throttle := NewThrottle(200*time.Millisecond, clock)
	ctx := context.Background()

	waited, err := throttle.Wait(ctx)
	require.NoError(t, err)
	assert.Zero(t, waited)

	clock.Advance(150 * time.Millisecond)
	waited, err = throttle.Wait(ctx)
	require.NoError(t, err)
	assert.InDelta(t, float64(50*time.Millisecond), float64(waited), float64(time.Millisecond))

	clock.Advance(time.Second)
	waited, err = throttle.Wait(ctx)
	require.NoError(t, err)
	assert.Zero(t, waited)
}

func TestThrottleDisabled(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	throttle := NewThrottle(0, clock)
	for i := 0; i < 3; i++ {
		waited, err := throttle.Wait(context.Background())
		require.NoError(t, err)
		assert.Zero(t, waited)
	}
	assert.Empty(t, clock.Sleeps())
}

func TestRetryPolicyBackoff(t *testing.T) {
	t.Parallel()

	p := DefaultRetryPolicy()
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second, 16 * time.Second}
	for i, expected := range want {
		assert.Equal(t, expected, p.Backoff(i+1), "attempt %d", i+1)
	}
	assert.True(t, p.ShouldRetry(&TransientError{URL: "u", StatusCode: 500}, 4))
	assert.False(t, p.ShouldRetry(&TransientError{URL: "u", StatusCode: 500}, 5))
	assert.False(t, p.ShouldRetry(&DecodeError{URL: "u", Err: errors.New("x")}, 1))
	assert.False(t, p.ShouldRetry(nil, 1))
}

func TestIdentifierMapAndLookupsOverHTTP(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var userAgents []string
	mux := http.NewServeMux()
	mux.HandleFunc("/files/company_tickers.json", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"0":{"cik_str":320193,"ticker":"aapl","title":"Apple Inc."},`+
			`"1":{"cik_str":"789019","ticker":"MSFT","title":"Microsoft"}}`)
	})
	mux.HandleFunc("/submissions/CIK0000320193.json", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		userAgents = append(userAgents, r.UserAgent())
		mu.Unlock()
		fmt.Fprint(w, `{"cik":"320193","name":"Apple Inc.","filings":{"recent":{`+
			`"accessionNumber":["0000320193-24-000123"],"filingDate":["2024-11-01"],`+
			`"form":["10-K"],"primaryDocument":["aapl-20240928.htm"]}}}`)
	})
	mux.HandleFunc("/Archives/edgar/data/320193/000032019324000123/index.json", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"directory":{"name":"/Archives/edgar/data/320193/000032019324000123",`+
			`"item":[{"name":"aapl-20240928.htm","type":"text.gif"},{"name":"ex99-1.htm","type":"text.gif"}]}}`)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	clock := newFakeClock()
	client := New(httpTransport{client: srv.Client()}, NewThrottle(0, clock), clock, Options{
		BaseURL:     srv.URL,
		DataBaseURL: srv.URL,
	})
	ctx := context.Background()

	ids, err := client.IdentifierMap(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"AAPL": "0000320193", "MSFT": "0000789019"}, ids)

	subs, err := client.EntityFilings(ctx, ids["AAPL"])
	require.NoError(t, err)
	assert.Equal(t, "Apple Inc.", subs.Name)
	assert.Equal(t, []string{"10-K"}, subs.Filings.Recent.Form)

	index, err := client.FilingIndex(ctx, ids["AAPL"], "0000320193-24-000123")
	require.NoError(t, err)
	assert.Equal(t, []string{"aapl-20240928.htm", "ex99-1.htm"}, index.Names())
}

func TestArchiveURLUsesUnpaddedIdentifierAndBareAccession(t *testing.T) {
	t.Parallel()

	client := New(nil, NewThrottle(0, newFakeClock()), newFakeClock(), Options{BaseURL: "https://www.sec.gov/"})
	got := client.ArchiveURL("0000320193", "0000320193-24-000123", "ex99-2.htm")
	assert.Equal(t, "https://www.sec.gov/Archives/edgar/data/320193/000032019324000123/ex99-2.htm", got)

	assert.Equal(t, "0000320193", PadIdentifier(320193))
	assert.Equal(t, "0", UnpadIdentifier("0000000000"))
	assert.Equal(t, "000032019324000123", StripAccession("0000320193-24-000123"))
}
