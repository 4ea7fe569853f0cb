package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/JakeFAU/edgar-exhibit-archiver/internal/config"
	"github.com/JakeFAU/edgar-exhibit-archiver/internal/input"
	"github.com/JakeFAU/edgar-exhibit-archiver/internal/ledger"
	"github.com/JakeFAU/edgar-exhibit-archiver/internal/publisher"
	gcppublisher "github.com/JakeFAU/edgar-exhibit-archiver/internal/publisher/pubsub"
	gcsstorage "github.com/JakeFAU/edgar-exhibit-archiver/internal/storage/gcs"
	localstorage "github.com/JakeFAU/edgar-exhibit-archiver/internal/storage/local"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()
	return config.Config{
		Registry: config.RegistryConfig{
			UserAgent:      "Test Runner test@example.com",
			Timeout:        5 * time.Second,
			MaxAttempts:    1,
			BackoffInitial: time.Millisecond,
			BackoffMax:     time.Millisecond,
		},
		Run: config.RunConfig{
			OutputDir:  t.TempDir(),
			ResultFile: "results.csv",
		},
		Storage:   config.StorageConfig{Provider: "local"},
		Convert:   config.ConvertConfig{Renderer: "text"},
		Ledger:    config.LedgerConfig{Provider: "csv"},
		Publisher: config.PublisherConfig{Provider: "noop"},
	}
}

type mockCloser struct {
	mock.Mock
}

func (m *mockCloser) Close() error {
	args := m.Called()
	return args.Error(0)
}

func TestNewLocalDefaults(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	a, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)

	assert.IsType(t, &localstorage.BlobStore{}, a.storage)
	assert.IsType(t, publisher.Noop{}, a.publisher)
	csvLedger, ok := a.Ledger().(*ledger.CSVStore)
	require.True(t, ok)
	assert.Equal(t, filepath.Join(cfg.Run.OutputDir, "results.csv"), csvLedger.Path())
	assert.DirExists(t, filepath.Join(cfg.Run.OutputDir, "remote"))
	assert.NotNil(t, a.Runner())
	assert.NotNil(t, a.Logger())
	assert.NoError(t, a.Close())
}

func TestNewLocalStorageNotADirectory(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	blocker := filepath.Join(cfg.Run.OutputDir, "blocker")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))
	cfg.Storage.Local.BaseDir = blocker

	_, err := New(context.Background(), cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "local blob store init failed")
}

func TestNewChromeRendererRegistersCloser(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Convert.Renderer = "chrome"
	cfg.Convert.ChromeTimeout = time.Second

	a, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	require.Len(t, a.closers, 1)
	assert.Equal(t, "chrome renderer", a.closers[0].name)
	assert.NoError(t, a.Close())
}

func TestNewRejectsUnknownProviders(t *testing.T) {
	t.Parallel()

	cases := map[string]func(*config.Config){
		"storage":   func(c *config.Config) { c.Storage.Provider = "s3" },
		"ledger":    func(c *config.Config) { c.Ledger.Provider = "sqlite" },
		"publisher": func(c *config.Config) { c.Publisher.Provider = "kafka" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			cfg := testConfig(t)
			mutate(&cfg)
			_, err := New(context.Background(), cfg, nil)
			var cfgErr *config.ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, name+".provider", cfgErr.Key)
		})
	}
}

func TestNewPostgresBadDSN(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Ledger.Provider = "postgres"
	cfg.Ledger.Postgres.DSN = "postgres://%zz"

	_, err := New(context.Background(), cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres ledger init failed")
}

func TestNewGCSStorage(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"name": %q, "bucket": "filings"}`, r.URL.Query().Get("name"))
	}))
	t.Cleanup(srv.Close)

	cfg := testConfig(t)
	cfg.Storage.Provider = "gcs"
	cfg.Storage.GCS.Bucket = "filings"

	a, err := New(context.Background(), cfg, nil,
		WithStorageClientOptions(option.WithEndpoint(srv.URL), option.WithoutAuthentication()))
	require.NoError(t, err)
	assert.IsType(t, &gcsstorage.BlobStore{}, a.storage)

	container, err := a.storage.CreateContainer(context.Background(), "AAPL - Apple Inc.")
	require.NoError(t, err)
	assert.Contains(t, container.Link, "https://storage.googleapis.com/filings/")
	assert.NoError(t, a.Close())
}

func newPubSubServer(t *testing.T, topic string) *pstest.Server {
	t.Helper()

	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })
	if topic == "" {
		return srv
	}

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	admin, err := pubsub.NewClient(context.Background(), "project-id", option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = admin.Close() })
	_, err = admin.CreateTopic(context.Background(), topic)
	require.NoError(t, err)
	return srv
}

func pubsubConn(t *testing.T, srv *pstest.Server) option.ClientOption {
	t.Helper()
	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	return option.WithGRPCConn(conn)
}

func TestNewPubSubPublisher(t *testing.T) {
	t.Parallel()

	srv := newPubSubServer(t, "ledger-events")
	cfg := testConfig(t)
	cfg.Publisher = config.PublisherConfig{
		Provider: "pubsub",
		PubSub:   config.PubSubConfig{ProjectID: "project-id", Topic: "ledger-events"},
	}

	a, err := New(context.Background(), cfg, nil, WithPubSubClientOptions(pubsubConn(t, srv)))
	require.NoError(t, err)
	assert.IsType(t, &gcppublisher.Publisher{}, a.publisher)
	assert.NoError(t, a.Close())
}

func TestNewClosesEarlierServicesOnFailure(t *testing.T) {
	t.Parallel()

	srv := newPubSubServer(t, "")
	cfg := testConfig(t)
	cfg.Convert.Renderer = "chrome"
	cfg.Publisher = config.PublisherConfig{
		Provider: "pubsub",
		PubSub:   config.PubSubConfig{ProjectID: "project-id", Topic: "absent"},
	}

	_, err := New(context.Background(), cfg, nil, WithPubSubClientOptions(pubsubConn(t, srv)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "pubsub publisher init failed")
}

func TestCloseJoinsErrorsOnce(t *testing.T) {
	t.Parallel()

	a, err := New(context.Background(), testConfig(t), nil)
	require.NoError(t, err)

	first := &mockCloser{}
	first.On("Close").Return(nil).Once()
	second := &mockCloser{}
	second.On("Close").Return(errors.New("flush failed")).Once()
	a.addCloser("first", first.Close)
	a.addCloser("second", second.Close)

	err = a.Close()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "close second: flush failed")
	require.NoError(t, a.Close())

	first.AssertExpectations(t)
	second.AssertExpectations(t)
}

// registryServer serves one entity with an annual report and one earnings
// release carrying a slide deck.
func registryServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/files/company_tickers.json", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"0":{"cik_str":1234,"ticker":"ACME","title":"Acme Corp"}}`)
	})
	mux.HandleFunc("/submissions/CIK0000001234.json", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"cik":"1234","name":"Acme Corp","filings":{"recent":{
			"accessionNumber":["0000001234-24-000002","0000001234-24-000001"],
			"filingDate":["2024-05-01","2024-02-01"],
			"form":["8-K","10-K"],
			"primaryDocument":["acme-8k.htm","acme-10k.htm"]}}}`)
	})
	mux.HandleFunc("/Archives/edgar/data/1234/000000123424000002/index.json", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"directory":{"item":[{"name":"acme-8k.htm"},{"name":"ex99-2-earnings-slides.pdf"}]}}`)
	})
	mux.HandleFunc("/Archives/edgar/data/1234/000000123424000002/ex99-2-earnings-slides.pdf", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "%PDF-1.4 slides")
	})
	mux.HandleFunc("/Archives/edgar/data/1234/000000123424000001/acme-10k.htm", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "<html><body><p>Annual report</p><script>x()</script></body></html>")
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestRunnerEndToEnd(t *testing.T) {
	t.Parallel()

	reg := registryServer(t)
	cfg := testConfig(t)
	cfg.Registry.BaseURL = reg.URL
	cfg.Registry.DataBaseURL = reg.URL

	a, err := New(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	summary, err := a.Runner().Run(context.Background(), []input.Row{{Ticker: "acme"}, {Ticker: "nope"}})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 1, summary.Partial)
	assert.Equal(t, 1, summary.Degraded)

	rows, err := ledger.NewCSVStore(cfg.ResultPath()).Results(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Acme Corp", rows[0].CompanyName)
	assert.True(t, rows[0].Has10K)
	assert.False(t, rows[0].Has10Q)
	assert.True(t, rows[0].HasDeck)
	assert.False(t, rows[0].HasTranscript)
	assert.Contains(t, rows[0].Link, "file://")
	assert.Equal(t, ledger.Result{CompanyName: "NOPE", Ticker: "NOPE"}, rows[1])

	deck, err := os.ReadFile(filepath.Join(cfg.Run.OutputDir, "ACME", "ACME_EarningsDeck.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 slides", string(deck))
}
