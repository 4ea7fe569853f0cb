package pubsub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/JakeFAU/edgar-exhibit-archiver/internal/ledger"
	"github.com/JakeFAU/edgar-exhibit-archiver/internal/publisher"
)

func newFakeClient(t *testing.T) (*pubsub.Client, *pstest.Server) {
	t.Helper()

	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })
	return newFakeClientFor(t, srv)
}

func newFakeClientFor(t *testing.T, srv *pstest.Server) (*pubsub.Client, *pstest.Server) {
	t.Helper()

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client, err := pubsub.NewClient(context.Background(), "project-id", option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client, srv
}

func TestPublishSendsEvent(t *testing.T) {
	ctx := context.Background()
	client, srv := newFakeClient(t)
	_, err := client.CreateTopic(ctx, "ledger-events")
	require.NoError(t, err)

	pub, err := NewWithClient(ctx, client, "ledger-events")
	require.NoError(t, err)

	event := publisher.NewEvent(ledger.Result{
		CompanyName: "Apple Inc.",
		Ticker:      "AAPL",
		Link:        "https://storage.googleapis.com/b/AAPL/",
		Has10K:      true,
	}, false, time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))

	id, err := pub.Publish(ctx, event)
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	require.NoError(t, pub.Close())

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, "AAPL", msgs[0].Attributes["ticker"])
	assert.Equal(t, publisher.StatusPartial, msgs[0].Attributes["status"])
	assert.Equal(t, "false", msgs[0].Attributes["complete"])

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(msgs[0].Data, &decoded))
	assert.Equal(t, "AAPL", decoded["ticker"])
	assert.Equal(t, true, decoded["has_10k"])
	assert.Equal(t, "partial", decoded["status"])
}

func TestNewWithClientMissingTopic(t *testing.T) {
	client, _ := newFakeClient(t)

	_, err := NewWithClient(context.Background(), client, "absent")
	assert.Error(t, err)
	_, err = NewWithClient(context.Background(), client, "")
	assert.Error(t, err)
	_, err = NewWithClient(context.Background(), nil, "x")
	assert.Error(t, err)
}

func TestPublishUnconfigured(t *testing.T) {
	t.Parallel()

	_, err := (&Publisher{}).Publish(context.Background(), publisher.Event{})
	assert.Error(t, err)
	assert.NoError(t, (&Publisher{}).Close())
}

func TestNewOwnsClient(t *testing.T) {
	ctx := context.Background()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	admin, _ := newFakeClientFor(t, srv)
	_, err := admin.CreateTopic(ctx, "ledger-events")
	require.NoError(t, err)

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)

	pub, err := New(ctx, "project-id", "ledger-events", option.WithGRPCConn(conn))
	require.NoError(t, err)
	assert.True(t, pub.owned)

	_, err = pub.Publish(ctx, publisher.NewEvent(ledger.Degraded("", "zzzz"), true, time.Unix(0, 0)))
	require.NoError(t, err)
	require.NoError(t, pub.Close())

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, publisher.StatusDegraded, msgs[0].Attributes["status"])
}

func TestNewMissingTopicFails(t *testing.T) {
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)

	_, err = New(context.Background(), "project-id", "absent", option.WithGRPCConn(conn))
	require.Error(t, err)
}
