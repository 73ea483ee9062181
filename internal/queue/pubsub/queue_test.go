package pubsub

import (
	"context"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func newTestClient(t *testing.T) *pubsub.Client {
	t.Helper()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client, err := pubsub.NewClient(context.Background(), "test-project", option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestQueueRoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client := newTestClient(t)
	q, err := NewQueue(ctx, client, Config{Topic: "portfolio", Subscription: "portfolio-workers"}, zap.NewNop())
	require.NoError(t, err)
	defer func() { require.NoError(t, q.Close()) }()

	require.NoError(t, q.Enqueue(ctx, []byte(`{"userId":"u1"}`)))

	d, err := q.Dequeue(ctx)
	require.NoError(t, err)
	require.JSONEq(t, `{"userId":"u1"}`, string(d.Body))
	require.NotEmpty(t, d.ID)
	require.NoError(t, d.Ack(ctx))
}

func TestQueueReusesExistingTopic(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client := newTestClient(t)
	_, err := client.CreateTopic(ctx, "github")
	require.NoError(t, err)

	q, err := NewQueue(ctx, client, Config{Topic: "github", Subscription: "github-workers"}, nil)
	require.NoError(t, err)
	require.NoError(t, q.Close())
}

func TestQueueDequeueHonorsContext(t *testing.T) {
	client := newTestClient(t)
	q, err := NewQueue(context.Background(), client, Config{Topic: "linkedin", Subscription: "linkedin-workers"}, nil)
	require.NoError(t, err)
	defer func() { require.NoError(t, q.Close()) }()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = q.Dequeue(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewQueueValidates(t *testing.T) {
	_, err := NewQueue(context.Background(), nil, Config{Topic: "a", Subscription: "b"}, nil)
	require.Error(t, err)
}
