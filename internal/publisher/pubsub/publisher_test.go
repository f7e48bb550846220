package pubsub

import (
	"context"
	"encoding/json"
	"testing"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func newTestClient(t *testing.T) (*pstest.Server, *pubsub.Client) {
	t.Helper()
	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client, err := pubsub.NewClient(context.Background(), "test-project", option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return srv, client
}

func TestPublishSendsJSONWithAttributes(t *testing.T) {
	t.Parallel()

	srv, client := newTestClient(t)
	ctx := context.Background()
	_, err := client.CreateTopic(ctx, "audit-events")
	require.NoError(t, err)

	pub := New(client)
	defer pub.Close()

	payload := map[string]any{"audit_id": "audit-1", "status": "completed", "score": 91}
	id, err := pub.Publish(ctx, "audit-events", payload)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	var got map[string]any
	require.NoError(t, json.Unmarshal(msgs[0].Data, &got))
	require.Equal(t, "audit-1", got["audit_id"])
	require.InDelta(t, 91, got["score"], 0)
	require.Equal(t, map[string]string{"audit_id": "audit-1", "status": "completed"}, msgs[0].Attributes)
}

func TestPublishErrors(t *testing.T) {
	t.Parallel()

	_, err := New(nil).Publish(context.Background(), "t", "x")
	require.ErrorContains(t, err, "not configured")

	_, client := newTestClient(t)
	pub := New(client)
	defer pub.Close()

	_, err = pub.Publish(context.Background(), "", "x")
	require.ErrorContains(t, err, "topic is required")

	_, err = pub.Publish(context.Background(), "audit-events", make(chan int))
	require.ErrorContains(t, err, "marshal payload")

	_, err = pub.Publish(context.Background(), "missing-topic", map[string]string{"status": "queued"})
	require.ErrorContains(t, err, "publish message")
}

func TestAttributesIgnoresNonObjects(t *testing.T) {
	t.Parallel()

	require.Nil(t, attributes([]byte(`"plain"`)))
	require.Nil(t, attributes([]byte(`{"score":3}`)))
	require.Equal(t, map[string]string{"status": "failed"}, attributes([]byte(`{"status":"failed","audit_id":""}`)))
}
