package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublisherRecordsEncodedMessages(t *testing.T) {
	t.Parallel()

	pub := New()
	id1, err := pub.Publish(context.Background(), "audit-events", map[string]any{"audit_id": "a1", "status": "queued"})
	require.NoError(t, err)
	require.Equal(t, "memory-1", id1)
	id2, err := pub.Publish(context.Background(), "other", "payload")
	require.NoError(t, err)
	require.Equal(t, "memory-2", id2)

	msgs := pub.Topic("audit-events")
	require.Len(t, msgs, 1)
	require.Equal(t, map[string]string{"audit_id": "a1", "status": "queued"}, msgs[0].Attributes)

	var body map[string]string
	require.NoError(t, msgs[0].Decode(&body))
	require.Equal(t, "queued", body["status"])

	all := pub.Messages()
	all[0].Topic = "modified"
	require.Equal(t, "audit-events", pub.Messages()[0].Topic, "Messages() returns a copy")
	require.Empty(t, pub.Messages()[1].Attributes)
}

func TestPublisherDropsOldest(t *testing.T) {
	t.Parallel()

	pub := NewWithLimit(2)
	for i := range 3 {
		_, err := pub.Publish(context.Background(), "t", map[string]int{"n": i})
		require.NoError(t, err)
	}
	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, "memory-2", msgs[0].ID)
	require.Equal(t, "memory-3", msgs[1].ID)
}

func TestPublisherRejectsUnencodablePayload(t *testing.T) {
	t.Parallel()

	_, err := New().Publish(context.Background(), "t", func() {})
	require.ErrorContains(t, err, "marshal payload")
	require.Empty(t, New().Messages())
}
