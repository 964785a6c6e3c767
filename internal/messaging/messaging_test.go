package messaging

import (
	"context"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromKafka_CopiesHeaders(t *testing.T) {
	now := time.Now()
	msg := kafka.Message{
		Topic:  "orders.events",
		Key:    []byte("order-1"),
		Value:  []byte(`{"id":1}`),
		Offset: 42,
		Time:   now,
		Headers: []kafka.Header{
			{Key: HeaderEventType, Value: []byte("order.created")},
			{Key: HeaderEventID, Value: []byte("abc")},
		},
	}

	wrapped := fromKafka(msg)

	assert.Equal(t, "orders.events", wrapped.Topic)
	assert.Equal(t, []byte("order-1"), wrapped.Key)
	assert.Equal(t, int64(42), wrapped.Offset)
	assert.Equal(t, "order.created", wrapped.Headers[HeaderEventType])
	assert.Equal(t, "abc", wrapped.Headers[HeaderEventID])

	msg.Value[0] = 'X'
	assert.Equal(t, byte('{'), wrapped.Value[0])
}

func TestFromKafka_NoHeaders(t *testing.T) {
	assert.Nil(t, fromKafka(kafka.Message{}).Headers)
}

func TestNoop(t *testing.T) {
	client := NewNoop("orders.events")

	assert.Equal(t, "orders.events", client.Topic())
	require.NoError(t, client.Publish(context.Background(), Message{Value: []byte("x")}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, client.Consume(ctx, nil), context.Canceled)
}
