package events

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"water-dispatch-backend/config"
)

func TestConnect_DisabledReturnsNop(t *testing.T) {
	pub, err := Connect(config.EventsConfig{}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, Nop{}, pub)
	assert.NoError(t, pub.Publish(context.Background(), NewEvent(TypeRequestCreated, "u1", 30)))
	pub.Close()
}

func TestConnect_UnreachableServer(t *testing.T) {
	_, err := Connect(config.EventsConfig{NatsURL: "nats://127.0.0.1:1"}, zap.NewNop())
	assert.Error(t, err)
}

func TestSubject(t *testing.T) {
	assert.Equal(t, "dispatch.request.created", Subject("dispatch", TypeRequestCreated))
	assert.Equal(t, "delivery.completed", Subject("", TypeDeliveryCompleted))
}

func TestNewEvent(t *testing.T) {
	e := NewEvent(TypeDeliveryCompleted, "u1", 100)
	assert.NotEqual(t, uuid.Nil, e.ID)
	assert.Equal(t, "u1", e.UserID)
	assert.Equal(t, 100, e.Level)
	assert.False(t, e.OccurredAt.IsZero())
}
