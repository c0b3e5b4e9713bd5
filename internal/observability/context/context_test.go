package context

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := WithRequestID(context.Background(), "  req-1 ")
	assert.Equal(t, "req-1", RequestIDFromContext(ctx))

	unchanged := WithRequestID(context.Background(), " ")
	assert.Empty(t, RequestIDFromContext(unchanged))
}

func TestActorFromContext(t *testing.T) {
	actorType, actorID := ActorFromContext(context.Background())
	assert.Empty(t, actorType)
	assert.Empty(t, actorID)

	ctx := WithActor(context.Background(), "user", "u-1")
	actorType, actorID = ActorFromContext(ctx)
	assert.Equal(t, "user", actorType)
	assert.Equal(t, "u-1", actorID)
}
