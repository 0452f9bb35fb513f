package fanout

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshim/imcore/internal/broker"
	"github.com/meshim/imcore/internal/gateway/codec"
	"github.com/meshim/imcore/internal/imtypes"
	"github.com/meshim/imcore/internal/offlinequeue"
	"github.com/meshim/imcore/internal/sessionregistry"
)

func newTestPlan(t *testing.T) (*deliveryPlan, *sessionregistry.InMemory, *broker.InMemoryPublisher, *offlinequeue.InMemory) {
	t.Helper()
	registry := sessionregistry.NewInMemory()
	publisher := broker.NewInMemoryPublisher()
	offline := offlinequeue.NewInMemory()
	plan := &deliveryPlan{
		registry:  registry,
		publisher: publisher,
		offline:   offline,
		codec:     codec.JSONCodec{},
		log:       zerolog.Nop(),
	}
	return plan, registry, publisher, offline
}

func TestPublishToUser_RoutableText_PublishesAndOfflineQueues(t *testing.T) {
	plan, registry, publisher, offline := newTestPlan(t)
	ctx := context.Background()

	to := imtypes.ExtId(42)
	_, err := registry.EnsureSubscription(ctx, to)
	require.NoError(t, err)

	frame := codec.Frame{Code: codec.CodeSingle, Data: imtypes.ChatMessage{MessageId: "m1"}, Timestamp: 100}
	storedOnly, err := plan.publishToUser(ctx, to, frame, imtypes.ContentText, 0)
	require.NoError(t, err)
	assert.False(t, storedOnly)
	assert.Len(t, publisher.Published, 1)

	entries, err := offline.Drain(ctx, to)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestPublishToUser_CallInviteUnroutable_StoredOnlyNoPublishNoEnqueue(t *testing.T) {
	plan, _, publisher, offline := newTestPlan(t)
	ctx := context.Background()

	to := imtypes.ExtId(7)
	frame := codec.Frame{Code: codec.CodeSingle, Data: imtypes.ChatMessage{MessageId: "m2"}, Timestamp: 100}
	storedOnly, err := plan.publishToUser(ctx, to, frame, imtypes.ContentCallInvite, 30)
	require.NoError(t, err)
	assert.True(t, storedOnly)
	assert.Empty(t, publisher.Published)

	entries, err := offline.Drain(ctx, to)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestPublishToUser_CallInviteRoutable_PublishesWithoutShortCircuit(t *testing.T) {
	plan, registry, publisher, _ := newTestPlan(t)
	ctx := context.Background()

	to := imtypes.ExtId(9)
	_, err := registry.EnsureSubscription(ctx, to)
	require.NoError(t, err)

	frame := codec.Frame{Code: codec.CodeVideo, Data: imtypes.ChatMessage{MessageId: "m3"}, Timestamp: 100}
	storedOnly, err := plan.publishToUser(ctx, to, frame, imtypes.ContentCallInvite, 30)
	require.NoError(t, err)
	assert.False(t, storedOnly)
	assert.Len(t, publisher.Published, 1)
}

func TestPublishToUser_PublishFailure_StillOfflineQueues(t *testing.T) {
	plan, registry, publisher, offline := newTestPlan(t)
	ctx := context.Background()

	to := imtypes.ExtId(11)
	_, err := registry.EnsureSubscription(ctx, to)
	require.NoError(t, err)
	publisher.FailNext = true

	frame := codec.Frame{Code: codec.CodeSingle, Data: imtypes.ChatMessage{MessageId: "m4"}, Timestamp: 100}
	storedOnly, err := plan.publishToUser(ctx, to, frame, imtypes.ContentText, 0)
	require.NoError(t, err)
	assert.False(t, storedOnly)
	assert.Empty(t, publisher.Published)

	entries, err := offline.Drain(ctx, to)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}
