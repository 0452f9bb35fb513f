package fanout

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/meshim/imcore/internal/broker"
	"github.com/meshim/imcore/internal/gateway/codec"
	"github.com/meshim/imcore/internal/identity"
	"github.com/meshim/imcore/internal/imtypes"
	"github.com/meshim/imcore/internal/offlinequeue"
	"github.com/meshim/imcore/internal/sessionregistry"
)

// deliveryPlan is the shared fan-out primitive §4.5 steps 3-7 and
// §4.6 step 5 both reduce to: resolve routability, apply the
// ephemerality check, publish, and offline-enqueue on every path
// (success or failure) unless the ephemerality check fired. SPEC_FULL's
// control endpoints reuse this exact primitive (see DESIGN.md).
type deliveryPlan struct {
	registry  sessionregistry.Registry
	publisher broker.Publisher
	offline   offlinequeue.Queue
	codec     codec.Codec
	log       zerolog.Logger
}

// publishToUser resolves routability, builds the wire frame, publishes
// to the shared dispatch topology, and offline-enqueues as a backup
// (§4.5 steps 3,4,6,7; §4.6 step 5's "resolve subscriptions as in
// §4.5"). It returns storedOnly=true when the ephemerality check
// applied (call invite, no routable subscription).
func (p *deliveryPlan) publishToUser(ctx context.Context, to imtypes.ExtId, f codec.Frame, contentType int, timeoutSec int) (storedOnly bool, err error) {
	routable, rerr := p.registry.IsRoutable(ctx, to)
	if rerr != nil {
		p.log.Warn().Err(rerr).Str("to", to.String()).Msg("fanout: routability check failed, assuming unroutable")
		routable = false
	}

	isCallInvite := imtypes.IsCallInvite(contentType)
	if isCallInvite && !routable {
		// §4.5 step 4: call invites are meaningless when delayed.
		return true, nil
	}

	env := broker.Envelope{
		Code:      int32(f.Code),
		Data:      f.Data,
		Ids:       []string{to.String()},
		Timestamp: f.Timestamp,
		RequestId: f.RequestId,
	}
	if perr := p.publisher.Publish(ctx, env); perr != nil {
		p.log.Warn().Err(perr).Str("to", to.String()).Msg("fanout: publish failed, offline-queue remains the backup")
	}

	encoded, eerr := p.codec.Encode(f)
	if eerr != nil {
		p.log.Error().Err(eerr).Msg("fanout: encode offline payload failed")
		return false, nil
	}

	// §4.5 step 7: offline-queue on BOTH publish success and failure,
	// unless the ephemerality check already short-circuited above.
	if oerr := p.offline.Enqueue(ctx, to, encoded, isCallInvite, timeoutSec, f.Timestamp); oerr != nil {
		p.log.Warn().Err(oerr).Str("to", to.String()).Msg("fanout: offline enqueue failed")
	}

	return false, nil
}

// resolveParticipant implements the "from/to may be any of {external
// id, username}" translation shared by every handler (§4.5, §4.6).
func resolveParticipant(ctx context.Context, resolver *identity.Resolver, input string) (imtypes.ExtId, error) {
	return resolver.Resolve(ctx, input)
}

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
