package eventbus

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/browsergrid/gridcore/internal/gridtypes"
)

// Notifier fans a local publish out to every Distributor the publishing
// process knows about, over plain intra-cluster HTTP, so a Queue process
// on one host wakes a Distributor on another without either sharing an
// in-process Bus. It is a best-effort supplement to the Bus, never the
// only path: a lost notification is recovered by the Distributor's own
// periodic scheduling tick, so Notifier failures are logged, not
// retried.
type Notifier struct {
	log     zerolog.Logger
	client  *gridtypes.Client
	targets func() []string // returns current distributor base URLs
}

// NewNotifier builds a Notifier that POSTs to whatever base URLs targets
// returns at the time of each call, so the target set can change as
// distributors join or leave without reconstructing the Notifier.
func NewNotifier(log zerolog.Logger, client *gridtypes.Client, targets func() []string) *Notifier {
	return &Notifier{
		log:     log.With().Str("component", "eventbus.notifier").Logger(),
		client:  client,
		targets: targets,
	}
}

// NotifyNewSessionRequest tells every known distributor that a request is
// now pending, so one of them can schedule it before its next tick.
func (n *Notifier) NotifyNewSessionRequest(ctx context.Context, requestID gridtypes.RequestID) {
	n.broadcast(ctx, "/internal/events/new-session-request", NewSessionRequestEvent{RequestID: requestID})
}

func (n *Notifier) broadcast(ctx context.Context, path string, payload any) {
	targets := n.targets()
	if len(targets) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, base := range targets {
		base := base
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := n.client.Post(ctx, base+path, payload, nil); err != nil {
				n.log.Debug().Err(err).Str("target", base).Msg("webhook notification failed, relying on next tick")
			}
		}()
	}
	wg.Wait()
}
