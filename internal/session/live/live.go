package live

import (
	"context"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/dinehall/dinehall/internal/changefeed"
	"github.com/dinehall/dinehall/internal/config"
	obsmetrics "github.com/dinehall/dinehall/internal/observability/metrics"
	sessiondomain "github.com/dinehall/dinehall/internal/session/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Log        *zap.Logger
	Cfg        config.Config
	Svc        sessiondomain.Service
	Hub        *changefeed.Hub     `optional:"true"`
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

// Tracker keeps the active-sessions view for a restaurant warm. Every
// change event triggers a full refetch; order item changes additionally
// re-run the total aggregation before the refetch lands.
type Tracker struct {
	log *zap.Logger
	svc sessiondomain.Service

	mu      sync.RWMutex
	current snowflake.ID
	views   map[snowflake.ID][]sessiondomain.SessionView

	sub *changefeed.Subscriber[[]sessiondomain.SessionView]
}

func NewTracker(p Params) *Tracker {
	t := &Tracker{
		log:   p.Log.Named("session.live"),
		svc:   p.Svc,
		views: make(map[snowflake.ID][]sessiondomain.SessionView),
	}
	if p.Hub == nil {
		return t
	}

	t.sub = changefeed.NewSubscriber(p.Hub, p.Log,
		func(ctx context.Context, restaurantID snowflake.ID) ([]sessiondomain.SessionView, error) {
			return p.Svc.ListActiveSessions(ctx, restaurantID)
		},
		func(restaurantID snowflake.ID, views []sessiondomain.SessionView) {
			t.mu.Lock()
			t.views[restaurantID] = views
			t.mu.Unlock()
			p.ObsMetrics.RecordFeedRefresh(context.Background(), restaurantID.String())
		},
		changefeed.WithBackoff[[]sessiondomain.SessionView](
			time.Duration(p.Cfg.FeedRetryBaseMillis)*time.Millisecond,
			time.Duration(p.Cfg.FeedRetryMaxMillis)*time.Millisecond,
		),
		changefeed.WithOnChange[[]sessiondomain.SessionView](func(ctx context.Context, event changefeed.Event) {
			if event.Table != "order_items" || event.Ref == 0 {
				return
			}
			if _, err := t.svc.RecomputeOrderTotal(ctx, event.Ref); err != nil {
				t.log.Warn("total recompute failed",
					zap.String("order_id", event.Ref.String()),
					zap.Error(err),
				)
			}
		}),
	)
	return t
}

// Start opens the feed for restaurantID. Restarting with the same
// restaurant is a no-op; switching drops the previous snapshot so a
// stale view is never served.
func (t *Tracker) Start(restaurantID snowflake.ID) {
	t.mu.Lock()
	if t.current != restaurantID {
		delete(t.views, t.current)
		t.current = restaurantID
	}
	t.mu.Unlock()
	t.sub.Start(restaurantID)
}

func (t *Tracker) Stop() {
	t.sub.Stop()
	t.mu.Lock()
	delete(t.views, t.current)
	t.current = 0
	t.mu.Unlock()
}

// Snapshot returns the last refetched view for the tracked restaurant.
// ok is false until the first refresh lands.
func (t *Tracker) Snapshot(restaurantID snowflake.ID) ([]sessiondomain.SessionView, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if restaurantID != t.current {
		return nil, false
	}
	views, ok := t.views[restaurantID]
	return views, ok
}
