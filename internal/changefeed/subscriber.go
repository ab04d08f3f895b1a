package changefeed

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/zap"
)

const (
	defaultRetryBase = 250 * time.Millisecond
	defaultRetryMax  = 5 * time.Second
)

// FetchFunc re-runs the authoritative query for one restaurant. The
// whole view is refetched on every change; the active set is small and
// a race-free full refresh is simpler to reason about than patching.
type FetchFunc[T any] func(ctx context.Context, restaurantID snowflake.ID) (T, error)

// ViewFunc receives a freshly fetched view. It is never called with a
// view fetched under a superseded subscription.
type ViewFunc[T any] func(restaurantID snowflake.ID, view T)

// ChangeFunc observes raw feed events before the refetch, e.g. to
// re-aggregate an order total when its line items move.
type ChangeFunc func(ctx context.Context, event Event)

type Option[T any] func(*Subscriber[T])

func WithBackoff[T any](base, max time.Duration) Option[T] {
	return func(s *Subscriber[T]) {
		if base > 0 {
			s.retryBase = base
		}
		if max > 0 {
			s.retryMax = max
		}
	}
}

func WithOnChange[T any](fn ChangeFunc) Option[T] {
	return func(s *Subscriber[T]) {
		s.onChange = fn
	}
}

// Subscriber maintains one logical feed per restaurant. Starting it for
// a different restaurant replaces the held handle; refreshes begun
// under a superseded handle are fetched to completion but their result
// is discarded (generation guard).
type Subscriber[T any] struct {
	hub      *Hub
	log      *zap.Logger
	fetch    FetchFunc[T]
	onView   ViewFunc[T]
	onChange ChangeFunc

	retryBase time.Duration
	retryMax  time.Duration

	mu           sync.Mutex
	restaurantID snowflake.ID
	handle       *Subscription
	cancel       context.CancelFunc
	generation   atomic.Uint64
}

func NewSubscriber[T any](hub *Hub, log *zap.Logger, fetch FetchFunc[T], onView ViewFunc[T], opts ...Option[T]) *Subscriber[T] {
	s := &Subscriber[T]{
		hub:       hub,
		log:       log.Named("changefeed.subscriber"),
		fetch:     fetch,
		onView:    onView,
		retryBase: defaultRetryBase,
		retryMax:  defaultRetryMax,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start opens the feed for restaurantID. Calling it again with the same
// restaurant while the feed is live is a no-op; a different restaurant
// tears the current handle down first.
func (s *Subscriber[T]) Start(restaurantID snowflake.ID) {
	if s == nil || restaurantID == 0 {
		return
	}

	s.mu.Lock()
	if s.restaurantID == restaurantID && s.handle != nil {
		s.mu.Unlock()
		return
	}
	s.teardownLocked()
	gen := s.generation.Add(1)
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.restaurantID = restaurantID
	s.mu.Unlock()

	go s.run(ctx, gen, restaurantID)
}

// Stop closes the current feed. Safe to call when no subscription
// exists and safe to call repeatedly.
func (s *Subscriber[T]) Stop() {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.teardownLocked()
	s.generation.Add(1)
	s.restaurantID = 0
	s.mu.Unlock()
}

func (s *Subscriber[T]) teardownLocked() {
	if s.handle != nil {
		s.handle.Close()
		s.handle = nil
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

func (s *Subscriber[T]) run(ctx context.Context, gen uint64, restaurantID snowflake.ID) {
	topic := RestaurantTopic(restaurantID)
	delay := s.retryBase

	var sub *Subscription
	for {
		var err error
		sub, _, err = s.hub.Subscribe(topic)
		if err == nil {
			break
		}
		s.log.Warn("feed subscribe failed, retrying",
			zap.String("topic", topic),
			zap.Duration("retry_in", delay),
			zap.Error(err),
		)
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay *= 2
		if delay > s.retryMax {
			delay = s.retryMax
		}
	}

	s.mu.Lock()
	if s.generation.Load() != gen {
		s.mu.Unlock()
		sub.Close()
		return
	}
	s.handle = sub
	s.mu.Unlock()

	// Initial refresh covers changes committed before the feed opened.
	s.refresh(ctx, gen, restaurantID)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-sub.Events():
			if !ok {
				return
			}
			if s.onChange != nil {
				s.onChange(ctx, event)
			}
			s.refresh(ctx, gen, restaurantID)
		}
	}
}

func (s *Subscriber[T]) refresh(ctx context.Context, gen uint64, restaurantID snowflake.ID) {
	view, err := s.fetch(ctx, restaurantID)
	if err != nil {
		if ctx.Err() == nil {
			s.log.Warn("feed refresh failed",
				zap.String("restaurant_id", restaurantID.String()),
				zap.Error(err),
			)
		}
		return
	}
	if s.generation.Load() != gen {
		// Superseded mid-flight; the fetched view is stale.
		return
	}
	if s.onView != nil {
		s.onView(restaurantID, view)
	}
}
