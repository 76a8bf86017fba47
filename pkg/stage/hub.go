package stage

import (
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/jzx17/httptask/pkg/metrics"
	"github.com/jzx17/httptask/pkg/types"
)

// hub is the subscriber registry shared by every stage.
// It coalesces demand into at most one outstanding pull and fans each outcome
// out to the subscribers registered when the outcome arrives.
type hub[T any] struct {
	name    string
	logger  *zap.Logger
	metrics *metrics.Collector
	pull    func()

	mu          sync.Mutex
	subscribers map[string]*subscription[T]
	pending     map[string]*subscription[T]
	waiting     bool
}

func newHub[T any](name string, logger *zap.Logger, collector *metrics.Collector) *hub[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &hub[T]{
		name:        name,
		logger:      logger,
		metrics:     collector,
		subscribers: make(map[string]*subscription[T]),
		pending:     make(map[string]*subscription[T]),
	}
}

func (h *hub[T]) subscribe(receiver types.Receiver[T]) *subscription[T] {
	s := &subscription[T]{
		id:       uuid.NewString(),
		hub:      h,
		receiver: receiver,
	}
	h.mu.Lock()
	h.subscribers[s.id] = s
	h.mu.Unlock()

	h.logger.Debug("subscribed", zap.String("stage", h.name), zap.String("subscription", s.id))
	return s
}

// demand registers s for the next outcome and pulls upstream unless a pull is outstanding
func (h *hub[T]) demand(s *subscription[T]) {
	h.mu.Lock()
	if _, ok := h.subscribers[s.id]; !ok {
		h.mu.Unlock()
		return
	}
	h.pending[s.id] = s
	start := !h.waiting
	h.waiting = true
	h.mu.Unlock()

	if !start {
		h.logger.Debug("demand coalesced", zap.String("stage", h.name), zap.String("subscription", s.id))
		return
	}
	h.logger.Debug("pulling upstream", zap.String("stage", h.name))
	h.metrics.RecordPull(h.name)
	h.pull()
}

// takePending ends the current demand cycle and returns its subscribers
func (h *hub[T]) takePending() []*subscription[T] {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.waiting = false
	out := make([]*subscription[T], 0, len(h.pending))
	for id, s := range h.pending {
		out = append(out, s)
		delete(h.pending, id)
	}
	return out
}

func (h *hub[T]) finish(value T) {
	subs := h.takePending()
	h.metrics.RecordOutcome(h.name, nil)
	h.logger.Debug("fan-out value", zap.String("stage", h.name), zap.Int("subscribers", len(subs)))
	// a subscriber that was live at fan-out gets both signals even if it cancels in Receive
	for _, s := range subs {
		s.deliver(func(r types.Receiver[T]) {
			r.Receive(value)
			r.ReceiveTermination()
		})
	}
}

func (h *hub[T]) fail(err error) {
	subs := h.takePending()
	h.metrics.RecordOutcome(h.name, err)
	h.logger.Debug("fan-out error", zap.String("stage", h.name), zap.Int("subscribers", len(subs)), zap.Error(err))
	for _, s := range subs {
		s.deliver(func(r types.Receiver[T]) { r.ReceiveError(err) })
	}
}

// progress notifies the current subscribers without ending the cycle
func (h *hub[T]) progress(p types.Progress) {
	h.mu.Lock()
	subs := make([]*subscription[T], 0, len(h.pending))
	for _, s := range h.pending {
		subs = append(subs, s)
	}
	h.mu.Unlock()

	for _, s := range subs {
		s.deliver(func(r types.Receiver[T]) {
			if pr, ok := r.(types.ProgressReceiver); ok {
				pr.ReceiveProgress(p)
			}
		})
	}
}

func (h *hub[T]) remove(id string) {
	h.mu.Lock()
	delete(h.subscribers, id)
	delete(h.pending, id)
	h.mu.Unlock()

	h.logger.Debug("subscription cancelled", zap.String("stage", h.name), zap.String("subscription", id))
}

func (h *hub[T]) size() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// subscription implements types.Subscription for a hub
type subscription[T any] struct {
	id       string
	hub      *hub[T]
	receiver types.Receiver[T]

	mu        sync.Mutex
	cancelled bool
}

// ID implements types.Subscription
func (s *subscription[T]) ID() string {
	return s.id
}

// Request implements types.Subscription.
// A demand cycle yields exactly one terminal outcome however large n is.
func (s *subscription[T]) Request(n int) {
	if n <= 0 {
		return
	}
	s.mu.Lock()
	cancelled := s.cancelled
	s.mu.Unlock()
	if cancelled {
		return
	}
	s.hub.demand(s)
}

// Cancel implements types.Subscription
func (s *subscription[T]) Cancel() {
	s.mu.Lock()
	if s.cancelled {
		s.mu.Unlock()
		return
	}
	s.cancelled = true
	s.mu.Unlock()
	s.hub.remove(s.id)
}

func (s *subscription[T]) deliver(fn func(types.Receiver[T])) {
	s.mu.Lock()
	cancelled := s.cancelled
	s.mu.Unlock()
	if cancelled {
		return
	}
	fn(s.receiver)
}

// upstreamReceiver is the receiver a decorator installs on the stage it wraps.
// Upstream termination always follows a value that already completed the decorator's cycle.
type upstreamReceiver[T any] struct {
	onValue func(T)
	onError func(error)
	onProg  func(types.Progress)
}

func (u *upstreamReceiver[T]) Receive(value T) { u.onValue(value) }
func (u *upstreamReceiver[T]) ReceiveError(err error) { u.onError(err) }
func (u *upstreamReceiver[T]) ReceiveTermination() {}

func (u *upstreamReceiver[T]) ReceiveProgress(p types.Progress) {
	if u.onProg != nil {
		u.onProg(p)
	}
}
