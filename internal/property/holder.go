package property

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/safe-zone/internal/model"
	"github.com/sells-group/safe-zone/internal/observability"
	"github.com/sells-group/safe-zone/internal/scorer"
	"github.com/sells-group/safe-zone/internal/store"
)

// Holder owns the single active property. Readers get immutable snapshots;
// Toggle is the only mutation and publishes each new snapshot atomically.
type Holder struct {
	mu      sync.Mutex // serializes writers
	current atomic.Pointer[model.Property]

	clock   clockwork.Clock
	store   store.Store
	metrics *observability.Metrics

	subsMu  sync.Mutex
	subs    map[int]chan model.Property
	nextSub int
}

// Option configures a Holder.
type Option func(*Holder)

// WithClock sets the clock used to stamp snapshots.
func WithClock(c clockwork.Clock) Option {
	return func(h *Holder) { h.clock = c }
}

// WithStore persists every changed snapshot and journals the toggle.
func WithStore(s store.Store) Option {
	return func(h *Holder) { h.store = s }
}

// WithMetrics records toggle counts and the current user score.
func WithMetrics(m *observability.Metrics) Option {
	return func(h *Holder) { h.metrics = m }
}

// NewHolder validates initial and makes it the active property.
func NewHolder(initial model.Property, opts ...Option) (*Holder, error) {
	if err := initial.Validate(); err != nil {
		return nil, eris.Wrap(err, "property: initial snapshot")
	}

	h := &Holder{
		clock: clockwork.NewRealClock(),
		subs:  make(map[int]chan model.Property),
	}
	for _, opt := range opts {
		opt(h)
	}

	snap := initial.Clone()
	if snap.UpdatedAt.IsZero() {
		snap.UpdatedAt = h.clock.Now().UTC()
	}
	h.current.Store(&snap)
	h.observeScore(snap)
	return h, nil
}

// Open restores the property with seed's id from st, falling back to seed
// when nothing has been saved yet. The returned Holder persists to st.
func Open(ctx context.Context, st store.Store, seed model.Property, opts ...Option) (*Holder, error) {
	initial := seed
	saved, err := st.LoadProperty(ctx, seed.ID)
	switch {
	case err == nil:
		initial = *saved
		zap.L().Info("property: restored snapshot",
			zap.String("property_id", saved.ID),
			zap.Int64("version", saved.Version),
		)
	case eris.Is(err, store.ErrNotFound):
		zap.L().Info("property: no saved snapshot, using seed", zap.String("property_id", seed.ID))
	default:
		return nil, eris.Wrap(err, "property: restore snapshot")
	}

	h, err := NewHolder(initial, append(opts, WithStore(st))...)
	if err != nil {
		return nil, err
	}
	if saved == nil {
		if err := st.SaveProperty(ctx, h.Snapshot()); err != nil {
			return nil, eris.Wrap(err, "property: save seed snapshot")
		}
	}
	return h, nil
}

// Snapshot returns a deep copy of the current property.
func (h *Holder) Snapshot() model.Property {
	return h.current.Load().Clone()
}

// UserScore counts completed tasks in the current snapshot.
func (h *Holder) UserScore() int {
	return scorer.UserScore(h.current.Load().Tasks)
}

// Toggle flips task taskID and returns the resulting snapshot. An unknown id
// leaves the property untouched and reports changed == false. Store failures
// are logged; they never fail the toggle.
func (h *Holder) Toggle(ctx context.Context, taskID int) (model.Property, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	cur := h.current.Load()
	next, changed := ToggleTask(*cur, taskID)
	if !changed {
		h.countToggle("noop")
		zap.L().Debug("property: toggle for unknown task ignored",
			zap.String("property_id", cur.ID),
			zap.Int("task_id", taskID),
		)
		return next, false
	}

	next.Version = cur.Version + 1
	next.UpdatedAt = h.clock.Now().UTC()

	published := next.Clone()
	h.current.Store(&published)
	h.countToggle("changed")
	h.observeScore(published)

	h.persist(ctx, published, taskID)
	h.publish(published)

	return next, true
}

func (h *Holder) persist(ctx context.Context, p model.Property, taskID int) {
	if h.store == nil {
		return
	}

	task, _ := p.FindTask(taskID)
	ev := model.ToggleEvent{
		ID:         uuid.NewString(),
		PropertyID: p.ID,
		TaskID:     taskID,
		Completed:  task.Completed,
		Version:    p.Version,
		CreatedAt:  p.UpdatedAt,
	}

	err := h.store.SaveProperty(ctx, p)
	if err == nil {
		err = h.store.RecordToggle(ctx, ev)
	}
	if err != nil {
		if h.metrics != nil {
			h.metrics.PersistFailures.Inc()
		}
		zap.L().Warn("property: persist toggle failed",
			zap.String("property_id", p.ID),
			zap.Int("task_id", taskID),
			zap.Int64("version", p.Version),
			zap.Error(err),
		)
	}
}

// History returns the most recent toggles for the active property, newest first.
func (h *Holder) History(ctx context.Context, limit int) ([]model.ToggleEvent, error) {
	if h.store == nil {
		return nil, nil
	}
	return h.store.ListToggles(ctx, h.current.Load().ID, limit)
}

// Subscribe returns a channel that receives each new snapshot. Slow readers
// only see the latest one. cancel stops delivery and closes the channel.
func (h *Holder) Subscribe() (<-chan model.Property, func()) {
	ch := make(chan model.Property, 1)

	h.subsMu.Lock()
	id := h.nextSub
	h.nextSub++
	h.subs[id] = ch
	h.subsMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.subsMu.Lock()
			delete(h.subs, id)
			h.subsMu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

func (h *Holder) publish(p model.Property) {
	h.subsMu.Lock()
	defer h.subsMu.Unlock()

	for _, ch := range h.subs {
		select {
		case ch <- p.Clone():
			continue
		default:
		}
		// Drop the stale snapshot and replace it with the latest.
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- p.Clone():
		default:
		}
	}
}

func (h *Holder) countToggle(result string) {
	if h.metrics != nil {
		h.metrics.TaskToggles.WithLabelValues(result).Inc()
	}
}

func (h *Holder) observeScore(p model.Property) {
	if h.metrics != nil {
		h.metrics.UserScore.Set(float64(scorer.UserScore(p.Tasks)))
	}
}
