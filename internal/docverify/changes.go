package docverify

import (
	"context"
	"sync"
	"time"
)

// ChangeAction names the kind of mutation a Change describes.
type ChangeAction string

const (
	ActionStore   ChangeAction = "store"
	ActionVerify  ChangeAction = "verify"
	ActionMigrate ChangeAction = "migrate"
	ActionCleanup ChangeAction = "cleanup"
	ActionRepair  ChangeAction = "repair"
	ActionClear   ChangeAction = "clear"
)

// Change is broadcast after every successful RecordStore mutation. Hash is
// empty for actions that touch the whole mapping.
type Change struct {
	Action ChangeAction `json:"action"`
	Hash   string       `json:"hash,omitempty"`
	At     time.Time    `json:"at"`
}

// Observer receives record changes. RecordChanged is called synchronously
// from the mutating call, so implementations should not block.
type Observer interface {
	RecordChanged(Change)
}

// ObserverFunc adapts a plain function to Observer.
type ObserverFunc func(Change)

func (f ObserverFunc) RecordChanged(c Change) { f(c) }

type observers struct {
	mu   sync.Mutex
	next int
	subs map[int]Observer
}

func (o *observers) add(obs Observer) func() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.subs == nil {
		o.subs = make(map[int]Observer)
	}
	id := o.next
	o.next++
	o.subs[id] = obs
	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		delete(o.subs, id)
	}
}

func (o *observers) notify(c Change) {
	o.mu.Lock()
	subs := make([]Observer, 0, len(o.subs))
	for id := 0; id < o.next; id++ {
		if obs, ok := o.subs[id]; ok {
			subs = append(subs, obs)
		}
	}
	o.mu.Unlock()

	for _, obs := range subs {
		obs.RecordChanged(c)
	}
}

// Stats is a projection of the current record snapshot. It is informational
// only and never used to decide validity.
type Stats struct {
	Total     int `json:"total"`
	Verified  int `json:"verified"`
	Pending   int `json:"pending"`
	Failed    int `json:"failed"`
	LocalOnly int `json:"localOnly"`
}

// ComputeStats counts records by status.
func ComputeStats(records map[string]*DocumentRecord) Stats {
	var s Stats
	for _, r := range records {
		if r == nil {
			continue
		}
		s.Total++
		switch r.Status {
		case RecordVerified:
			s.Verified++
		case RecordPending:
			s.Pending++
		case RecordFailed:
			s.Failed++
		}
		if r.LocalOnly {
			s.LocalOnly++
		}
	}
	return s
}

// StatsTracker keeps Stats current by recomputing them whenever the store
// reports a change. Subscribe it with RecordStore.Subscribe.
type StatsTracker struct {
	store *RecordStore

	mu      sync.RWMutex
	current Stats
}

// NewStatsTracker computes the initial stats and subscribes to store. The
// returned function unsubscribes the tracker.
func NewStatsTracker(store *RecordStore) (*StatsTracker, func()) {
	t := &StatsTracker{store: store}
	t.refresh()
	return t, store.Subscribe(t)
}

func (t *StatsTracker) RecordChanged(Change) { t.refresh() }

// Current returns the most recently computed stats.
func (t *StatsTracker) Current() Stats {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.current
}

func (t *StatsTracker) refresh() {
	s := t.store.Stats(context.Background())
	t.mu.Lock()
	t.current = s
	t.mu.Unlock()
}
