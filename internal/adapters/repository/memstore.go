package repository

import (
	"container/list"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/okian/dosewatch/internal/domain/filter"
	"github.com/okian/dosewatch/internal/domain/record"
	"github.com/okian/dosewatch/pkg/metrics"
)

const (
	defaultMaxSessions           = 64
	defaultMetricsUpdateInterval = 5 * time.Second
)

// MemoryStore is an in-memory Store with least-recently-used eviction.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]*list.Element // values are *entry
	lru      *list.List               // front = most recently touched

	maxSessions           int
	idleTimeout           time.Duration
	metricsUpdateInterval time.Duration
	now                   func() time.Time

	wg       sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
}

type entry struct {
	session *Session
	touched time.Time
}

// NewMemoryStore constructs a session store and starts its background
// metrics updater. Call Close to stop it.
func NewMemoryStore(ctx context.Context, opts ...Option) *MemoryStore {
	s := &MemoryStore{
		sessions:              make(map[string]*list.Element),
		lru:                   list.New(),
		maxSessions:           defaultMaxSessions,
		metricsUpdateInterval: defaultMetricsUpdateInterval,
		now:                   time.Now,
		stopChan:              make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.startMetricsUpdater(ctx)
	return s
}

// Close stops background work.
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	return nil
}

// Create implements Store.Create.
func (s *MemoryStore) Create(ctx context.Context, criteria filter.Criteria, columns []string, rows []record.Annotated) (Session, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}
	now := s.now()
	sess := &Session{
		ID:        uuid.NewString(),
		Criteria:  criteria,
		Columns:   append([]string(nil), columns...),
		Rows:      cloneRows(rows),
		CreatedAt: now,
		UpdatedAt: now,
	}

	s.mu.Lock()
	for s.lru.Len() >= s.maxSessions {
		s.removeElement(s.lru.Back())
		metrics.RecordSessionEvicted()
	}
	s.sessions[sess.ID] = s.lru.PushFront(&entry{session: sess, touched: now})
	count := s.lru.Len()
	out := copySession(sess)
	s.mu.Unlock()

	metrics.RecordSessionCreated()
	metrics.UpdateSessionsActive(count)
	return out, nil
}

// Get implements Store.Get. Reading a session counts as touching it.
func (s *MemoryStore) Get(_ context.Context, id string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.sessions[id]
	if !ok {
		return Session{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	s.touch(el)
	return copySession(el.Value.(*entry).session), nil
}

// UpdateRow implements Store.UpdateRow.
func (s *MemoryStore) UpdateRow(_ context.Context, id string, index int, p Patch) (record.Annotated, error) {
	if p.IsZero() {
		return record.Annotated{}, ErrEmptyPatch
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.sessions[id]
	if !ok {
		return record.Annotated{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	sess := el.Value.(*entry).session
	if index < 0 || index >= len(sess.Rows) {
		return record.Annotated{}, fmt.Errorf("%w: %d not in [0,%d)", ErrRowOutOfRange, index, len(sess.Rows))
	}

	p.Apply(&sess.Rows[index])
	sess.Edits++
	sess.UpdatedAt = s.now()
	s.touch(el)
	metrics.RecordRowEdit()
	return sess.Rows[index].Clone(), nil
}

// Delete implements Store.Delete.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	el, ok := s.sessions[id]
	if ok {
		s.removeElement(el)
	}
	count := s.lru.Len()
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	metrics.UpdateSessionsActive(count)
	return nil
}

// Count implements Store.Count.
func (s *MemoryStore) Count(_ context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lru.Len()
}

// Sweep removes sessions not read or edited within the idle timeout and
// returns how many were removed.
func (s *MemoryStore) Sweep() int {
	if s.idleTimeout <= 0 {
		return 0
	}
	cutoff := s.now().Add(-s.idleTimeout)

	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for el := s.lru.Back(); el != nil; {
		prev := el.Prev()
		if !el.Value.(*entry).touched.Before(cutoff) {
			break
		}
		s.removeElement(el)
		removed++
		el = prev
	}
	return removed
}

// touch and removeElement must be called with mu held.
func (s *MemoryStore) touch(el *list.Element) {
	el.Value.(*entry).touched = s.now()
	s.lru.MoveToFront(el)
}

func (s *MemoryStore) removeElement(el *list.Element) {
	e := s.lru.Remove(el).(*entry)
	delete(s.sessions, e.session.ID)
}

// startMetricsUpdater refreshes the session gauge and sweeps idle sessions.
func (s *MemoryStore) startMetricsUpdater(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.metricsUpdateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				s.Sweep()
				metrics.UpdateSessionsActive(s.Count(ctx))
			}
		}
	}()
}

func copySession(s *Session) Session {
	out := *s
	out.Columns = append([]string(nil), s.Columns...)
	out.Rows = cloneRows(s.Rows)
	return out
}

func cloneRows(rows []record.Annotated) []record.Annotated {
	out := make([]record.Annotated, len(rows))
	for i, r := range rows {
		out[i] = r.Clone()
	}
	return out
}
