package storage

import (
	"context"
	"maps"
	"slices"
	"sync"
	"time"
)

// MemoryStore keeps the latest scenario snapshot of every principal station,
// grouped by source so a whole flow file can be listed or dropped at once.
// It is safe for concurrent use.
//
// With a TTL, snapshots whose GeneratedAt is older than the TTL are hidden
// from GetLatest and Sources immediately and removed by a background sweep.
// Use SQLiteStore or RedisStore for snapshots that must survive a restart.
type MemoryStore struct {
	mu      sync.RWMutex
	sources map[string]map[int]Snapshot

	ttl time.Duration
	now func() time.Time

	stop     context.CancelFunc
	swept    chan struct{}
	stopOnce sync.Once
}

// NewMemoryStore creates a store whose snapshots never expire.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sources: make(map[string]map[int]Snapshot),
		now:     time.Now,
	}
}

// NewMemoryStoreWithTTL creates a store that expires snapshots after ttl and
// sweeps them every sweepEvery (one minute when sweepEvery <= 0). Call Stop
// to end the sweep. It panics if ttl is not positive.
func NewMemoryStoreWithTTL(ttl, sweepEvery time.Duration) *MemoryStore {
	if ttl <= 0 {
		panic("storage: snapshot TTL must be positive")
	}
	if sweepEvery <= 0 {
		sweepEvery = time.Minute
	}

	s := NewMemoryStore()
	s.ttl = ttl
	s.swept = make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	s.stop = cancel
	go s.sweepLoop(ctx, sweepEvery)

	return s
}

// Stop ends the background sweep and waits for it. It is a no-op for stores
// without TTL and safe to call more than once.
func (s *MemoryStore) Stop() {
	if s.stop == nil {
		return
	}
	s.stopOnce.Do(func() {
		s.stop()
		<-s.swept
	})
}

func (s *MemoryStore) sweepLoop(ctx context.Context, every time.Duration) {
	defer close(s.swept)

	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-ctx.Done():
			return
		}
	}
}

// sweep drops expired snapshots and sources left without stations.
func (s *MemoryStore) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for source, stations := range s.sources {
		maps.DeleteFunc(stations, func(_ int, snap Snapshot) bool {
			return s.expired(snap)
		})
		if len(stations) == 0 {
			delete(s.sources, source)
		}
	}
}

func (s *MemoryStore) expired(snap Snapshot) bool {
	return s.ttl > 0 && s.now().Sub(snap.GeneratedAt) > s.ttl
}

// Put replaces the snapshot of snap.Source and snap.Station.
func (s *MemoryStore) Put(ctx context.Context, snap Snapshot) error {
	if err := validSource(snap.Source); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stations, ok := s.sources[snap.Source]
	if !ok {
		stations = make(map[int]Snapshot)
		s.sources[snap.Source] = stations
	}
	stations[snap.Station] = snap
	return nil
}

// GetLatest returns the snapshot of a source and station. Expired snapshots
// are reported as not found.
func (s *MemoryStore) GetLatest(ctx context.Context, source string, station int) (Snapshot, bool, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.sources[source][station]
	if !ok || s.expired(snap) {
		return Snapshot{}, false, nil
	}
	return snap, true, nil
}

// Sources returns, sorted, the sources with at least one live snapshot.
func (s *MemoryStore) Sources(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.sources))
	for source, stations := range s.sources {
		for _, snap := range stations {
			if !s.expired(snap) {
				out = append(out, source)
				break
			}
		}
	}
	slices.Sort(out)
	return out, nil
}

// Len returns the number of stored snapshots, expired ones included until
// the next sweep.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, stations := range s.sources {
		n += len(stations)
	}
	return n
}
