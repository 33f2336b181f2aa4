package weather

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"
)

// flight is one outbound load for a key. Waiters block on done.
type flight struct {
	gen    uint64
	prev   Status
	done   chan struct{}
	cancel context.CancelFunc
	err    error
}

type entry struct {
	key   Key
	loc   TrackedLocation
	state Status

	data      *CardViewModel
	place     *PlaceResult
	err       error
	fetchedAt time.Time

	issued   uint64
	inflight *flight

	subs       map[uint64]func(State)
	lastActive time.Time

	// serializes subscriber delivery so a subscriber never sees an older state after a newer one
	notifyMu sync.Mutex
}

// Service is the keyed, deduplicated cache over a Gateway and MapForecast.
//
// Each key has at most one request in flight. A result is applied only if it
// belongs to the most recently issued request for its key, and a failure never
// discards the last good CardViewModel.
type Service struct {
	gateway  Gateway
	fallback CoordinateResolver
	now      func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	policy  Policy
	entries map[Key]*entry
	nextSub uint64
	closed  bool

	placesMu sync.Mutex
	places   map[placeKey]*placeEntry
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithFallbackResolver sets a resolver used when place search returns nothing.
func WithFallbackResolver(r CoordinateResolver) Option {
	return func(s *Service) {
		s.fallback = r
	}
}

// NewService creates a new Service.
func NewService(gateway Gateway, policy Policy, opts ...Option) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		gateway: gateway,
		now:     time.Now,
		ctx:     ctx,
		cancel:  cancel,
		policy:  policy,
		entries: make(map[Key]*entry),
		places:  make(map[placeKey]*placeEntry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Policy returns the active policy.
func (s *Service) Policy() Policy {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.policy
}

// SetPolicy replaces the policy. Requests already in flight keep the old one.
func (s *Service) SetPolicy(p Policy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policy = p
}

// Query returns the current state for loc without blocking and starts a
// background load when the cached value is missing or stale.
func (s *Service) Query(loc TrackedLocation, lang string) State {
	s.mu.Lock()
	e := s.entryLocked(loc, lang)
	e.lastActive = s.now()
	started := false
	if !s.closed && !s.freshLocked(e) {
		_, started = s.startLocked(e)
	}
	st := s.snapshotLocked(e)
	s.mu.Unlock()

	if started {
		s.notify(e)
	}
	return st
}

// Fetch returns fresh data for loc, joining or starting a load when needed,
// and waits for it. The returned State carries the last good data even on error.
func (s *Service) Fetch(ctx context.Context, loc TrackedLocation, lang string) (State, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return State{Key: Key{LocationID: loc.ID, Language: lang}, Status: StatusIdle}, ErrServiceClosed
	}
	e := s.entryLocked(loc, lang)
	e.lastActive = s.now()
	if s.freshLocked(e) {
		st := s.snapshotLocked(e)
		s.mu.Unlock()
		return st, nil
	}
	f, started := s.startLocked(e)
	key := e.key
	s.mu.Unlock()

	if started {
		s.notify(e)
	}
	return s.wait(ctx, key, f)
}

// Refresh forces a reload regardless of freshness. A load already in flight
// is joined instead of duplicated. The channel closes when that load settles.
func (s *Service) Refresh(loc TrackedLocation, lang string) <-chan struct{} {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		done := make(chan struct{})
		close(done)
		return done
	}
	e := s.entryLocked(loc, lang)
	e.lastActive = s.now()
	f, started := s.startLocked(e)
	s.mu.Unlock()

	if started {
		s.notify(e)
	}
	return f.done
}

// Subscribe registers fn for every state change of the key and delivers the
// current state immediately. fn must not call back into the Service.
func (s *Service) Subscribe(loc TrackedLocation, lang string, fn func(State)) (unsubscribe func()) {
	s.mu.Lock()
	e := s.entryLocked(loc, lang)
	s.nextSub++
	id := s.nextSub
	e.subs[id] = fn
	e.lastActive = s.now()
	if !s.closed && !s.freshLocked(e) {
		s.startLocked(e)
	}
	key := e.key
	s.mu.Unlock()

	s.notify(e)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			if cur, ok := s.entries[key]; ok {
				delete(cur.subs, id)
				cur.lastActive = s.now()
			}
		})
	}
}

// Snapshot returns the state of key without side effects.
func (s *Service) Snapshot(key Key) State {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return State{Key: key, Status: StatusIdle}
	}
	return s.snapshotLocked(e)
}

// RefreshActive reloads every key that has subscribers or was used within the grace period.
func (s *Service) RefreshActive() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	now := s.now()
	var started []*entry
	for _, e := range s.entries {
		if !s.activeLocked(e, now) {
			continue
		}
		if _, ok := s.startLocked(e); ok {
			started = append(started, e)
		}
	}
	s.mu.Unlock()

	if len(started) > 0 {
		log.Printf("service: background refresh started for %d key(s)", len(started))
	}
	for _, e := range started {
		s.notify(e)
	}
}

// OnFocus reloads stale active keys when the policy enables refetch on focus.
func (s *Service) OnFocus() {
	s.refetchStale(func(p Policy) bool { return p.RefetchOnFocus })
}

// OnReconnect reloads stale active keys when the policy enables refetch on reconnect.
func (s *Service) OnReconnect() {
	s.refetchStale(func(p Policy) bool { return p.RefetchOnReconnect })
}

func (s *Service) refetchStale(enabled func(Policy) bool) {
	s.mu.Lock()
	if s.closed || !enabled(s.policy) {
		s.mu.Unlock()
		return
	}
	now := s.now()
	var started []*entry
	for _, e := range s.entries {
		if !s.activeLocked(e, now) || s.freshLocked(e) {
			continue
		}
		if _, ok := s.startLocked(e); ok {
			started = append(started, e)
		}
	}
	s.mu.Unlock()

	for _, e := range started {
		s.notify(e)
	}
}

// Evict drops entries without subscribers that have been inactive for GCTime.
func (s *Service) Evict() int {
	s.mu.Lock()
	now := s.now()
	gc := s.policy.GCTime
	evicted := 0
	for key, e := range s.entries {
		if len(e.subs) > 0 || now.Sub(e.lastActive) < gc {
			continue
		}
		if e.inflight != nil {
			e.inflight.cancel()
		}
		delete(s.entries, key)
		evicted++
	}
	s.mu.Unlock()

	evicted += s.evictPlaces(now, gc)
	if evicted > 0 {
		log.Printf("service: evicted %d inactive cache entries", evicted)
	}
	return evicted
}

// Forget drops every entry of a location, e.g. after it was removed by the user.
func (s *Service) Forget(locationID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, e := range s.entries {
		if key.LocationID != locationID {
			continue
		}
		if e.inflight != nil {
			e.inflight.cancel()
		}
		delete(s.entries, key)
	}
}

// Close cancels all in-flight requests. Later calls start no new loads.
func (s *Service) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cancel()
}

func (s *Service) entryLocked(loc TrackedLocation, lang string) *entry {
	key := Key{LocationID: loc.ID, Language: lang}
	e, ok := s.entries[key]
	if !ok {
		e = &entry{
			key:   key,
			loc:   loc.Clone(),
			state: StatusIdle,
			subs:  make(map[uint64]func(State)),
		}
		s.entries[key] = e
		return e
	}

	if !e.loc.sameTarget(loc) {
		e.loc = loc.Clone()
		e.fetchedAt = time.Time{}
		if e.inflight != nil && !s.closed {
			log.Printf("DEBUG: service: location %s changed while loading; superseding request", key)
			s.issueLocked(e)
		}
	}
	return e
}

func (s *Service) freshLocked(e *entry) bool {
	if e.fetchedAt.IsZero() || e.err != nil {
		return false
	}
	return s.now().Sub(e.fetchedAt) < s.policy.StaleTime
}

func (s *Service) activeLocked(e *entry, now time.Time) bool {
	return len(e.subs) > 0 || now.Sub(e.lastActive) < s.policy.GracePeriod
}

func (s *Service) startLocked(e *entry) (*flight, bool) {
	if e.inflight != nil {
		return e.inflight, false
	}
	return s.issueLocked(e), true
}

// issueLocked starts a new request for e, superseding any request in flight.
func (s *Service) issueLocked(e *entry) *flight {
	prev := e.state
	if old := e.inflight; old != nil {
		old.cancel()
		prev = old.prev
	}

	e.issued++
	ctx, cancel := context.WithCancel(s.ctx)
	f := &flight{
		gen:    e.issued,
		prev:   prev,
		done:   make(chan struct{}),
		cancel: cancel,
	}
	e.inflight = f
	e.state = StatusLoading

	go s.run(ctx, e.key, e.loc.Clone(), s.policy, f)
	return f
}

func (s *Service) run(ctx context.Context, key Key, loc TrackedLocation, policy Policy, f *flight) {
	defer f.cancel()
	card, place, err := s.load(ctx, key, loc, policy)
	s.complete(key, f, card, place, err)
}

// load runs resolve+forecast+map, retrying transient failures policy.Retry times.
func (s *Service) load(ctx context.Context, key Key, loc TrackedLocation, policy Policy) (*CardViewModel, *PlaceResult, error) {
	for attempt := 0; ; attempt++ {
		card, place, err := s.loadOnce(ctx, key.Language, loc)
		if err == nil {
			return card, place, nil
		}
		if attempt >= policy.Retry || !IsTransient(err) || ctx.Err() != nil {
			return nil, nil, err
		}

		log.Printf("service: load for %s failed (attempt %d), retrying: %v", key, attempt+1, err)
		if policy.RetryDelay > 0 {
			timer := time.NewTimer(policy.RetryDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, nil, ctx.Err()
			case <-timer.C:
			}
		}
	}
}

func (s *Service) loadOnce(ctx context.Context, lang string, loc TrackedLocation) (*CardViewModel, *PlaceResult, error) {
	lat, lon, place, err := s.resolve(ctx, lang, loc)
	if err != nil {
		return nil, nil, err
	}

	payload, err := s.gateway.FetchForecast(ctx, lat, lon)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch forecast for %q: %w", loc.Name, err)
	}

	card := MapForecast(payload)
	return &card, place, nil
}

// resolve returns the coordinates of loc, searching by name when they are missing.
// Resolved coordinates are not written back to loc.
func (s *Service) resolve(ctx context.Context, lang string, loc TrackedLocation) (float64, float64, *PlaceResult, error) {
	if loc.HasCoordinates() {
		return *loc.Latitude, *loc.Longitude, nil, nil
	}

	places, err := s.gateway.FetchPlaces(ctx, loc.Name, 1, lang)
	if err != nil {
		return 0, 0, nil, fmt.Errorf("resolve %q: %w", loc.Name, err)
	}
	if len(places) > 0 {
		p := places[0]
		return p.Latitude, p.Longitude, &p, nil
	}

	if s.fallback != nil {
		lat, lon, err := s.fallback.Resolve(ctx, loc.Name)
		if err == nil {
			return lat, lon, nil, nil
		}
		log.Printf("service: fallback resolver failed for %q: %v", loc.Name, err)
	}
	return 0, 0, nil, fmt.Errorf("%w: %q", ErrPlaceNotFound, loc.Name)
}

func (s *Service) complete(key Key, f *flight, card *CardViewModel, place *PlaceResult, err error) {
	s.mu.Lock()
	f.err = err
	e, ok := s.entries[key]
	if !ok || f.gen != e.issued {
		if ok && err == nil {
			log.Printf("DEBUG: service: discarding superseded response for %s", key)
		}
		s.mu.Unlock()
		close(f.done)
		return
	}

	e.inflight = nil
	switch {
	case err == nil:
		e.state = StatusSuccess
		e.data = card
		e.place = place
		e.err = nil
		e.fetchedAt = s.now()
	case errors.Is(err, context.Canceled):
		e.state = f.prev
	default:
		e.state = StatusError
		e.err = err
		log.Printf("ERROR: service: load failed for %s: %v", key, err)
	}
	s.mu.Unlock()

	close(f.done)
	s.notify(e)
}

func (s *Service) wait(ctx context.Context, key Key, f *flight) (State, error) {
	for {
		select {
		case <-ctx.Done():
			return s.Snapshot(key), ctx.Err()
		case <-f.done:
		}

		s.mu.Lock()
		e, ok := s.entries[key]
		if !ok {
			s.mu.Unlock()
			return State{Key: key, Status: StatusIdle, Err: f.err, ErrorKind: KindOf(f.err)}, f.err
		}
		if e.inflight != nil && e.inflight.gen > f.gen {
			f = e.inflight
			s.mu.Unlock()
			continue
		}
		st := s.snapshotLocked(e)
		s.mu.Unlock()
		if errors.Is(f.err, context.Canceled) {
			return st, f.err
		}
		return st, st.Err
	}
}

// snapshotLocked copies e. Data is shared: a CardViewModel is never mutated after creation.
func (s *Service) snapshotLocked(e *entry) State {
	return State{
		Key:       e.key,
		Status:    e.state,
		Data:      e.data,
		Place:     e.place,
		Err:       e.err,
		ErrorKind: KindOf(e.err),
		FetchedAt: e.fetchedAt,
		Fetching:  e.inflight != nil,
	}
}

func (s *Service) notify(e *entry) {
	e.notifyMu.Lock()
	defer e.notifyMu.Unlock()

	s.mu.Lock()
	st := s.snapshotLocked(e)
	subs := make([]func(State), 0, len(e.subs))
	for _, fn := range e.subs {
		subs = append(subs, fn)
	}
	s.mu.Unlock()

	for _, fn := range subs {
		fn(st)
	}
}
