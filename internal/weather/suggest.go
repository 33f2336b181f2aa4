package weather

import (
	"context"
	"strings"
	"time"
)

type placeKey struct {
	query    string
	limit    int
	language string
}

type placeFlight struct {
	done    chan struct{}
	results []PlaceResult
	err     error
}

type placeEntry struct {
	results   []PlaceResult
	fetchedAt time.Time
	lastUsed  time.Time
	inflight  *placeFlight
}

// Suggest returns place search results for a free-text query. Results are cached
// per (query, limit, language) under the same freshness policy as forecasts and
// concurrent identical queries share one request. A blank query returns no results.
func (s *Service) Suggest(ctx context.Context, query string, limit int, lang string) ([]PlaceResult, error) {
	q := strings.TrimSpace(query)
	if q == "" {
		return []PlaceResult{}, nil
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrServiceClosed
	}
	staleTime := s.policy.StaleTime
	s.mu.Unlock()

	key := placeKey{query: strings.ToLower(q), limit: limit, language: lang}
	now := s.now()

	s.placesMu.Lock()
	e, ok := s.places[key]
	if !ok {
		e = &placeEntry{}
		s.places[key] = e
	}
	e.lastUsed = now
	if e.inflight == nil && !e.fetchedAt.IsZero() && now.Sub(e.fetchedAt) < staleTime {
		results := e.results
		s.placesMu.Unlock()
		return results, nil
	}
	f := e.inflight
	if f == nil {
		f = &placeFlight{done: make(chan struct{})}
		e.inflight = f
		go s.runPlaces(e, f, q, limit, lang)
	}
	s.placesMu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-f.done:
		return f.results, f.err
	}
}

func (s *Service) runPlaces(e *placeEntry, f *placeFlight, query string, limit int, lang string) {
	results, err := s.gateway.FetchPlaces(s.ctx, query, limit, lang)

	s.placesMu.Lock()
	f.results, f.err = results, err
	if e.inflight == f {
		e.inflight = nil
		if err == nil {
			e.results = results
			e.fetchedAt = s.now()
		}
	}
	s.placesMu.Unlock()
	close(f.done)
}

func (s *Service) evictPlaces(now time.Time, gc time.Duration) int {
	s.placesMu.Lock()
	defer s.placesMu.Unlock()

	evicted := 0
	for key, e := range s.places {
		if e.inflight != nil || now.Sub(e.lastUsed) < gc {
			continue
		}
		delete(s.places, key)
		evicted++
	}
	return evicted
}
