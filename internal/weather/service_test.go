package weather

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeGateway struct {
	places   func(ctx context.Context, query string, limit int, lang string) ([]PlaceResult, error)
	forecast func(ctx context.Context, lat, lon float64) (ForecastPayload, error)

	placeCalls    atomic.Int32
	forecastCalls atomic.Int32
}

func (g *fakeGateway) FetchPlaces(ctx context.Context, query string, limit int, lang string) ([]PlaceResult, error) {
	g.placeCalls.Add(1)
	if g.places == nil {
		return []PlaceResult{}, nil
	}
	return g.places(ctx, query, limit, lang)
}

func (g *fakeGateway) FetchForecast(ctx context.Context, lat, lon float64) (ForecastPayload, error) {
	g.forecastCalls.Add(1)
	if g.forecast == nil {
		return forecastAt(lat, lon), nil
	}
	return g.forecast(ctx, lat, lon)
}

// forecastAt builds a payload whose current temperature equals lat so tests can tell responses apart.
func forecastAt(lat, lon float64) ForecastPayload {
	p := samplePayload()
	p.Latitude = lat
	p.Longitude = lon
	p.Current.Temperature = lat
	return p
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 8, 11, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testPolicy() Policy {
	p := DefaultPolicy()
	p.RetryDelay = 0
	return p
}

func newTestService(t *testing.T, gw Gateway, opts ...Option) (*Service, *fakeClock) {
	t.Helper()
	clock := newFakeClock()
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	svc := NewService(gw, testPolicy(), opts...)
	t.Cleanup(svc.Close)
	return svc, clock
}

func located(id string, lat, lon float64) TrackedLocation {
	return TrackedLocation{ID: id, Name: id, Latitude: &lat, Longitude: &lon}
}

func fetchOK(t *testing.T, svc *Service, loc TrackedLocation) State {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	st, err := svc.Fetch(ctx, loc, "en")
	if err != nil {
		t.Fatalf("Fetch(%s) error = %v", loc.ID, err)
	}
	return st
}

func TestService_FetchMapsForecast(t *testing.T) {
	gw := &fakeGateway{}
	svc, _ := newTestService(t, gw)

	st := fetchOK(t, svc, located("istanbul", 41, 29))

	if st.Status != StatusSuccess {
		t.Fatalf("Status = %s, want success", st.Status)
	}
	if st.Data == nil || st.Data.Temperature != 41 {
		t.Fatalf("Data = %+v, want temperature 41", st.Data)
	}
	if st.Fetching {
		t.Error("Fetching = true after settle")
	}
	if st.Place != nil {
		t.Error("Place set although coordinates were given")
	}
	if got := gw.placeCalls.Load(); got != 0 {
		t.Errorf("place calls = %d, want 0", got)
	}
}

func TestService_ConcurrentFetchesShareOneRequest(t *testing.T) {
	release := make(chan struct{})
	gw := &fakeGateway{
		forecast: func(ctx context.Context, lat, lon float64) (ForecastPayload, error) {
			<-release
			return forecastAt(lat, lon), nil
		},
	}
	svc, _ := newTestService(t, gw)
	loc := located("paris", 48.85, 2.35)

	var wg sync.WaitGroup
	errs := make(chan error, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Fetch(context.Background(), loc, "en")
			errs <- err
		}()
	}

	waitFor(t, func() bool { return gw.forecastCalls.Load() == 1 })
	// give the remaining callers a chance to join the request in flight
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("Fetch error = %v", err)
		}
	}
	if got := gw.forecastCalls.Load(); got != 1 {
		t.Errorf("forecast calls = %d, want 1", got)
	}
}

func TestService_StaleTime(t *testing.T) {
	gw := &fakeGateway{}
	svc, clock := newTestService(t, gw)
	loc := located("berlin", 52.52, 13.4)

	fetchOK(t, svc, loc)

	clock.Advance(4 * time.Minute)
	st := fetchOK(t, svc, loc)
	if got := gw.forecastCalls.Load(); got != 1 {
		t.Fatalf("forecast calls after 4m = %d, want 1", got)
	}
	if st.Status != StatusSuccess {
		t.Errorf("Status = %s, want success", st.Status)
	}

	clock.Advance(2 * time.Minute)
	fetchOK(t, svc, loc)
	if got := gw.forecastCalls.Load(); got != 2 {
		t.Fatalf("forecast calls after 6m = %d, want 2", got)
	}
}

func TestService_QueryServesStaleWhileRevalidating(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	gw := &fakeGateway{
		forecast: func(ctx context.Context, lat, lon float64) (ForecastPayload, error) {
			if calls.Add(1) > 1 {
				<-release
			}
			return forecastAt(lat, lon), nil
		},
	}
	svc, clock := newTestService(t, gw)
	loc := located("rome", 41.9, 12.5)

	fetchOK(t, svc, loc)
	clock.Advance(10 * time.Minute)

	st := svc.Query(loc, "en")
	if st.Data == nil {
		t.Fatal("Query dropped stale data while revalidating")
	}
	if !st.Fetching || st.Status != StatusLoading {
		t.Errorf("Query state = %s fetching=%v, want loading with request in flight", st.Status, st.Fetching)
	}

	close(release)
	waitFor(t, func() bool { return svc.Snapshot(st.Key).Status == StatusSuccess })
}

func TestService_RetriesTransientOnce(t *testing.T) {
	var calls atomic.Int32
	gw := &fakeGateway{
		forecast: func(ctx context.Context, lat, lon float64) (ForecastPayload, error) {
			if calls.Add(1) == 1 {
				return ForecastPayload{}, &FetchError{Kind: FetchHTTPStatus, StatusCode: 503}
			}
			return forecastAt(lat, lon), nil
		},
	}
	svc, _ := newTestService(t, gw)

	st := fetchOK(t, svc, located("madrid", 40.4, -3.7))
	if st.Status != StatusSuccess {
		t.Fatalf("Status = %s, want success", st.Status)
	}
	if got := gw.forecastCalls.Load(); got != 2 {
		t.Errorf("forecast calls = %d, want 2", got)
	}
}

func TestService_RetryLimit(t *testing.T) {
	gw := &fakeGateway{
		forecast: func(ctx context.Context, lat, lon float64) (ForecastPayload, error) {
			return ForecastPayload{}, &FetchError{Kind: FetchNetwork, Err: errors.New("connection reset")}
		},
	}
	svc, _ := newTestService(t, gw)

	st, err := svc.Fetch(context.Background(), located("oslo", 59.9, 10.7), "en")
	if err == nil {
		t.Fatal("Fetch error = nil, want network error")
	}
	if st.ErrorKind != ErrorKindNetwork {
		t.Errorf("ErrorKind = %s, want network", st.ErrorKind)
	}
	if got := gw.forecastCalls.Load(); got != 2 {
		t.Errorf("forecast calls = %d, want 2 (one retry)", got)
	}
}

func TestService_NoRetryOnClientError(t *testing.T) {
	gw := &fakeGateway{
		forecast: func(ctx context.Context, lat, lon float64) (ForecastPayload, error) {
			return ForecastPayload{}, &FetchError{Kind: FetchHTTPStatus, StatusCode: 400}
		},
	}
	svc, _ := newTestService(t, gw)

	st, err := svc.Fetch(context.Background(), located("lisbon", 38.7, -9.1), "en")
	if err == nil {
		t.Fatal("Fetch error = nil, want HTTP 400")
	}
	var fe *FetchError
	if !errors.As(err, &fe) || fe.StatusCode != 400 {
		t.Errorf("error = %v, want FetchError 400", err)
	}
	if st.Status != StatusError || st.ErrorKind != ErrorKindHTTPStatus {
		t.Errorf("state = %s/%s, want error/http_status", st.Status, st.ErrorKind)
	}
	if got := gw.forecastCalls.Load(); got != 1 {
		t.Errorf("forecast calls = %d, want 1", got)
	}
}

func TestService_FailureKeepsLastGoodData(t *testing.T) {
	var fail atomic.Bool
	gw := &fakeGateway{
		forecast: func(ctx context.Context, lat, lon float64) (ForecastPayload, error) {
			if fail.Load() {
				return ForecastPayload{}, &FetchError{Kind: FetchSchemaViolation, Path: "daily.temperature_2m_max", Reason: "Required"}
			}
			return forecastAt(lat, lon), nil
		},
	}
	svc, clock := newTestService(t, gw)
	loc := located("vienna", 48.2, 16.37)

	good := fetchOK(t, svc, loc)

	fail.Store(true)
	clock.Advance(6 * time.Minute)
	st, err := svc.Fetch(context.Background(), loc, "en")
	if err == nil {
		t.Fatal("Fetch error = nil, want schema violation")
	}
	if st.Status != StatusError || st.ErrorKind != ErrorKindSchemaViolation {
		t.Errorf("state = %s/%s, want error/schema_violation", st.Status, st.ErrorKind)
	}
	if st.Data != good.Data {
		t.Error("last good data was replaced after failure")
	}
	if !st.FetchedAt.Equal(good.FetchedAt) {
		t.Errorf("FetchedAt = %v, want %v", st.FetchedAt, good.FetchedAt)
	}

	// an error state is never fresh
	fail.Store(false)
	st = fetchOK(t, svc, loc)
	if st.Status != StatusSuccess || st.Err != nil {
		t.Errorf("state after recovery = %s err=%v, want success", st.Status, st.Err)
	}
}

func TestService_LastIssuedRequestWins(t *testing.T) {
	gates := map[float64]chan struct{}{
		10: make(chan struct{}),
		20: make(chan struct{}),
	}
	var oldReturned atomic.Bool
	gw := &fakeGateway{
		forecast: func(ctx context.Context, lat, lon float64) (ForecastPayload, error) {
			<-gates[lat]
			if lat == 10 {
				defer oldReturned.Store(true)
			}
			return forecastAt(lat, lon), nil
		},
	}
	svc, _ := newTestService(t, gw)

	first := located("moved", 10, 10)
	svc.Query(first, "en")
	waitFor(t, func() bool { return gw.forecastCalls.Load() == 1 })

	second := located("moved", 20, 20)
	done := make(chan State, 1)
	go func() {
		st, _ := svc.Fetch(context.Background(), second, "en")
		done <- st
	}()
	waitFor(t, func() bool { return gw.forecastCalls.Load() == 2 })

	close(gates[20])
	st := <-done
	if st.Data == nil || st.Data.Temperature != 20 {
		t.Fatalf("Data = %+v, want response for the second request", st.Data)
	}

	close(gates[10])
	waitFor(t, oldReturned.Load)
	time.Sleep(20 * time.Millisecond)

	st = svc.Snapshot(Key{LocationID: "moved", Language: "en"})
	if st.Data == nil || st.Data.Temperature != 20 {
		t.Errorf("superseded response overwrote newer data: %+v", st.Data)
	}
	if st.Status != StatusSuccess {
		t.Errorf("Status = %s, want success", st.Status)
	}
}

func TestService_ResolvesMissingCoordinates(t *testing.T) {
	var gotQuery, gotLang string
	var gotLimit int
	var gotLat, gotLon float64
	gw := &fakeGateway{
		places: func(ctx context.Context, query string, limit int, lang string) ([]PlaceResult, error) {
			gotQuery, gotLimit, gotLang = query, limit, lang
			return []PlaceResult{{Name: "Istanbul", Country: "Türkiye", Latitude: 41.01, Longitude: 28.97}}, nil
		},
		forecast: func(ctx context.Context, lat, lon float64) (ForecastPayload, error) {
			gotLat, gotLon = lat, lon
			return forecastAt(lat, lon), nil
		},
	}
	svc, _ := newTestService(t, gw)

	loc := TrackedLocation{ID: "c1", Name: "Istanbul"}
	ctx := context.Background()
	st, err := svc.Fetch(ctx, loc, "tr")
	if err != nil {
		t.Fatalf("Fetch error = %v", err)
	}

	if gotQuery != "Istanbul" || gotLimit != 1 || gotLang != "tr" {
		t.Errorf("place search = (%q, %d, %q), want (Istanbul, 1, tr)", gotQuery, gotLimit, gotLang)
	}
	if gotLat != 41.01 || gotLon != 28.97 {
		t.Errorf("forecast coordinates = (%v, %v), want (41.01, 28.97)", gotLat, gotLon)
	}
	if st.Place == nil || st.Place.Country != "Türkiye" {
		t.Errorf("Place = %+v, want resolved place", st.Place)
	}
	if loc.HasCoordinates() {
		t.Error("resolved coordinates were written back to the caller's location")
	}
}

func TestService_PlaceNotFound(t *testing.T) {
	gw := &fakeGateway{}
	svc, _ := newTestService(t, gw)

	st, err := svc.Fetch(context.Background(), TrackedLocation{ID: "x", Name: "Atlantis"}, "en")
	if !errors.Is(err, ErrPlaceNotFound) {
		t.Fatalf("error = %v, want ErrPlaceNotFound", err)
	}
	if st.ErrorKind != ErrorKindNotFound {
		t.Errorf("ErrorKind = %s, want not_found", st.ErrorKind)
	}
	if got := gw.placeCalls.Load(); got != 1 {
		t.Errorf("place calls = %d, want 1 (not found is not retried)", got)
	}
	if got := gw.forecastCalls.Load(); got != 0 {
		t.Errorf("forecast calls = %d, want 0", got)
	}
}

type stubResolver struct {
	lat, lon float64
	err      error
}

func (r stubResolver) Resolve(ctx context.Context, name string) (float64, float64, error) {
	return r.lat, r.lon, r.err
}

func TestService_FallbackResolver(t *testing.T) {
	gw := &fakeGateway{}
	svc, _ := newTestService(t, gw, WithFallbackResolver(stubResolver{lat: 35.7, lon: 139.7}))

	st := fetchOK(t, svc, TrackedLocation{ID: "t", Name: "Tokyo"})
	if st.Data == nil || st.Data.Temperature != 35.7 {
		t.Errorf("Data = %+v, want forecast at fallback coordinates", st.Data)
	}
}

func TestService_ErrorsAreIsolatedPerKey(t *testing.T) {
	gw := &fakeGateway{
		forecast: func(ctx context.Context, lat, lon float64) (ForecastPayload, error) {
			if lat < 0 {
				return ForecastPayload{}, &FetchError{Kind: FetchHTTPStatus, StatusCode: 404}
			}
			return forecastAt(lat, lon), nil
		},
	}
	svc, _ := newTestService(t, gw)

	good := located("good", 10, 10)
	bad := located("bad", -10, -10)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() { defer wg.Done(); _, _ = svc.Fetch(context.Background(), good, "en") }()
	go func() { defer wg.Done(); _, _ = svc.Fetch(context.Background(), bad, "en") }()
	wg.Wait()

	if st := svc.Snapshot(Key{LocationID: "good", Language: "en"}); st.Status != StatusSuccess {
		t.Errorf("good key Status = %s, want success", st.Status)
	}
	if st := svc.Snapshot(Key{LocationID: "bad", Language: "en"}); st.Status != StatusError {
		t.Errorf("bad key Status = %s, want error", st.Status)
	}
}

func TestService_LanguageIsPartOfKey(t *testing.T) {
	gw := &fakeGateway{}
	svc, _ := newTestService(t, gw)
	loc := located("k", 1, 1)

	fetchOK(t, svc, loc)
	if _, err := svc.Fetch(context.Background(), loc, "de"); err != nil {
		t.Fatalf("Fetch(de) error = %v", err)
	}
	if got := gw.forecastCalls.Load(); got != 2 {
		t.Errorf("forecast calls = %d, want 2", got)
	}
}

func TestService_RefreshIgnoresFreshness(t *testing.T) {
	gw := &fakeGateway{}
	svc, _ := newTestService(t, gw)
	loc := located("r", 5, 5)

	fetchOK(t, svc, loc)
	select {
	case <-svc.Refresh(loc, "en"):
	case <-time.After(2 * time.Second):
		t.Fatal("Refresh did not settle")
	}
	if got := gw.forecastCalls.Load(); got != 2 {
		t.Errorf("forecast calls = %d, want 2", got)
	}
}

func TestService_SubscribeReceivesTransitions(t *testing.T) {
	release := make(chan struct{})
	gw := &fakeGateway{
		forecast: func(ctx context.Context, lat, lon float64) (ForecastPayload, error) {
			<-release
			return forecastAt(lat, lon), nil
		},
	}
	svc, _ := newTestService(t, gw)

	states := make(chan State, 8)
	unsubscribe := svc.Subscribe(located("sub", 3, 3), "en", func(st State) { states <- st })

	first := <-states
	if first.Status != StatusLoading || !first.Fetching {
		t.Errorf("first state = %s fetching=%v, want loading", first.Status, first.Fetching)
	}

	close(release)
	var last State
	select {
	case last = <-states:
	case <-time.After(2 * time.Second):
		t.Fatal("no state delivered after load settled")
	}
	if last.Status != StatusSuccess || last.Data == nil {
		t.Errorf("settled state = %s, want success with data", last.Status)
	}

	unsubscribe()
	unsubscribe()
	svc.Refresh(located("sub", 3, 3), "en")
	select {
	case st := <-states:
		t.Errorf("state delivered after unsubscribe: %s", st.Status)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestService_RefreshActiveAndGrace(t *testing.T) {
	gw := &fakeGateway{}
	svc, clock := newTestService(t, gw)
	recent := located("recent", 1, 1)
	idle := located("idle", 2, 2)

	fetchOK(t, svc, idle)
	clock.Advance(3 * time.Minute)
	fetchOK(t, svc, recent)
	before := gw.forecastCalls.Load()

	svc.RefreshActive()
	waitFor(t, func() bool { return gw.forecastCalls.Load() == before+1 })
	waitFor(t, func() bool { return !svc.Snapshot(Key{LocationID: "recent", Language: "en"}).Fetching })

	if st := svc.Snapshot(Key{LocationID: "idle", Language: "en"}); st.Fetching {
		t.Error("key outside the grace period was refreshed")
	}
}

func TestService_OnFocusRespectsPolicy(t *testing.T) {
	gw := &fakeGateway{}
	svc, clock := newTestService(t, gw)
	loc := located("f", 4, 4)

	fetchOK(t, svc, loc)
	clock.Advance(6 * time.Minute)
	unsubscribe := svc.Subscribe(loc, "en", func(State) {})
	defer unsubscribe()
	waitFor(t, func() bool { return gw.forecastCalls.Load() == 2 })
	waitFor(t, func() bool { return !svc.Snapshot(Key{LocationID: "f", Language: "en"}).Fetching })

	// fresh again: focus must not refetch
	svc.OnFocus()
	time.Sleep(20 * time.Millisecond)
	if got := gw.forecastCalls.Load(); got != 2 {
		t.Fatalf("forecast calls after focus on fresh key = %d, want 2", got)
	}

	clock.Advance(6 * time.Minute)
	p := svc.Policy()
	p.RefetchOnFocus = false
	svc.SetPolicy(p)
	svc.OnFocus()
	time.Sleep(20 * time.Millisecond)
	if got := gw.forecastCalls.Load(); got != 2 {
		t.Fatalf("forecast calls with focus disabled = %d, want 2", got)
	}

	svc.OnReconnect()
	waitFor(t, func() bool { return gw.forecastCalls.Load() == 3 })
}

func TestService_Evict(t *testing.T) {
	gw := &fakeGateway{}
	svc, clock := newTestService(t, gw)
	loc := located("gc", 6, 6)
	key := Key{LocationID: "gc", Language: "en"}

	fetchOK(t, svc, loc)
	if n := svc.Evict(); n != 0 {
		t.Fatalf("Evict() = %d right after use, want 0", n)
	}

	clock.Advance(31 * time.Minute)
	if n := svc.Evict(); n != 1 {
		t.Fatalf("Evict() = %d, want 1", n)
	}
	if st := svc.Snapshot(key); st.Status != StatusIdle || st.Data != nil {
		t.Errorf("state after eviction = %+v, want idle", st)
	}
}

func TestService_EvictKeepsSubscribedKeys(t *testing.T) {
	gw := &fakeGateway{}
	svc, clock := newTestService(t, gw)
	loc := located("watched", 7, 7)

	unsubscribe := svc.Subscribe(loc, "en", func(State) {})
	defer unsubscribe()
	waitFor(t, func() bool {
		return svc.Snapshot(Key{LocationID: "watched", Language: "en"}).Status == StatusSuccess
	})

	clock.Advance(time.Hour)
	if n := svc.Evict(); n != 0 {
		t.Errorf("Evict() = %d, want 0 for subscribed key", n)
	}
}

func TestService_Forget(t *testing.T) {
	gw := &fakeGateway{}
	svc, _ := newTestService(t, gw)

	fetchOK(t, svc, located("gone", 8, 8))
	svc.Forget("gone")

	if st := svc.Snapshot(Key{LocationID: "gone", Language: "en"}); st.Status != StatusIdle {
		t.Errorf("Status = %s, want idle", st.Status)
	}
}

func TestService_Close(t *testing.T) {
	gw := &fakeGateway{}
	svc, _ := newTestService(t, gw)
	svc.Close()

	if _, err := svc.Fetch(context.Background(), located("c", 9, 9), "en"); !errors.Is(err, ErrServiceClosed) {
		t.Errorf("Fetch after Close error = %v, want ErrServiceClosed", err)
	}
	if _, err := svc.Suggest(context.Background(), "x", 5, "en"); !errors.Is(err, ErrServiceClosed) {
		t.Errorf("Suggest after Close error = %v, want ErrServiceClosed", err)
	}
}

func TestService_Suggest(t *testing.T) {
	gw := &fakeGateway{
		places: func(ctx context.Context, query string, limit int, lang string) ([]PlaceResult, error) {
			return []PlaceResult{{Name: query, Latitude: 1, Longitude: 2}}, nil
		},
	}
	svc, clock := newTestService(t, gw)
	ctx := context.Background()

	got, err := svc.Suggest(ctx, "  ", 5, "en")
	if err != nil || len(got) != 0 {
		t.Fatalf("Suggest(blank) = %v, %v; want empty", got, err)
	}
	if gw.placeCalls.Load() != 0 {
		t.Fatal("blank query reached the gateway")
	}

	if _, err := svc.Suggest(ctx, "Ankara", 5, "en"); err != nil {
		t.Fatalf("Suggest error = %v", err)
	}
	if _, err := svc.Suggest(ctx, "ankara", 5, "en"); err != nil {
		t.Fatalf("Suggest error = %v", err)
	}
	if got := gw.placeCalls.Load(); got != 1 {
		t.Errorf("place calls = %d, want 1 (cached)", got)
	}

	clock.Advance(6 * time.Minute)
	if _, err := svc.Suggest(ctx, "Ankara", 5, "en"); err != nil {
		t.Fatalf("Suggest error = %v", err)
	}
	if got := gw.placeCalls.Load(); got != 2 {
		t.Errorf("place calls after stale = %d, want 2", got)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
