package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/i474232898/weather-tracker/internal/common"
	"github.com/i474232898/weather-tracker/internal/weather"
)

// LocationsKey is the storage key of the tracked location list.
const LocationsKey = "cities"

var (
	ErrEmptyName     = errors.New("location name is empty")
	ErrDuplicateID   = errors.New("location id already exists")
	ErrDuplicateName = errors.New("location name already exists")
)

// AddOutcome describes what Add did.
type AddOutcome int

const (
	// AddIgnored means the name was blank.
	AddIgnored AddOutcome = iota
	AddAppended
	// AddMerged means missing coordinates were filled on an existing entry.
	AddMerged
	// AddUnchanged means an entry with that name exists and had nothing to fill.
	AddUnchanged
)

// AddInput is a location to add. ID is generated when empty.
type AddInput struct {
	ID        string   `json:"id,omitempty"`
	Name      string   `json:"name" validate:"required"`
	Latitude  *float64 `json:"latitude,omitempty" validate:"omitempty,gte=-90,lte=90"`
	Longitude *float64 `json:"longitude,omitempty" validate:"omitempty,gte=-180,lte=180"`
}

// LocationStore is the ordered, persisted list of tracked locations.
// Every mutation rewrites the whole list; a failed write leaves memory unchanged.
type LocationStore struct {
	mu    sync.Mutex
	kv    KV
	locs  []weather.TrackedLocation
	newID func() string
}

// NewLocationStore loads the list from kv. A missing or unreadable value yields an empty list.
func NewLocationStore(kv KV) *LocationStore {
	s := &LocationStore{
		kv:    kv,
		newID: uuid.NewString,
	}
	s.locs = s.load()
	return s
}

func (s *LocationStore) load() []weather.TrackedLocation {
	raw, err := s.kv.Get(LocationsKey)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			log.Printf("ERROR: store: reading %s: %v", LocationsKey, err)
		}
		return []weather.TrackedLocation{}
	}

	var locs []weather.TrackedLocation
	if err := json.Unmarshal(raw, &locs); err != nil {
		log.Printf("ERROR: store: %s is not valid JSON, starting empty: %v", LocationsKey, err)
		return []weather.TrackedLocation{}
	}
	if locs == nil {
		locs = []weather.TrackedLocation{}
	}
	return locs
}

// List returns the locations in insertion order.
func (s *LocationStore) List() []weather.TrackedLocation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneAll(s.locs)
}

// Get returns the location with the given id.
func (s *LocationStore) Get(id string) (weather.TrackedLocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.locs {
		if l.ID == id {
			return l.Clone(), nil
		}
	}
	return weather.TrackedLocation{}, ErrNotFound
}

// Add appends a location, or merges into an existing one with the same name
// (case-insensitive) by filling only its missing coordinates. A blank name is a no-op.
func (s *LocationStore) Add(in AddInput) (weather.TrackedLocation, AddOutcome, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return weather.TrackedLocation{}, AddIgnored, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if idx := s.indexByName(name); idx >= 0 {
		merged := s.locs[idx].Clone()
		changed := false
		if merged.Latitude == nil && in.Latitude != nil {
			merged.Latitude = copyFloat(in.Latitude)
			changed = true
		}
		if merged.Longitude == nil && in.Longitude != nil {
			merged.Longitude = copyFloat(in.Longitude)
			changed = true
		}
		if !changed {
			return merged, AddUnchanged, nil
		}

		next := cloneAll(s.locs)
		next[idx] = merged
		if err := s.commit(next); err != nil {
			return weather.TrackedLocation{}, AddIgnored, err
		}
		return merged.Clone(), AddMerged, nil
	}

	id := strings.TrimSpace(in.ID)
	if id == "" {
		id = s.newID()
	} else if s.indexByID(id) >= 0 {
		return weather.TrackedLocation{}, AddIgnored, fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}

	loc := weather.TrackedLocation{
		ID:        id,
		Name:      name,
		Latitude:  copyFloat(in.Latitude),
		Longitude: copyFloat(in.Longitude),
	}
	next := append(cloneAll(s.locs), loc)
	if err := s.commit(next); err != nil {
		return weather.TrackedLocation{}, AddIgnored, err
	}
	return loc.Clone(), AddAppended, nil
}

// Update replaces the location with the same id in place.
func (s *LocationStore) Update(loc weather.TrackedLocation) (weather.TrackedLocation, error) {
	loc = loc.Clone()
	loc.Name = strings.TrimSpace(loc.Name)
	if loc.Name == "" {
		return weather.TrackedLocation{}, ErrEmptyName
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := s.indexByID(loc.ID)
	if idx < 0 {
		return weather.TrackedLocation{}, fmt.Errorf("location %s: %w", loc.ID, ErrNotFound)
	}
	if other := s.indexByName(loc.Name); other >= 0 && other != idx {
		return weather.TrackedLocation{}, fmt.Errorf("%w: %s", ErrDuplicateName, loc.Name)
	}

	next := cloneAll(s.locs)
	next[idx] = loc
	if err := s.commit(next); err != nil {
		return weather.TrackedLocation{}, err
	}
	return loc.Clone(), nil
}

// Remove deletes the first location whose id or name matches idOrName, ignoring case.
func (s *LocationStore) Remove(idOrName string) (weather.TrackedLocation, error) {
	key := common.NormalizeName(idOrName)
	if key == "" {
		return weather.TrackedLocation{}, ErrNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, l := range s.locs {
		if strings.ToLower(l.ID) == key || common.NormalizeName(l.Name) == key {
			idx = i
			break
		}
	}
	if idx < 0 {
		return weather.TrackedLocation{}, fmt.Errorf("location %s: %w", idOrName, ErrNotFound)
	}

	removed := s.locs[idx]
	next := make([]weather.TrackedLocation, 0, len(s.locs)-1)
	next = append(next, cloneAll(s.locs[:idx])...)
	next = append(next, cloneAll(s.locs[idx+1:])...)
	if err := s.commit(next); err != nil {
		return weather.TrackedLocation{}, err
	}
	return removed.Clone(), nil
}

// Flush writes the current list to storage.
func (s *LocationStore) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.commit(s.locs)
}

func (s *LocationStore) commit(next []weather.TrackedLocation) error {
	raw, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encoding locations: %w", err)
	}
	if err := s.kv.Set(LocationsKey, raw); err != nil {
		return fmt.Errorf("persisting locations: %w", err)
	}
	s.locs = next
	return nil
}

func (s *LocationStore) indexByName(name string) int {
	key := common.NormalizeName(name)
	for i, l := range s.locs {
		if common.NormalizeName(l.Name) == key {
			return i
		}
	}
	return -1
}

func (s *LocationStore) indexByID(id string) int {
	for i, l := range s.locs {
		if l.ID == id {
			return i
		}
	}
	return -1
}

func cloneAll(locs []weather.TrackedLocation) []weather.TrackedLocation {
	out := make([]weather.TrackedLocation, len(locs))
	for i, l := range locs {
		out[i] = l.Clone()
	}
	return out
}

func copyFloat(v *float64) *float64 {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
