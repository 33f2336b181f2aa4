package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/i474232898/weather-tracker/internal/weather"
)

// SettingsKey is the storage key of the persisted refresh policy.
const SettingsKey = "weather-settings"

// retryForever caps "retry": true.
const retryForever = 3

var ErrInvalidSettings = errors.New("invalid settings")

var validate = validator.New()

// Retry is a retry count that also accepts a JSON boolean (true = 3, false = 0).
type Retry int

func (r *Retry) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		if b {
			*r = retryForever
		} else {
			*r = 0
		}
		return nil
	}

	var n float64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("retry must be a number or boolean: %w", err)
	}
	*r = Retry(n)
	return nil
}

// Settings is the user-tunable refresh policy as persisted.
type Settings struct {
	RefetchIntervalMs    int64 `json:"refetchIntervalMs" validate:"gte=0"`
	StaleTimeMs          int64 `json:"staleTimeMs" validate:"gte=0"`
	GCTimeMs             int64 `json:"gcTimeMs" validate:"gte=0"`
	RefetchOnWindowFocus bool  `json:"refetchOnWindowFocus"`
	RefetchOnReconnect   bool  `json:"refetchOnReconnect"`
	Retry                Retry `json:"retry" validate:"gte=0,lte=10"`
}

// SettingsPatch carries the fields to change; nil fields are left alone.
type SettingsPatch struct {
	RefetchIntervalMs    *int64 `json:"refetchIntervalMs,omitempty"`
	StaleTimeMs          *int64 `json:"staleTimeMs,omitempty"`
	GCTimeMs             *int64 `json:"gcTimeMs,omitempty"`
	RefetchOnWindowFocus *bool  `json:"refetchOnWindowFocus,omitempty"`
	RefetchOnReconnect   *bool  `json:"refetchOnReconnect,omitempty"`
	Retry                *Retry `json:"retry,omitempty"`
}

// DefaultSettings mirrors weather.DefaultPolicy.
func DefaultSettings() Settings {
	return SettingsFromPolicy(weather.DefaultPolicy())
}

func SettingsFromPolicy(p weather.Policy) Settings {
	return Settings{
		RefetchIntervalMs:    p.RefetchInterval.Milliseconds(),
		StaleTimeMs:          p.StaleTime.Milliseconds(),
		GCTimeMs:             p.GCTime.Milliseconds(),
		RefetchOnWindowFocus: p.RefetchOnFocus,
		RefetchOnReconnect:   p.RefetchOnReconnect,
		Retry:                Retry(p.Retry),
	}
}

// Policy converts the settings into an orchestrator policy. Fields not stored keep their defaults.
func (s Settings) Policy() weather.Policy {
	p := weather.DefaultPolicy()
	p.RefetchInterval = time.Duration(s.RefetchIntervalMs) * time.Millisecond
	p.StaleTime = time.Duration(s.StaleTimeMs) * time.Millisecond
	p.GCTime = time.Duration(s.GCTimeMs) * time.Millisecond
	p.RefetchOnFocus = s.RefetchOnWindowFocus
	p.RefetchOnReconnect = s.RefetchOnReconnect
	p.Retry = int(s.Retry)
	return p
}

func (s Settings) apply(p SettingsPatch) Settings {
	if p.RefetchIntervalMs != nil {
		s.RefetchIntervalMs = *p.RefetchIntervalMs
	}
	if p.StaleTimeMs != nil {
		s.StaleTimeMs = *p.StaleTimeMs
	}
	if p.GCTimeMs != nil {
		s.GCTimeMs = *p.GCTimeMs
	}
	if p.RefetchOnWindowFocus != nil {
		s.RefetchOnWindowFocus = *p.RefetchOnWindowFocus
	}
	if p.RefetchOnReconnect != nil {
		s.RefetchOnReconnect = *p.RefetchOnReconnect
	}
	if p.Retry != nil {
		s.Retry = *p.Retry
	}
	return s
}

// SettingsStore holds the persisted settings blob, merged over defaults.
type SettingsStore struct {
	mu  sync.Mutex
	kv  KV
	cur Settings
}

func NewSettingsStore(kv KV) *SettingsStore {
	s := &SettingsStore{kv: kv}
	s.cur = s.load()
	return s
}

func (s *SettingsStore) load() Settings {
	cur := DefaultSettings()

	raw, err := s.kv.Get(SettingsKey)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			log.Printf("ERROR: store: reading %s: %v", SettingsKey, err)
		}
		return cur
	}

	// stored keys override defaults; absent keys keep them
	if err := json.Unmarshal(raw, &cur); err != nil {
		log.Printf("ERROR: store: %s is not valid, using defaults: %v", SettingsKey, err)
		return DefaultSettings()
	}
	if err := validate.Struct(cur); err != nil {
		log.Printf("ERROR: store: %s out of range, using defaults: %v", SettingsKey, err)
		return DefaultSettings()
	}
	return cur
}

// Get returns the current settings.
func (s *SettingsStore) Get() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur
}

// Update merges patch into the current settings and persists the result.
func (s *SettingsStore) Update(patch SettingsPatch) (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cur.apply(patch)
	if err := validate.Struct(next); err != nil {
		return s.cur, fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}
	if err := s.persist(next); err != nil {
		return s.cur, err
	}
	s.cur = next
	return next, nil
}

// Reset restores and persists the defaults.
func (s *SettingsStore) Reset() (Settings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := DefaultSettings()
	if err := s.persist(next); err != nil {
		return s.cur, err
	}
	s.cur = next
	return next, nil
}

func (s *SettingsStore) persist(v Settings) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}
	if err := s.kv.Set(SettingsKey, raw); err != nil {
		return fmt.Errorf("persisting settings: %w", err)
	}
	return nil
}
