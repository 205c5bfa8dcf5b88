package rower

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const (
	storeFileName     = "rower_state.json"
	maxHistoryRecords = 200
)

// HistoryRecord summarizes one finished workout.
type HistoryRecord struct {
	ID              string    `json:"id"`
	Intensity       string    `json:"intensity"`
	StartedAt       time.Time `json:"started_at"`
	EndedAt         time.Time `json:"ended_at"`
	PhasesPlanned   int       `json:"phases_planned"`
	PhasesCompleted int       `json:"phases_completed"`
	ElapsedSeconds  float64   `json:"elapsed_seconds"`
	DistanceMeters  float64   `json:"distance_meters"`
	Aborted         bool      `json:"aborted"`
}

type storeData struct {
	PreferredRower string          `json:"preferred_rower"`
	History        []HistoryRecord `json:"history"`
}

// Store persists the preferred rower and the workout history as JSON in the
// app directory.
type Store struct {
	filePath string
	logger   *log.Logger

	mu   sync.Mutex
	data storeData
}

// NewStore loads dir/rower_state.json. A missing or unreadable file starts
// an empty store.
func NewStore(dir string, logger *log.Logger) *Store {
	if logger == nil {
		panic("Store: logger cannot be nil")
	}
	s := &Store{
		filePath: filepath.Join(dir, storeFileName),
		logger:   logger,
	}
	s.load()
	return s
}

func (s *Store) Path() string { return s.filePath }

func (s *Store) PreferredRower() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.PreferredRower
}

func (s *Store) SetPreferredRower(address string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data.PreferredRower == address {
		return
	}
	s.logger.Printf("Store: preferred rower -> %q", address)
	s.data.PreferredRower = address
	s.save()
}

// AddRecord appends rec, keeping the newest maxHistoryRecords.
func (s *Store) AddRecord(rec HistoryRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.History = append(s.data.History, rec)
	if n := len(s.data.History); n > maxHistoryRecords {
		s.data.History = s.data.History[n-maxHistoryRecords:]
	}
	s.save()
}

// History returns the records, newest first.
func (s *Store) History() []HistoryRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]HistoryRecord, len(s.data.History))
	for i, rec := range s.data.History {
		out[len(out)-1-i] = rec
	}
	return out
}

func (s *Store) load() {
	raw, err := os.ReadFile(s.filePath)
	if err != nil {
		s.logger.Printf("Store: load %s (no existing file)", s.filePath)
		return
	}
	var data storeData
	if err := json.Unmarshal(raw, &data); err != nil {
		s.logger.Printf("Store: load %s failed to parse: %v", s.filePath, err)
		return
	}
	s.data = data
	s.logger.Printf("Store: load %s -> %d workouts", s.filePath, len(data.History))
}

// save must be called with mu held. The file is replaced through a rename so
// a crash never leaves half a document behind.
func (s *Store) save() {
	if err := os.MkdirAll(filepath.Dir(s.filePath), 0755); err != nil {
		s.logger.Printf("Store: save mkdir failed: %v", err)
		return
	}
	raw, err := json.MarshalIndent(s.data, "", "  ")
	if err != nil {
		s.logger.Printf("Store: save marshal failed: %v", err)
		return
	}
	tmp := s.filePath + ".tmp"
	if err := os.WriteFile(tmp, raw, 0644); err != nil {
		s.logger.Printf("Store: save %s failed: %v", tmp, err)
		return
	}
	if err := os.Rename(tmp, s.filePath); err != nil {
		s.logger.Printf("Store: save %s failed: %v", s.filePath, err)
	}
}
