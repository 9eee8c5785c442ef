package store

import (
	"sort"
	"sync"

	"github.com/dstmrk/octotracker/internal/model"
)

// MemoryStore is an in-memory implementation of ProfileStore, PendingStore
// and RateHistoryStore, used in tests and as a fallback when no database is
// configured.
type MemoryStore struct {
	mu       sync.Mutex
	profiles map[int64]*model.TariffProfile
	pending  map[int64]*model.TariffFragment
	history  map[string][]model.OfferRow
	latest   string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		profiles: make(map[int64]*model.TariffProfile),
		pending:  make(map[int64]*model.TariffFragment),
		history:  make(map[string][]model.OfferRow),
	}
}

func (s *MemoryStore) Get(userID int64) (*model.TariffProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	profile, ok := s.profiles[userID]
	if !ok {
		return nil, ErrProfileNotFound
	}
	return profile.Clone(), nil
}

func (s *MemoryStore) Put(userID int64, profile *model.TariffProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.profiles[userID] = profile.Clone()
	return nil
}

func (s *MemoryStore) Delete(userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.profiles[userID]; !ok {
		return ErrProfileNotFound
	}
	delete(s.profiles, userID)
	delete(s.pending, userID)
	return nil
}

func (s *MemoryStore) All() (map[int64]*model.TariffProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[int64]*model.TariffProfile, len(s.profiles))
	for id, profile := range s.profiles {
		out[id] = profile.Clone()
	}
	return out, nil
}

func (s *MemoryStore) Count() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.profiles), nil
}

func (s *MemoryStore) SavePending(userID int64, fragment *model.TariffFragment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.profiles[userID]; !ok {
		return ErrProfileNotFound
	}
	s.pending[userID] = fragment
	return nil
}

func (s *MemoryStore) LoadPending(userID int64) (*model.TariffFragment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.profiles[userID]; !ok {
		return nil, ErrProfileNotFound
	}
	fragment, ok := s.pending[userID]
	if !ok {
		return nil, ErrNoPending
	}
	return fragment, nil
}

func (s *MemoryStore) ClearPending(userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.pending, userID)
	return nil
}

func (s *MemoryStore) SaveOffers(snapshot *model.OfferSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.history[snapshot.SourceDate] = snapshot.Rows()
	if snapshot.SourceDate > s.latest {
		s.latest = snapshot.SourceDate
	}
	return nil
}

func (s *MemoryStore) Current() (*model.OfferSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := model.NewOfferSnapshot(s.latest)
	for _, row := range s.history[s.latest] {
		snapshot.Put(row.Service, row.Kind, row.Band, model.OfferEntry{
			EnergyRate:           row.EnergyRate,
			CommercializationFee: row.CommercializationFee,
			OfferCode:            row.OfferCode,
		})
	}
	return snapshot, nil
}

func (s *MemoryStore) LatestDate() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest, nil
}

func (s *MemoryStore) History(svc model.Service, kind model.Kind, band model.Band, limit int) ([]HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var dates []string
	for date := range s.history {
		dates = append(dates, date)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(dates)))

	var entries []HistoryEntry
	for _, date := range dates {
		for _, row := range s.history[date] {
			if row.Service != svc || row.Kind != kind || row.Band != band {
				continue
			}
			entries = append(entries, HistoryEntry{Date: date, Row: row})
			if len(entries) == limit {
				return entries, nil
			}
		}
	}
	return entries, nil
}
