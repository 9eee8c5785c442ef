// Package store persists user tariff profiles, pending rate updates and the
// published offer history.
package store

import (
	"errors"

	"github.com/dstmrk/octotracker/internal/model"
)

var (
	// ErrProfileNotFound is returned when a user has no stored profile.
	ErrProfileNotFound = errors.New("profile not found")

	// ErrNoPending is returned when a user has no pending rate update.
	ErrNoPending = errors.New("no pending rate update")
)

// ProfileStore manages the per-user tariff profiles.
type ProfileStore interface {
	Get(userID int64) (*model.TariffProfile, error)
	Put(userID int64, profile *model.TariffProfile) error
	Delete(userID int64) error
	All() (map[int64]*model.TariffProfile, error)
	Count() (int, error)
}

// PendingStore manages the single pending-update slot each user has.
// Saving overwrites any previous pending update for that user.
type PendingStore interface {
	SavePending(userID int64, fragment *model.TariffFragment) error
	LoadPending(userID int64) (*model.TariffFragment, error)
	ClearPending(userID int64) error
}

// HistoryEntry is one dated offer row from the rate history.
type HistoryEntry struct {
	Date string
	Row  model.OfferRow
}

// RateHistoryStore records each day's published best offers.
type RateHistoryStore interface {
	SaveOffers(snapshot *model.OfferSnapshot) error
	Current() (*model.OfferSnapshot, error)
	LatestDate() (string, error)
	History(svc model.Service, kind model.Kind, band model.Band, limit int) ([]HistoryEntry, error)
}
