package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/dstmrk/octotracker/internal/model"
)

// SQLiteStore persists profiles, pending updates and rate history in a
// single SQLite database. It implements ProfileStore, PendingStore and
// RateHistoryStore.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteStore opens (or creates) the SQLite database and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode for better concurrent read performance (API reads while the bot writes).
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Printf("[INFO] sqlite store opened: %s", dbPath)
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS users (
			user_id             INTEGER PRIMARY KEY,
			luce                TEXT NOT NULL,
			gas                 TEXT,
			last_notified_rates TEXT,
			pending_rates       TEXT,
			created_at          INTEGER NOT NULL,
			updated_at          INTEGER NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS rate_history (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			date       TEXT NOT NULL,
			service    TEXT NOT NULL,
			kind       TEXT NOT NULL,
			band       TEXT NOT NULL,
			energy     TEXT NOT NULL,
			fee        TEXT NOT NULL,
			offer_code TEXT,
			UNIQUE(date, service, kind, band)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_history_date ON rate_history(date)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:40], err)
		}
	}
	return nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Get returns the profile for userID, or ErrProfileNotFound.
func (s *SQLiteStore) Get(userID int64) (*model.TariffProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(userID)
}

func (s *SQLiteStore) getLocked(userID int64) (*model.TariffProfile, error) {
	var luce string
	var gas, lastNotified sql.NullString

	err := s.db.QueryRow(
		`SELECT luce, gas, last_notified_rates FROM users WHERE user_id = ?`,
		userID,
	).Scan(&luce, &gas, &lastNotified)
	if err == sql.ErrNoRows {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query user %d: %w", userID, err)
	}

	profile := &model.TariffProfile{}
	if err := json.Unmarshal([]byte(luce), &profile.Electricity); err != nil {
		return nil, fmt.Errorf("decode luce for user %d: %w", userID, err)
	}
	if gas.Valid {
		profile.Gas = &model.Tariff{}
		if err := json.Unmarshal([]byte(gas.String), profile.Gas); err != nil {
			return nil, fmt.Errorf("decode gas for user %d: %w", userID, err)
		}
	}
	if lastNotified.Valid {
		profile.LastNotified = &model.NotifiedSnapshot{}
		if err := json.Unmarshal([]byte(lastNotified.String), profile.LastNotified); err != nil {
			return nil, fmt.Errorf("decode last notified for user %d: %w", userID, err)
		}
	}
	return profile, nil
}

// Put inserts or replaces the profile for userID. The pending slot is left
// untouched.
func (s *SQLiteStore) Put(userID int64, profile *model.TariffProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	luce, err := json.Marshal(profile.Electricity)
	if err != nil {
		return fmt.Errorf("encode luce: %w", err)
	}
	gas, err := marshalNullable(profile.Gas)
	if err != nil {
		return fmt.Errorf("encode gas: %w", err)
	}
	lastNotified, err := marshalNullable(profile.LastNotified)
	if err != nil {
		return fmt.Errorf("encode last notified: %w", err)
	}

	now := time.Now().Unix()
	_, err = s.db.Exec(`INSERT INTO users (user_id, luce, gas, last_notified_rates, created_at, updated_at)
		VALUES (?,?,?,?,?,?)
		ON CONFLICT(user_id) DO UPDATE SET
			luce = excluded.luce,
			gas = excluded.gas,
			last_notified_rates = excluded.last_notified_rates,
			updated_at = excluded.updated_at`,
		userID, string(luce), gas, lastNotified, now, now,
	)
	if err != nil {
		return fmt.Errorf("upsert user %d: %w", userID, err)
	}
	return nil
}

// Delete removes the user row entirely, pending update included.
func (s *SQLiteStore) Delete(userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`DELETE FROM users WHERE user_id = ?`, userID)
	if err != nil {
		return fmt.Errorf("delete user %d: %w", userID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrProfileNotFound
	}
	return nil
}

// All returns every stored profile keyed by user ID.
func (s *SQLiteStore) All() (map[int64]*model.TariffProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(`SELECT user_id FROM users ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}

	profiles := make(map[int64]*model.TariffProfile, len(ids))
	for _, id := range ids {
		profile, err := s.getLocked(id)
		if err != nil {
			return nil, err
		}
		profiles[id] = profile
	}
	return profiles, nil
}

// Count returns the number of registered users.
func (s *SQLiteStore) Count() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

// SavePending stores the fragment in the user's pending slot, overwriting any
// previous one. The user must already have a profile.
func (s *SQLiteStore) SavePending(userID int64, fragment *model.TariffFragment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.Marshal(fragment)
	if err != nil {
		return fmt.Errorf("encode pending: %w", err)
	}
	res, err := s.db.Exec(
		`UPDATE users SET pending_rates = ?, updated_at = ? WHERE user_id = ?`,
		string(data), time.Now().Unix(), userID,
	)
	if err != nil {
		return fmt.Errorf("save pending for user %d: %w", userID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrProfileNotFound
	}
	return nil
}

// LoadPending returns the user's pending fragment, or ErrNoPending.
func (s *SQLiteStore) LoadPending(userID int64) (*model.TariffFragment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pending sql.NullString
	err := s.db.QueryRow(`SELECT pending_rates FROM users WHERE user_id = ?`, userID).Scan(&pending)
	if err == sql.ErrNoRows {
		return nil, ErrProfileNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query pending for user %d: %w", userID, err)
	}
	if !pending.Valid {
		return nil, ErrNoPending
	}

	fragment := &model.TariffFragment{}
	if err := json.Unmarshal([]byte(pending.String), fragment); err != nil {
		return nil, fmt.Errorf("decode pending for user %d: %w", userID, err)
	}
	return fragment, nil
}

// ClearPending empties the user's pending slot. Clearing an already empty
// slot is not an error.
func (s *SQLiteStore) ClearPending(userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`UPDATE users SET pending_rates = NULL, updated_at = ? WHERE user_id = ?`,
		time.Now().Unix(), userID,
	)
	if err != nil {
		return fmt.Errorf("clear pending for user %d: %w", userID, err)
	}
	return nil
}

// SaveOffers records every offer in the snapshot under its source date,
// replacing any rows already stored for the same cells.
func (s *SQLiteStore) SaveOffers(snapshot *model.OfferSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	for _, row := range snapshot.Rows() {
		_, err := tx.Exec(`INSERT INTO rate_history (date, service, kind, band, energy, fee, offer_code)
			VALUES (?,?,?,?,?,?,?)
			ON CONFLICT(date, service, kind, band) DO UPDATE SET
				energy = excluded.energy,
				fee = excluded.fee,
				offer_code = excluded.offer_code`,
			snapshot.SourceDate, string(row.Service), string(row.Kind), string(row.Band),
			row.EnergyRate.String(), row.CommercializationFee.String(), row.OfferCode,
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("insert offer row: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit offers: %w", err)
	}
	return nil
}

// Current rebuilds the snapshot for the most recent stored date. Returns an
// empty snapshot when no history exists yet.
func (s *SQLiteStore) Current() (*model.OfferSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	date, err := s.latestDateLocked()
	if err != nil {
		return nil, err
	}
	snapshot := model.NewOfferSnapshot(date)
	if date == "" {
		return snapshot, nil
	}

	rows, err := s.db.Query(
		`SELECT service, kind, band, energy, fee, offer_code FROM rate_history WHERE date = ?`,
		date,
	)
	if err != nil {
		return nil, fmt.Errorf("query offers for %s: %w", date, err)
	}
	defer rows.Close()

	for rows.Next() {
		var svc, kind, band, energy, fee string
		var code sql.NullString
		if err := rows.Scan(&svc, &kind, &band, &energy, &fee, &code); err != nil {
			return nil, fmt.Errorf("scan offer row: %w", err)
		}
		entry, err := decodeEntry(energy, fee, code.String)
		if err != nil {
			return nil, err
		}
		snapshot.Put(model.Service(svc), model.Kind(kind), model.Band(band), entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate offers: %w", err)
	}
	return snapshot, nil
}

// LatestDate returns the most recent date with stored offers, or "" when the
// history is empty.
func (s *SQLiteStore) LatestDate() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latestDateLocked()
}

func (s *SQLiteStore) latestDateLocked() (string, error) {
	var date sql.NullString
	if err := s.db.QueryRow(`SELECT MAX(date) FROM rate_history`).Scan(&date); err != nil {
		return "", fmt.Errorf("query latest date: %w", err)
	}
	return date.String, nil
}

// History returns up to limit dated entries for one cell, most recent first.
func (s *SQLiteStore) History(svc model.Service, kind model.Kind, band model.Band, limit int) ([]HistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		`SELECT date, energy, fee, offer_code FROM rate_history
		 WHERE service = ? AND kind = ? AND band = ?
		 ORDER BY date DESC LIMIT ?`,
		string(svc), string(kind), string(band), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var date, energy, fee string
		var code sql.NullString
		if err := rows.Scan(&date, &energy, &fee, &code); err != nil {
			return nil, fmt.Errorf("scan history row: %w", err)
		}
		entry, err := decodeEntry(energy, fee, code.String)
		if err != nil {
			return nil, err
		}
		entries = append(entries, HistoryEntry{
			Date: date,
			Row: model.OfferRow{
				Service:              svc,
				Kind:                 kind,
				Band:                 band,
				EnergyRate:           entry.EnergyRate,
				CommercializationFee: entry.CommercializationFee,
				OfferCode:            entry.OfferCode,
			},
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return entries, nil
}

func decodeEntry(energy, fee, code string) (model.OfferEntry, error) {
	energyRate, err := decimal.NewFromString(energy)
	if err != nil {
		return model.OfferEntry{}, fmt.Errorf("parse energy %q: %w", energy, err)
	}
	commFee, err := decimal.NewFromString(fee)
	if err != nil {
		return model.OfferEntry{}, fmt.Errorf("parse fee %q: %w", fee, err)
	}
	return model.OfferEntry{
		EnergyRate:           energyRate,
		CommercializationFee: commFee,
		OfferCode:            code,
	}, nil
}

func marshalNullable[T any](v *T) (any, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}
