package model

import "github.com/shopspring/decimal"

// OfferEntry is one published best offer for a (service, kind, band) cell.
type OfferEntry struct {
	EnergyRate           decimal.Decimal
	CommercializationFee decimal.Decimal
	OfferCode            string
}

// OfferRow is an OfferEntry with its full key, as stored in rate history.
type OfferRow struct {
	Service              Service
	Kind                 Kind
	Band                 Band
	EnergyRate           decimal.Decimal
	CommercializationFee decimal.Decimal
	OfferCode            string
}

// OfferSnapshot is the table of currently published best offers, keyed by
// service, kind and band. Any combination may be absent.
type OfferSnapshot struct {
	Offers     map[Service]map[Kind]map[Band]OfferEntry
	SourceDate string // YYYY-MM-DD the registry published these offers for
}

// NewOfferSnapshot returns an empty snapshot for the given source date.
func NewOfferSnapshot(sourceDate string) *OfferSnapshot {
	return &OfferSnapshot{
		Offers:     make(map[Service]map[Kind]map[Band]OfferEntry),
		SourceDate: sourceDate,
	}
}

// Put records an offer for the given cell, overwriting any previous entry.
func (s *OfferSnapshot) Put(svc Service, kind Kind, band Band, entry OfferEntry) {
	kinds, ok := s.Offers[svc]
	if !ok {
		kinds = make(map[Kind]map[Band]OfferEntry)
		s.Offers[svc] = kinds
	}
	bands, ok := kinds[kind]
	if !ok {
		bands = make(map[Band]OfferEntry)
		kinds[kind] = bands
	}
	bands[band] = entry
}

// Lookup returns the offer for the exact (service, kind, band) cell.
// The second return value is false when no offer is currently published
// for that cell.
func (s *OfferSnapshot) Lookup(svc Service, kind Kind, band Band) (OfferEntry, bool) {
	if s == nil {
		return OfferEntry{}, false
	}
	entry, ok := s.Offers[svc][kind][band]
	return entry, ok
}

// IsEmpty reports whether the snapshot holds no offer at all.
func (s *OfferSnapshot) IsEmpty() bool {
	if s == nil {
		return true
	}
	for _, kinds := range s.Offers {
		for _, bands := range kinds {
			if len(bands) > 0 {
				return false
			}
		}
	}
	return true
}

// Rows flattens the snapshot into keyed rows, for rate history persistence.
func (s *OfferSnapshot) Rows() []OfferRow {
	var rows []OfferRow
	for svc, kinds := range s.Offers {
		for kind, bands := range kinds {
			for band, entry := range bands {
				rows = append(rows, OfferRow{
					Service:              svc,
					Kind:                 kind,
					Band:                 band,
					EnergyRate:           entry.EnergyRate,
					CommercializationFee: entry.CommercializationFee,
					OfferCode:            entry.OfferCode,
				})
			}
		}
	}
	return rows
}
