// Package engine implements the tariff comparison core: the per-field rate
// comparator, the savings aggregator, the notification idempotency gate and
// the pending-update builder. Everything here is pure and synchronous.
package engine

import (
	"github.com/shopspring/decimal"

	"github.com/dstmrk/octotracker/internal/model"
)

// Compare evaluates one user tariff against the published offer for the
// identical (kind, band) cell. A nil offer means no offer is currently
// published for that cell: the result is empty, not an error.
func Compare(tariff *model.Tariff, offer *model.OfferEntry) model.ComparisonResult {
	var result model.ComparisonResult
	if tariff == nil || offer == nil {
		return result
	}
	result.EnergySaving, result.EnergyWorsened = compareField(tariff.EnergyRate, offer.EnergyRate)
	result.CommFeeSaving, result.CommFeeWorsened = compareField(tariff.CommercializationFee, offer.CommercializationFee)
	return result
}

// compareField applies the strict ordering rule: improved iff after < before,
// worsened iff after > before, equality is neither.
func compareField(before, after decimal.Decimal) (*model.FieldChange, bool) {
	switch after.Cmp(before) {
	case -1:
		return &model.FieldChange{
			Before: before,
			After:  after,
			Delta:  before.Sub(after),
		}, false
	case 1:
		return nil, true
	}
	return nil, false
}
