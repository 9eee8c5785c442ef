package model

import "github.com/shopspring/decimal"

// FieldChange records an improvement on one priced field.
type FieldChange struct {
	Before decimal.Decimal
	After  decimal.Decimal
	Delta  decimal.Decimal // Before - After, always positive
}

// ComparisonResult is the outcome of comparing one user tariff against the
// matching published offer. A nil saving with a false worsened flag means
// the field is unchanged or no offer was available.
type ComparisonResult struct {
	EnergySaving    *FieldChange
	CommFeeSaving   *FieldChange
	EnergyWorsened  bool
	CommFeeWorsened bool
}

// HasSavings reports whether at least one field improved.
func (r *ComparisonResult) HasSavings() bool {
	return r != nil && (r.EnergySaving != nil || r.CommFeeSaving != nil)
}

// HasWorsening reports whether at least one field got more expensive.
func (r *ComparisonResult) HasWorsening() bool {
	return r != nil && (r.EnergyWorsened || r.CommFeeWorsened)
}

// IsMixed reports whether the service improved on one field while worsening
// on the other.
func (r *ComparisonResult) IsMixed() bool {
	return r.HasSavings() && r.HasWorsening()
}

// AggregateSavings is the per-profile comparison outcome across all
// subscribed services.
type AggregateSavings struct {
	Electricity *ComparisonResult
	Gas         *ComparisonResult
	HasSavings  bool
	IsMixed     bool
}

// Result returns the per-service comparison, or nil if the service is not
// subscribed.
func (a *AggregateSavings) Result(svc Service) *ComparisonResult {
	switch svc {
	case ServiceElectricity:
		return a.Electricity
	case ServiceGas:
		return a.Gas
	}
	return nil
}
