package engine

import (
	"github.com/shopspring/decimal"

	"github.com/dstmrk/octotracker/internal/model"
)

// ServiceSet selects which services a pending update should move to the new
// published numbers.
type ServiceSet map[model.Service]bool

// BuildPendingUpdate computes the tariff fragment proposed to the user. Every
// subscribed service appears in the fragment: services in updateServices take
// the matching offer's pricing, the rest keep the user's current numbers
// verbatim. Consumption is copied unchanged for every service regardless of
// selection, so accepting a fragment can never lose it.
func BuildPendingUpdate(profile *model.TariffProfile, snapshot *model.OfferSnapshot, updateServices ServiceSet) *model.TariffFragment {
	fragment := &model.TariffFragment{}

	for _, svc := range profile.Subscribed() {
		proposed := profile.Tariff(svc).Clone()
		if updateServices[svc] {
			if entry, ok := snapshot.Lookup(svc, proposed.Kind, proposed.Band); ok {
				proposed.EnergyRate = entry.EnergyRate
				proposed.CommercializationFee = entry.CommercializationFee
			}
		}
		switch svc {
		case model.ServiceElectricity:
			fragment.Electricity = proposed
		case model.ServiceGas:
			fragment.Gas = proposed
		}
	}

	return fragment
}

// EstimateAnnualSavings computes the net EUR/year impact of switching one
// service to the matching offer, using the profile's recorded consumption:
// (oldRate - newRate) * totalConsumption + (oldFee - newFee). Returns false
// when the profile has no consumption for the service or no offer is
// published for its cell. A negative result means the switch would cost more.
func EstimateAnnualSavings(svc model.Service, profile *model.TariffProfile, snapshot *model.OfferSnapshot) (decimal.Decimal, bool) {
	tariff := profile.Tariff(svc)
	if tariff == nil {
		return decimal.Zero, false
	}
	total, ok := tariff.TotalConsumption()
	if !ok {
		return decimal.Zero, false
	}
	entry, ok := snapshot.Lookup(svc, tariff.Kind, tariff.Band)
	if !ok {
		return decimal.Zero, false
	}

	energy := tariff.EnergyRate.Sub(entry.EnergyRate).Mul(total)
	fee := tariff.CommercializationFee.Sub(entry.CommercializationFee)
	return energy.Add(fee), true
}
