package engine

import "github.com/dstmrk/octotracker/internal/model"

// BuildNotifiedSnapshot extracts, for each subscribed service that has at
// least one saving, the current offer's pricing pair. Services without any
// saving are omitted, so they can never cause a spurious re-notification on
// their own.
func BuildNotifiedSnapshot(profile *model.TariffProfile, snapshot *model.OfferSnapshot, agg *model.AggregateSavings) *model.NotifiedSnapshot {
	notified := &model.NotifiedSnapshot{}

	for _, svc := range profile.Subscribed() {
		if !agg.Result(svc).HasSavings() {
			continue
		}
		tariff := profile.Tariff(svc)
		entry, ok := snapshot.Lookup(svc, tariff.Kind, tariff.Band)
		if !ok {
			continue
		}
		rate := &model.NotifiedRate{
			EnergyRate:           entry.EnergyRate,
			CommercializationFee: entry.CommercializationFee,
		}
		switch svc {
		case model.ServiceElectricity:
			notified.Electricity = rate
		case model.ServiceGas:
			notified.Gas = rate
		}
	}

	return notified
}

// ShouldNotify decides whether the aggregate outcome warrants notifying the
// user. Without savings there is nothing to say; with savings, the user is
// notified unless the proposed snapshot is structurally identical to the one
// already notified. Only the single most recent notified snapshot is used as
// the deduplication key.
func ShouldNotify(profile *model.TariffProfile, agg *model.AggregateSavings, proposed *model.NotifiedSnapshot) bool {
	if !agg.HasSavings {
		return false
	}
	return !proposed.Equal(profile.LastNotified)
}
