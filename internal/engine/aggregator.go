package engine

import "github.com/dstmrk/octotracker/internal/model"

// Evaluate runs the comparator for every subscribed service of the profile
// against the snapshot and classifies the aggregate outcome. Electricity is
// always evaluated; gas only when the profile carries it. The offer is looked
// up with the tariff's own kind and band, so a tariff is never compared
// against an offer of a different pricing model or billing structure.
func Evaluate(profile *model.TariffProfile, snapshot *model.OfferSnapshot) model.AggregateSavings {
	var agg model.AggregateSavings

	for _, svc := range profile.Subscribed() {
		tariff := profile.Tariff(svc)
		result := Compare(tariff, lookupOffer(snapshot, svc, tariff))

		switch svc {
		case model.ServiceElectricity:
			agg.Electricity = &result
		case model.ServiceGas:
			agg.Gas = &result
		}

		if result.HasSavings() {
			agg.HasSavings = true
		}
		if result.IsMixed() {
			agg.IsMixed = true
		}
	}

	return agg
}

func lookupOffer(snapshot *model.OfferSnapshot, svc model.Service, tariff *model.Tariff) *model.OfferEntry {
	entry, ok := snapshot.Lookup(svc, tariff.Kind, tariff.Band)
	if !ok {
		return nil
	}
	return &entry
}
