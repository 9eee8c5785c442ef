package model

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Service identifies a tracked utility supply.
type Service string

const (
	ServiceElectricity Service = "luce"
	ServiceGas         Service = "gas"
)

// Kind is the pricing model of a tariff: a flat per-unit price, or a
// spread added to a published market index (PUN for electricity, PSV for gas).
type Kind string

const (
	KindFixed    Kind = "fissa"
	KindVariable Kind = "variabile"
)

// Band is the time-of-use billing structure.
type Band string

const (
	BandSingle    Band = "monoraria"
	BandTwoTier   Band = "bioraria"
	BandThreeTier Band = "trioraria"
)

// BandSlot keys an annual consumption value within a tariff.
type BandSlot string

const (
	SlotF1     BandSlot = "f1"
	SlotF2     BandSlot = "f2"
	SlotF3     BandSlot = "f3"
	SlotAnnual BandSlot = "annuo"
)

// Valid reports whether k is a known pricing kind.
func (k Kind) Valid() bool {
	return k == KindFixed || k == KindVariable
}

// ValidFor reports whether the band is allowed for the given service.
// Gas contracts are always single-band.
func (b Band) ValidFor(svc Service) bool {
	switch svc {
	case ServiceElectricity:
		return b == BandSingle || b == BandTwoTier || b == BandThreeTier
	case ServiceGas:
		return b == BandSingle
	}
	return false
}

// Tariff is one subscribed supply contract. For KindFixed EnergyRate is the
// absolute unit price (EUR/kWh or EUR/Smc); for KindVariable it is the spread
// over the market index. CommercializationFee is the fixed annual supplier
// fee. Consumption is optional and independent of pricing.
type Tariff struct {
	Kind                 Kind                         `json:"tipo"`
	Band                 Band                         `json:"fascia"`
	EnergyRate           decimal.Decimal              `json:"energia"`
	CommercializationFee decimal.Decimal              `json:"commercializzazione"`
	Consumption          map[BandSlot]decimal.Decimal `json:"consumi,omitempty"`
}

// Validate checks kind and band against the service the tariff belongs to.
func (t *Tariff) Validate(svc Service) error {
	if !t.Kind.Valid() {
		return fmt.Errorf("%s: invalid kind %q", svc, t.Kind)
	}
	if !t.Band.ValidFor(svc) {
		return fmt.Errorf("%s: invalid band %q", svc, t.Band)
	}
	if t.EnergyRate.IsNegative() {
		return fmt.Errorf("%s: energy rate must not be negative", svc)
	}
	if t.CommercializationFee.IsNegative() {
		return fmt.Errorf("%s: commercialization fee must not be negative", svc)
	}
	return nil
}

// TotalConsumption sums all consumption slots. Returns false if no
// consumption was recorded.
func (t *Tariff) TotalConsumption() (decimal.Decimal, bool) {
	if len(t.Consumption) == 0 {
		return decimal.Zero, false
	}
	total := decimal.Zero
	for _, v := range t.Consumption {
		total = total.Add(v)
	}
	return total, true
}

// Clone returns a deep copy of the tariff.
func (t *Tariff) Clone() *Tariff {
	if t == nil {
		return nil
	}
	c := *t
	if t.Consumption != nil {
		c.Consumption = make(map[BandSlot]decimal.Decimal, len(t.Consumption))
		for k, v := range t.Consumption {
			c.Consumption[k] = v
		}
	}
	return &c
}

// TariffProfile is one user's registered supplies. Electricity is mandatory,
// gas optional. LastNotified remembers the offer state the user was last
// notified about, so an unchanged offer is never re-notified.
type TariffProfile struct {
	Electricity  Tariff            `json:"luce"`
	Gas          *Tariff           `json:"gas,omitempty"`
	LastNotified *NotifiedSnapshot `json:"last_notified_rates,omitempty"`
}

// Tariff returns the profile's tariff for svc, or nil if not subscribed.
func (p *TariffProfile) Tariff(svc Service) *Tariff {
	switch svc {
	case ServiceElectricity:
		return &p.Electricity
	case ServiceGas:
		return p.Gas
	}
	return nil
}

// Subscribed lists the services the profile carries, electricity first.
func (p *TariffProfile) Subscribed() []Service {
	services := []Service{ServiceElectricity}
	if p.Gas != nil {
		services = append(services, ServiceGas)
	}
	return services
}

// Validate checks every subscribed tariff.
func (p *TariffProfile) Validate() error {
	if err := p.Electricity.Validate(ServiceElectricity); err != nil {
		return err
	}
	if p.Gas != nil {
		if err := p.Gas.Validate(ServiceGas); err != nil {
			return err
		}
	}
	return nil
}

// Clone returns a deep copy of the profile.
func (p *TariffProfile) Clone() *TariffProfile {
	if p == nil {
		return nil
	}
	c := &TariffProfile{Electricity: *p.Electricity.Clone()}
	c.Gas = p.Gas.Clone()
	c.LastNotified = p.LastNotified.Clone()
	return c
}

// NotifiedRate is the pricing pair recorded at notification time. Kind and
// band are omitted: they are redundant with the profile's own selection.
type NotifiedRate struct {
	EnergyRate           decimal.Decimal `json:"energia"`
	CommercializationFee decimal.Decimal `json:"commercializzazione"`
}

// NotifiedSnapshot is the per-service offer state of the most recent
// notification. Only services that had a saving at notification time are
// present.
type NotifiedSnapshot struct {
	Electricity *NotifiedRate `json:"luce,omitempty"`
	Gas         *NotifiedRate `json:"gas,omitempty"`
}

// IsEmpty reports whether no service is recorded.
func (s *NotifiedSnapshot) IsEmpty() bool {
	return s == nil || (s.Electricity == nil && s.Gas == nil)
}

// Equal is exact field-for-field structural equality. Two nil or empty
// snapshots are equal.
func (s *NotifiedSnapshot) Equal(other *NotifiedSnapshot) bool {
	if s.IsEmpty() || other.IsEmpty() {
		return s.IsEmpty() && other.IsEmpty()
	}
	return ratesEqual(s.Electricity, other.Electricity) && ratesEqual(s.Gas, other.Gas)
}

func ratesEqual(a, b *NotifiedRate) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.EnergyRate.Equal(b.EnergyRate) &&
		a.CommercializationFee.Equal(b.CommercializationFee)
}

// Clone returns a deep copy of the snapshot.
func (s *NotifiedSnapshot) Clone() *NotifiedSnapshot {
	if s == nil {
		return nil
	}
	c := &NotifiedSnapshot{}
	if s.Electricity != nil {
		v := *s.Electricity
		c.Electricity = &v
	}
	if s.Gas != nil {
		v := *s.Gas
		c.Gas = &v
	}
	return c
}

// TariffFragment is a proposed partial profile awaiting the user's
// Accept/Decline. It carries every service the user was subscribed to at
// build time; selected services hold the new published numbers, unselected
// ones the user's own numbers, and consumption is always carried forward.
type TariffFragment struct {
	Electricity *Tariff `json:"luce,omitempty"`
	Gas         *Tariff `json:"gas,omitempty"`
}

// IsEmpty reports whether the fragment proposes nothing.
func (f *TariffFragment) IsEmpty() bool {
	return f == nil || (f.Electricity == nil && f.Gas == nil)
}

// Tariff returns the fragment's tariff for svc, or nil.
func (f *TariffFragment) Tariff(svc Service) *Tariff {
	if f == nil {
		return nil
	}
	switch svc {
	case ServiceElectricity:
		return f.Electricity
	case ServiceGas:
		return f.Gas
	}
	return nil
}
