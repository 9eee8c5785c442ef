package notifier

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/dstmrk/octotracker/internal/engine"
	"github.com/dstmrk/octotracker/internal/model"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestFormatNumber(t *testing.T) {
	tests := []struct {
		in          string
		maxDecimals int
		want        string
	}{
		{"72.0", 2, "72"},
		{"72.5", 2, "72,50"},
		{"0.145", 4, "0,145"},
		{"0.140", 4, "0,14"},
		{"0.100", 4, "0,10"},
		{"0.0088", 4, "0,0088"},
		{"27.5", 2, "27,50"},
		{"-21", 2, "-21"},
		{"-21.125", 2, "-21,13"},
		{"2700", 0, "2700"},
		{"2700.4", 0, "2700"},
	}
	for _, tt := range tests {
		if got := FormatNumber(dec(tt.in), tt.maxDecimals); got != tt.want {
			t.Errorf("FormatNumber(%s, %d) = %q, want %q", tt.in, tt.maxDecimals, got, tt.want)
		}
	}
}

func TestTypeDisplay(t *testing.T) {
	if got := TypeDisplay(model.KindFixed, model.BandSingle); got != "Fissa Monoraria" {
		t.Errorf("got %q", got)
	}
	if got := TypeDisplay(model.KindVariable, model.BandThreeTier); got != "Variabile Trioraria" {
		t.Errorf("got %q", got)
	}
}

func TestBuildRateUpdateKeyboard(t *testing.T) {
	kb := BuildRateUpdateKeyboard()

	if len(kb) != 1 || len(kb[0]) != 2 {
		t.Fatalf("keyboard shape = %v, want one row of two buttons", kb)
	}
	if kb[0][0].CallbackData != CallbackAcceptRates {
		t.Errorf("first button data = %q", kb[0][0].CallbackData)
	}
	if kb[0][1].CallbackData != CallbackDeclineRates {
		t.Errorf("second button data = %q", kb[0][1].CallbackData)
	}
}

func notificationFixture() *NotificationData {
	profile := &model.TariffProfile{
		Electricity: model.Tariff{
			Kind:                 model.KindFixed,
			Band:                 model.BandSingle,
			EnergyRate:           dec("0.145"),
			CommercializationFee: dec("72.0"),
		},
	}
	snapshot := model.NewOfferSnapshot("2026-08-29")
	snapshot.Put(model.ServiceElectricity, model.KindFixed, model.BandSingle, model.OfferEntry{
		EnergyRate:           dec("0.130"),
		CommercializationFee: dec("72.0"),
	})
	agg := engine.Evaluate(profile, snapshot)
	return &NotificationData{
		Profile:  profile,
		Snapshot: snapshot,
		Savings:  &agg,
		Show:     map[model.Service]bool{model.ServiceElectricity: true},
	}
}

func TestFormatNotification_Savings(t *testing.T) {
	msg := FormatNotification(notificationFixture())

	for _, want := range []string{
		"⚡️ <b>Buone notizie!</b>",
		"💡 <b>Luce (Fissa Monoraria):</b>",
		"Tua tariffa: Prezzo fisso 0,145 €/kWh, Comm. 72 €/anno",
		"Nuova tariffa: Prezzo fisso <b>0,13 €/kWh</b>, Comm. 72 €/anno",
		PromptText,
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q\n%s", want, msg)
		}
	}
	if strings.Contains(msg, "📊") {
		t.Error("non-mixed notification must not carry the consumption advisory")
	}
}

func TestFormatNotification_MixedWithoutConsumption(t *testing.T) {
	data := notificationFixture()
	// Fee worsens while energy improves.
	data.Snapshot.Put(model.ServiceElectricity, model.KindFixed, model.BandSingle, model.OfferEntry{
		EnergyRate:           dec("0.130"),
		CommercializationFee: dec("85.0"),
	})
	agg := engine.Evaluate(data.Profile, data.Snapshot)
	data.Savings = &agg

	msg := FormatNotification(data)

	for _, want := range []string{
		"⚖️ <b>Aggiornamento tariffe Octopus Energy</b>",
		"<u>85 €/anno</u>",
		"📊 In questi casi la convenienza dipende dai tuoi consumi.",
		"Se vuoi una stima più precisa",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q\n%s", want, msg)
		}
	}
}

func TestFormatNotification_MixedWithEstimate(t *testing.T) {
	data := notificationFixture()
	data.Snapshot.Put(model.ServiceElectricity, model.KindFixed, model.BandSingle, model.OfferEntry{
		EnergyRate:           dec("0.130"),
		CommercializationFee: dec("85.0"),
	})
	agg := engine.Evaluate(data.Profile, data.Snapshot)
	data.Savings = &agg
	data.Estimates = map[model.Service]decimal.Decimal{
		model.ServiceElectricity: dec("27.5"),
	}

	msg := FormatNotification(data)

	if !strings.Contains(msg, "💰 In base ai tuoi consumi di luce") {
		t.Errorf("missing inline estimate:\n%s", msg)
	}
	if !strings.Contains(msg, "27,50 €/anno") {
		t.Errorf("missing formatted estimate:\n%s", msg)
	}
	if strings.Contains(msg, "📊 In questi casi") {
		t.Error("inline estimate must replace the generic advisory")
	}
}

func TestFormatConsumption(t *testing.T) {
	tariff := &model.Tariff{
		Kind: model.KindVariable,
		Band: model.BandThreeTier,
		Consumption: map[model.BandSlot]decimal.Decimal{
			model.SlotF1: dec("900"),
			model.SlotF2: dec("850"),
			model.SlotF3: dec("950"),
		},
	}

	line := FormatConsumption(model.ServiceElectricity, tariff, "- ")
	for _, want := range []string{"<b>2700</b> kWh/anno", "F1: 900 kWh", "F2: 850 kWh", "F3: 950 kWh"} {
		if !strings.Contains(line, want) {
			t.Errorf("line missing %q: %s", want, line)
		}
	}

	if got := FormatConsumption(model.ServiceGas, &model.Tariff{}, "- "); got != "" {
		t.Errorf("no consumption must render empty, got %q", got)
	}
}
