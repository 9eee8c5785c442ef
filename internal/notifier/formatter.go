package notifier

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/dstmrk/octotracker/internal/model"
)

// Decimal places shown per field.
const (
	energyDecimals = 4
	feeDecimals    = 2
)

// Texts swapped into the notification after the user answers the prompt.
const (
	PromptText    = "👇 Vuoi aggiornare le tariffe memorizzate su OctoTracker con quelle nuove?"
	ConfirmedText = "✅ Tariffe aggiornate!"
	DeclinedText  = "🔧 Puoi sempre aggiornare le tariffe con /update."
	UpdateErrText = "❌ Errore nell'aggiornamento. Riprova con /update."
)

// Callback data of the notification keyboard.
const (
	CallbackAcceptRates  = "rate_update_yes"
	CallbackDeclineRates = "rate_update_no"
)

// BuildRateUpdateKeyboard returns the Accept/Decline keyboard attached to
// rate notifications.
func BuildRateUpdateKeyboard() InlineKeyboard {
	return InlineKeyboard{
		{
			{Text: "✅ Aggiorna tariffe", CallbackData: CallbackAcceptRates},
			{Text: "❌ No grazie", CallbackData: CallbackDeclineRates},
		},
	}
}

// FormatNumber renders a number Italian style: comma as decimal separator,
// whole numbers without decimals, otherwise at least two decimals with
// trailing zeros beyond the second stripped.
func FormatNumber(d decimal.Decimal, maxDecimals int) string {
	rounded := d.Round(int32(maxDecimals))
	if rounded.IsInteger() {
		return rounded.String()
	}

	s := strings.TrimRight(rounded.StringFixed(int32(maxDecimals)), "0")
	if i := strings.IndexByte(s, '.'); i >= 0 {
		for len(s)-i-1 < 2 {
			s += "0"
		}
	}
	return strings.Replace(s, ".", ",", 1)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// TypeDisplay renders kind and band for display, e.g. "Fissa Monoraria".
func TypeDisplay(kind model.Kind, band model.Band) string {
	return capitalize(string(kind)) + " " + capitalize(string(band))
}

// RateLabel is the name of the energy price for the tariff kind: fixed
// offers publish a price, variable ones a spread over the wholesale index.
func RateLabel(kind model.Kind, svc model.Service) string {
	if kind == model.KindFixed {
		return "Prezzo fisso"
	}
	if svc == model.ServiceElectricity {
		return "Spread (PUN +)"
	}
	return "Spread (PSV +)"
}

func EnergyUnit(svc model.Service) string {
	if svc == model.ServiceElectricity {
		return "€/kWh"
	}
	return "€/Smc"
}

func serviceDisplay(svc model.Service) (emoji, name string) {
	if svc == model.ServiceElectricity {
		return "💡", "Luce"
	}
	return "🔥", "Gas"
}

// NotificationData is everything needed to render one rate notification.
type NotificationData struct {
	Profile  *model.TariffProfile
	Snapshot *model.OfferSnapshot
	Savings  *model.AggregateSavings

	// Show selects the services rendered in the message.
	Show map[model.Service]bool

	// Estimates holds the net annual saving per service, for users with
	// recorded consumption.
	Estimates map[model.Service]decimal.Decimal
}

func (d *NotificationData) shownMixedWithoutEstimate() bool {
	for svc, shown := range d.Show {
		if !shown {
			continue
		}
		if !d.Savings.Result(svc).IsMixed() {
			continue
		}
		if _, ok := d.Estimates[svc]; !ok {
			return true
		}
	}
	return false
}

func (d *NotificationData) anyShownMixed() bool {
	for svc, shown := range d.Show {
		if shown && d.Savings.Result(svc).IsMixed() {
			return true
		}
	}
	return false
}

// FormatNotification renders the rate notification message. The prompt at
// the end matches the Accept/Decline keyboard and is later swapped for the
// outcome text.
func FormatNotification(data *NotificationData) string {
	var b strings.Builder

	writeHeader(&b, data.anyShownMixed())
	for _, svc := range data.Profile.Subscribed() {
		if data.Show[svc] {
			writeServiceSection(&b, data, svc)
		}
	}
	writeFooter(&b, data)

	return b.String()
}

func writeHeader(b *strings.Builder, mixed bool) {
	if mixed {
		b.WriteString("⚖️ <b>Aggiornamento tariffe Octopus Energy</b>\n")
		b.WriteString("OctoTracker ha rilevato una variazione nelle tariffe, ma non è detto che sia automaticamente più conveniente: una delle due componenti è migliorata, l'altra è aumentata.\n\n")
		return
	}
	b.WriteString("⚡️ <b>Buone notizie!</b>\n")
	b.WriteString("OctoTracker ha trovato una tariffa Octopus Energy più conveniente rispetto a quella che hai attiva.\n\n")
}

func writeServiceSection(b *strings.Builder, data *NotificationData, svc model.Service) {
	tariff := data.Profile.Tariff(svc)
	entry, ok := data.Snapshot.Lookup(svc, tariff.Kind, tariff.Band)
	if !ok {
		return
	}
	result := data.Savings.Result(svc)

	emoji, name := serviceDisplay(svc)
	label := RateLabel(tariff.Kind, svc)
	unit := EnergyUnit(svc)

	fmt.Fprintf(b, "%s <b>%s (%s):</b>\n", emoji, name, TypeDisplay(tariff.Kind, tariff.Band))
	fmt.Fprintf(b, "Tua tariffa: %s %s %s, Comm. %s €/anno\n",
		label,
		FormatNumber(tariff.EnergyRate, energyDecimals), unit,
		FormatNumber(tariff.CommercializationFee, feeDecimals))

	energyStr := decorate(FormatNumber(entry.EnergyRate, energyDecimals)+" "+unit,
		result.EnergySaving != nil, result.EnergyWorsened)
	feeStr := decorate(FormatNumber(entry.CommercializationFee, feeDecimals)+" €/anno",
		result.CommFeeSaving != nil, result.CommFeeWorsened)
	fmt.Fprintf(b, "Nuova tariffa: %s %s, Comm. %s\n", label, energyStr, feeStr)

	if estimate, ok := data.Estimates[svc]; ok {
		fmt.Fprintf(b, "💰 In base ai tuoi consumi di %s, il risparmio stimato è di circa <b>%s €/anno</b>.\n",
			strings.ToLower(name), FormatNumber(estimate, feeDecimals))
	}
	b.WriteString("\n")
}

// decorate wraps improved values in bold and worsened ones in underline.
func decorate(s string, improved, worsened bool) string {
	switch {
	case improved:
		return "<b>" + s + "</b>"
	case worsened:
		return "<u>" + s + "</u>"
	}
	return s
}

func writeFooter(b *strings.Builder, data *NotificationData) {
	if data.shownMixedWithoutEstimate() {
		b.WriteString("📊 In questi casi la convenienza dipende dai tuoi consumi.\n")
		b.WriteString("Se vuoi una stima più precisa, registra i tuoi consumi annui con /update: trovi i dati nelle tue bollette.\n\n")
	}
	b.WriteString("🔗 Maggiori info: https://octopusenergy.it/le-nostre-tariffe\n\n")
	b.WriteString("☕️ Se pensi che questo bot ti sia utile, puoi offrirmi un caffè su ko-fi.com/dstmrk — grazie di cuore! 💙\n\n")
	b.WriteString(PromptText)
}

// FormatConsumption renders the stored consumption of one tariff, or ""
// when none is recorded. Multi-band electricity tariffs list the per-band
// split next to the total.
func FormatConsumption(svc model.Service, tariff *model.Tariff, prefix string) string {
	total, ok := tariff.TotalConsumption()
	if !ok {
		return ""
	}
	unit := "kWh"
	if svc == model.ServiceGas {
		unit = "Smc"
	}

	line := fmt.Sprintf("%sConsumo: <b>%s</b> %s/anno", prefix, FormatNumber(total, 0), unit)
	if svc == model.ServiceElectricity && tariff.Band != model.BandSingle {
		var parts []string
		for _, slot := range []model.BandSlot{model.SlotF1, model.SlotF2, model.SlotF3} {
			if v, ok := tariff.Consumption[slot]; ok {
				parts = append(parts, fmt.Sprintf("%s: %s %s",
					strings.ToUpper(string(slot)), FormatNumber(v, 0), unit))
			}
		}
		if len(parts) > 0 {
			line += " - " + strings.Join(parts, " | ")
		}
	}
	return line + "\n"
}
