package handler

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/dstmrk/octotracker/internal/model"
	"github.com/dstmrk/octotracker/internal/notifier"
	"github.com/dstmrk/octotracker/internal/store"
)

// maxNumericInput caps user-typed numbers; anything longer is noise.
const maxNumericInput = 20

const (
	errValueNegative = "❌ Il valore deve essere maggiore o uguale a zero"
	errInputTooLong  = "❌ Il valore inserito è troppo lungo"
)

const msgHasGas = "Hai anche una fornitura gas attiva con Octopus Energy?"

// Callback data of the registration keyboards.
const (
	cbKindFixed    = "tipo_fissa"
	cbKindVariable = "tipo_variabile"
	cbBandSingle   = "luce_mono"
	cbBandThree    = "luce_tri"
	cbElecConsYes  = "consumi_luce_si"
	cbElecConsNo   = "consumi_luce_no"
	cbGasYes       = "gas_si"
	cbGasNo        = "gas_no"
	cbGasConsYes   = "consumi_gas_si"
	cbGasConsNo    = "consumi_gas_no"
)

func yesNoKeyboard(yesData, noData string) notifier.InlineKeyboard {
	return notifier.InlineKeyboard{
		{
			{Text: "✅ Sì", CallbackData: yesData},
			{Text: "❌ No", CallbackData: noData},
		},
	}
}

// startRegistration opens (or restarts) the tariff conversation for a chat.
func (b *Bot) startRegistration(chatID int64) {
	_, err := b.profiles.Get(chatID)
	isUpdate := err == nil
	if err != nil && !errors.Is(err, store.ErrProfileNotFound) {
		log.Printf("[WARN] load profile for %d: %v", chatID, err)
	}

	b.sessions.start(chatID)

	var text string
	if isUpdate {
		text = "♻️ <b>Aggiorniamo le tue tariffe!</b>\n\n" +
			"Inserisci di nuovo i valori attuali così OctoTracker potrà confrontarli " +
			"con le nuove offerte di Octopus Energy.\n\n" +
			"Ti guiderò passo passo come la prima volta: prima la luce, poi (se ce l'hai) il gas.\n\n" +
			"👉 Iniziamo: che tipo di tariffa hai?"
	} else {
		text = "🐙 <b>Benvenuto su OctoTracker!</b>\n\n" +
			"Questo bot controlla ogni giorno le tariffe di Octopus Energy e ti avvisa " +
			"se ne trova di più convenienti rispetto alle tue attuali.\n\n" +
			"Ti farò qualche semplice domanda per registrare le tue tariffe luce e (se ce l'hai) gas.\n" +
			"Rispondi passo passo ai messaggi: ci vorrà meno di un minuto. ⚡️\n\n" +
			"👉 Iniziamo: che tipo di tariffa hai?"
	}

	keyboard := notifier.InlineKeyboard{
		{
			{Text: "📊 Fissa", CallbackData: cbKindFixed},
			{Text: "📈 Variabile", CallbackData: cbKindVariable},
		},
	}
	b.replyWithKeyboard(chatID, text, keyboard)
}

// handleRegistrationCallback advances the conversation on a button press.
func (b *Bot) handleRegistrationCallback(cb *notifier.CallbackQuery) {
	chatID := cb.From.ID
	s, ok := b.sessions.get(chatID)
	if !ok {
		return
	}

	switch cb.Data {
	case cbKindFixed:
		if s.step != stepTariffKind {
			return
		}
		s.kind = model.KindFixed
		s.band = model.BandSingle
		s.step = stepElectricityEnergy
		b.reply(chatID,
			"📊 <b>Tariffa Fissa</b>\n\n"+
				"Perfetto! Ora inserisci i dati della tua tariffa luce.\n\n"+
				"👉 Quanto paghi per la materia energia luce (€/kWh)?\n\n"+
				"ℹ️ Inserisci il prezzo <b>IVA e imposte escluse, perdite incluse</b> "+
				"(come riportato sul sito Octopus Energy/ARERA)\n\n"+
				"💬 Esempio: 0,145")

	case cbKindVariable:
		if s.step != stepTariffKind {
			return
		}
		s.kind = model.KindVariable
		s.step = stepElectricityBand
		b.replyWithKeyboard(chatID,
			"📈 <b>Tariffa Variabile</b>\n\nLa tua tariffa luce è monoraria o trioraria (F1/F2/F3)?",
			notifier.InlineKeyboard{
				{
					{Text: "⏱️ Monoraria", CallbackData: cbBandSingle},
					{Text: "⏱️⏱️⏱️ Trioraria", CallbackData: cbBandThree},
				},
			})

	case cbBandSingle, cbBandThree:
		if s.step != stepElectricityBand {
			return
		}
		bandMsg := "monoraria (PUN)"
		s.band = model.BandSingle
		if cb.Data == cbBandThree {
			s.band = model.BandThreeTier
			bandMsg = "trioraria (PUN)"
		}
		s.step = stepElectricityEnergy
		b.reply(chatID, fmt.Sprintf(
			"⚡ <b>Luce variabile %s</b>\n\n"+
				"Ora inserisci lo spread della tua tariffa rispetto al PUN.\n\n"+
				"ℹ️ Inserisci il valore <b>IVA e imposte escluse, perdite incluse</b> "+
				"(come riportato sul sito Octopus Energy/ARERA)\n\n"+
				"💬 Esempio: se la tua tariffa è <b>PUN + 0,0088</b> €/kWh, scrivi <code>0,0088</code>",
			bandMsg))

	case cbElecConsYes:
		if s.step != stepAskElectricityConsumption {
			return
		}
		s.elecCons = make(map[model.BandSlot]decimal.Decimal)
		if s.band == model.BandThreeTier {
			s.step = stepElectricityConsumptionF1
			b.reply(chatID,
				"Inserisci il tuo consumo annuo in fascia F1 in kWh.\n\n"+
					"(F1 = feriali 8–19)\n\n"+
					"💬 Esempio: 900")
		} else {
			s.step = stepElectricityConsumption
			b.reply(chatID,
				"Inserisci il tuo consumo annuo totale di energia elettrica in kWh.\n\n"+
					"💬 Esempio: 2700")
		}

	case cbElecConsNo:
		if s.step != stepAskElectricityConsumption {
			return
		}
		b.askHasGas(chatID, s)

	case cbGasYes:
		if s.step != stepAskGas {
			return
		}
		s.hasGas = true
		s.step = stepGasEnergy
		if s.kind == model.KindVariable {
			b.reply(chatID,
				"🔥 <b>Gas variabile</b>\n\n"+
					"Ora inserisci lo spread della tua tariffa rispetto al PSV.\n\n"+
					"ℹ️ Inserisci il valore <b>IVA e imposte escluse</b> "+
					"(come riportato sul sito Octopus Energy/ARERA)\n\n"+
					"💬 Esempio: se la tua tariffa è <b>PSV + 0,08</b> €/Smc, scrivi <code>0,08</code>")
		} else {
			b.reply(chatID,
				"🔥 <b>Gas fisso</b>\n\n"+
					"Perfetto! Inserisci il costo materia energia gas (€/Smc).\n\n"+
					"ℹ️ Inserisci il prezzo <b>IVA e imposte escluse</b> "+
					"(come riportato sul sito Octopus Energy/ARERA)\n\n"+
					"💬 Esempio: 0,456")
		}

	case cbGasNo:
		if s.step != stepAskGas {
			return
		}
		s.hasGas = false
		b.finishRegistration(chatID, s)

	case cbGasConsYes:
		if s.step != stepAskGasConsumption {
			return
		}
		s.gasCons = make(map[model.BandSlot]decimal.Decimal)
		s.step = stepGasConsumption
		b.reply(chatID, "Inserisci il tuo consumo annuo di gas in Smc.\n\n💬 Esempio: 1200")

	case cbGasConsNo:
		if s.step != stepAskGasConsumption {
			return
		}
		b.finishRegistration(chatID, s)
	}
}

// handleRegistrationInput advances the conversation on typed text.
func (b *Bot) handleRegistrationInput(chatID int64, text string) {
	s, ok := b.sessions.get(chatID)
	if !ok {
		return
	}

	value, errMsg := parseNumericInput(text)
	if errMsg != "" {
		b.reply(chatID, errMsg)
		return
	}

	switch s.step {
	case stepElectricityEnergy:
		if value == nil {
			if s.kind == model.KindVariable {
				b.reply(chatID, "❌ Inserisci un numero valido (es: 0,0088)")
			} else {
				b.reply(chatID, "❌ Inserisci un numero valido (es: 0,145)")
			}
			return
		}
		s.elecEnergy = *value
		s.step = stepElectricityFee
		b.reply(chatID,
			"Perfetto! Ora indica il costo di commercializzazione luce, in euro/anno.\n\n"+
				"💬 Esempio: 72 (se paghi 6 €/mese)")

	case stepElectricityFee:
		if value == nil {
			b.reply(chatID, "❌ Inserisci un numero valido (es: 96,50)")
			return
		}
		s.elecFee = *value
		s.step = stepAskElectricityConsumption
		b.replyWithKeyboard(chatID,
			"Vuoi indicare anche il tuo consumo annuale di energia elettrica (in kWh)?\n\n"+
				"💡 Serve solo per valutare meglio quando una tariffa può convenirti.",
			yesNoKeyboard(cbElecConsYes, cbElecConsNo))

	case stepElectricityConsumption:
		if value == nil {
			b.reply(chatID, "❌ Inserisci un numero valido (es: 2700)")
			return
		}
		s.elecCons[model.SlotAnnual] = *value
		b.askHasGas(chatID, s)

	case stepElectricityConsumptionF1:
		if value == nil {
			b.reply(chatID, "❌ Inserisci un numero valido (es: 900)")
			return
		}
		s.elecCons[model.SlotF1] = *value
		s.step = stepElectricityConsumptionF2
		b.reply(chatID,
			"Ora inserisci il tuo consumo annuo in fascia F2 in kWh.\n\n"+
				"(F2 = feriali 7–8 e 19–23, sabato 7–23)\n\n"+
				"💬 Esempio: 900")

	case stepElectricityConsumptionF2:
		if value == nil {
			b.reply(chatID, "❌ Inserisci un numero valido (es: 900)")
			return
		}
		s.elecCons[model.SlotF2] = *value
		s.step = stepElectricityConsumptionF3
		b.reply(chatID,
			"Infine, inserisci il tuo consumo annuo in fascia F3 in kWh.\n\n"+
				"(F3 = notte, domeniche e festivi)\n\n"+
				"💬 Esempio: 900")

	case stepElectricityConsumptionF3:
		if value == nil {
			b.reply(chatID, "❌ Inserisci un numero valido (es: 900)")
			return
		}
		s.elecCons[model.SlotF3] = *value
		b.askHasGas(chatID, s)

	case stepGasEnergy:
		if value == nil {
			if s.kind == model.KindVariable {
				b.reply(chatID, "❌ Inserisci un numero valido (es: 0,08)")
			} else {
				b.reply(chatID, "❌ Inserisci un numero valido (es: 0,456)")
			}
			return
		}
		s.gasEnergy = *value
		s.step = stepGasFee
		b.reply(chatID,
			"Perfetto! Ora indica il costo di commercializzazione gas, in euro/anno.\n\n"+
				"💬 Esempio: 84 (se paghi 7 €/mese)")

	case stepGasFee:
		if value == nil {
			b.reply(chatID, "❌ Inserisci un numero valido (es: 144,00)")
			return
		}
		s.gasFee = *value
		s.step = stepAskGasConsumption
		b.replyWithKeyboard(chatID,
			"Vuoi indicare anche il tuo consumo annuale di gas (in Smc)?\n\n"+
				"🔥 Serve solo per valutare meglio quando una tariffa può convenirti.",
			yesNoKeyboard(cbGasConsYes, cbGasConsNo))

	case stepGasConsumption:
		if value == nil {
			b.reply(chatID, "❌ Inserisci un numero valido (es: 1200)")
			return
		}
		s.gasCons[model.SlotAnnual] = *value
		b.finishRegistration(chatID, s)
	}
}

func (b *Bot) askHasGas(chatID int64, s *session) {
	s.step = stepAskGas
	b.replyWithKeyboard(chatID, msgHasGas, yesNoKeyboard(cbGasYes, cbGasNo))
}

// parseNumericInput converts a user-typed number (comma or dot decimals).
// The returned message is non-empty for rejected input; a nil value with an
// empty message means the text is not a number and the caller picks the hint.
func parseNumericInput(text string) (*decimal.Decimal, string) {
	text = strings.TrimSpace(text)
	if len(text) > maxNumericInput {
		return nil, errInputTooLong
	}

	value, err := decimal.NewFromString(strings.Replace(text, ",", ".", 1))
	if err != nil {
		return nil, ""
	}
	if value.IsNegative() {
		return nil, errValueNegative
	}
	return &value, ""
}

// finishRegistration persists the collected tariffs and echoes them back.
// A fresh registration resets the dedup snapshot; a pending update from an
// earlier notification no longer matches the new rates and is dropped.
func (b *Bot) finishRegistration(chatID int64, s *session) {
	defer b.sessions.end(chatID)

	profile := &model.TariffProfile{
		Electricity: model.Tariff{
			Kind:                 s.kind,
			Band:                 s.band,
			EnergyRate:           s.elecEnergy,
			CommercializationFee: s.elecFee,
			Consumption:          s.elecCons,
		},
	}
	if s.hasGas {
		profile.Gas = &model.Tariff{
			Kind:                 s.kind,
			Band:                 model.BandSingle,
			EnergyRate:           s.gasEnergy,
			CommercializationFee: s.gasFee,
			Consumption:          s.gasCons,
		}
	}

	if err := profile.Validate(); err != nil {
		log.Printf("[ERROR] registration for %d produced invalid profile: %v", chatID, err)
		b.reply(chatID,
			"❌ Si è verificato un errore durante il salvataggio dei dati.\n\n"+
				"Per favore riprova usando il comando /start per ricominciare la registrazione.")
		return
	}

	if err := b.profiles.Put(chatID, profile); err != nil {
		log.Printf("[ERROR] save profile for %d: %v", chatID, err)
		b.reply(chatID,
			"❌ Si è verificato un errore durante il salvataggio dei dati.\n\n"+
				"Per favore riprova usando il comando /start per ricominciare la registrazione.")
		return
	}
	if err := b.pending.ClearPending(chatID); err != nil && !errors.Is(err, store.ErrProfileNotFound) {
		log.Printf("[WARN] clear pending rates for %d after registration: %v", chatID, err)
	}

	b.reply(chatID, formatConfirmation(profile))
}

// formatConfirmation echoes the registered tariffs back to the user.
func formatConfirmation(profile *model.TariffProfile) string {
	var b strings.Builder

	b.WriteString("✅ <b>Abbiamo finito!</b>\n\nEcco i dati che hai inserito:\n\n")

	elec := &profile.Electricity
	fmt.Fprintf(&b, "💡 <b>Luce (%s)</b>\n", notifier.TypeDisplay(elec.Kind, elec.Band))
	fmt.Fprintf(&b, "- %s: %s %s\n",
		notifier.RateLabel(elec.Kind, model.ServiceElectricity),
		notifier.FormatNumber(elec.EnergyRate, 4),
		notifier.EnergyUnit(model.ServiceElectricity))
	fmt.Fprintf(&b, "- Commercializzazione: %s €/anno\n",
		notifier.FormatNumber(elec.CommercializationFee, 2))
	b.WriteString(notifier.FormatConsumption(model.ServiceElectricity, elec, "- "))

	if profile.Gas != nil {
		gas := profile.Gas
		fmt.Fprintf(&b, "\n🔥 <b>Gas (%s)</b>\n", notifier.TypeDisplay(gas.Kind, gas.Band))
		fmt.Fprintf(&b, "- %s: %s %s\n",
			notifier.RateLabel(gas.Kind, model.ServiceGas),
			notifier.FormatNumber(gas.EnergyRate, 4),
			notifier.EnergyUnit(model.ServiceGas))
		fmt.Fprintf(&b, "- Commercializzazione: %s €/anno\n",
			notifier.FormatNumber(gas.CommercializationFee, 2))
		b.WriteString(notifier.FormatConsumption(model.ServiceGas, gas, "- "))
	}

	b.WriteString("\nTutto corretto?\n" +
		"Se in futuro vuoi modificare qualcosa, puoi usare il comando /update.\n\n" +
		"⚠️ OctoTracker non è affiliato né collegato in alcun modo a Octopus Energy.")

	return b.String()
}
