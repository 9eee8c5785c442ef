package handler

import (
	"fmt"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dstmrk/octotracker/internal/model"
	"github.com/dstmrk/octotracker/internal/notifier"
	"github.com/dstmrk/octotracker/internal/store"
)

type sentMessage struct {
	chatID   int64
	text     string
	keyboard notifier.InlineKeyboard
}

type editedMessage struct {
	chatID    int64
	messageID int
	text      string
}

// fakeMessenger records outgoing traffic instead of calling Telegram.
type fakeMessenger struct {
	sent     []sentMessage
	edited   []editedMessage
	answered []string

	editErr error
}

func (f *fakeMessenger) SendMessage(chatID int64, text string, keyboard notifier.InlineKeyboard) error {
	f.sent = append(f.sent, sentMessage{chatID: chatID, text: text, keyboard: keyboard})
	return nil
}

func (f *fakeMessenger) EditMessageText(chatID int64, messageID int, text string) error {
	if f.editErr != nil {
		return f.editErr
	}
	f.edited = append(f.edited, editedMessage{chatID: chatID, messageID: messageID, text: text})
	return nil
}

func (f *fakeMessenger) AnswerCallback(callbackID string) error {
	f.answered = append(f.answered, callbackID)
	return nil
}

func (f *fakeMessenger) lastSent(t *testing.T) sentMessage {
	t.Helper()
	require.NotEmpty(t, f.sent)
	return f.sent[len(f.sent)-1]
}

// failingProfiles fails a set number of Put calls before behaving normally.
type failingProfiles struct {
	*store.MemoryStore
	putFailures int
}

func (f *failingProfiles) Put(userID int64, profile *model.TariffProfile) error {
	if f.putFailures > 0 {
		f.putFailures--
		return fmt.Errorf("database is locked")
	}
	return f.MemoryStore.Put(userID, profile)
}

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func newTestBot() (*Bot, *store.MemoryStore, *fakeMessenger) {
	st := store.NewMemoryStore()
	tg := &fakeMessenger{}
	return NewBot(st, st, tg), st, tg
}

func seedProfile(t *testing.T, st *store.MemoryStore, userID int64) *model.TariffProfile {
	t.Helper()
	profile := &model.TariffProfile{
		Electricity: model.Tariff{
			Kind:                 model.KindFixed,
			Band:                 model.BandSingle,
			EnergyRate:           dec(t, "0.145"),
			CommercializationFee: dec(t, "72"),
		},
	}
	require.NoError(t, st.Put(userID, profile))
	return profile
}

func callback(userID int64, data, msgText string) *notifier.CallbackQuery {
	return &notifier.CallbackQuery{
		ID:   "cb-1",
		From: notifier.User{ID: userID},
		Message: &notifier.Message{
			MessageID: 42,
			Chat:      notifier.Chat{ID: userID},
			Text:      msgText,
		},
		Data: data,
	}
}

func TestRegistration_FixedWithGasAndConsumption(t *testing.T) {
	bot, st, tg := newTestBot()
	const userID int64 = 7

	bot.HandleMessage(userID, "/start")
	assert.Contains(t, tg.lastSent(t).text, "Benvenuto su OctoTracker")

	bot.HandleCallback(callback(userID, "tipo_fissa", ""))
	assert.Contains(t, tg.lastSent(t).text, "Tariffa Fissa")

	bot.HandleMessage(userID, "0,145")
	assert.Contains(t, tg.lastSent(t).text, "commercializzazione luce")

	bot.HandleMessage(userID, "72")
	assert.Contains(t, tg.lastSent(t).text, "consumo annuale di energia elettrica")

	bot.HandleCallback(callback(userID, "consumi_luce_si", ""))
	bot.HandleMessage(userID, "2700")
	assert.Contains(t, tg.lastSent(t).text, "fornitura gas")

	bot.HandleCallback(callback(userID, "gas_si", ""))
	assert.Contains(t, tg.lastSent(t).text, "Gas fisso")

	bot.HandleMessage(userID, "0,456")
	bot.HandleMessage(userID, "84")
	bot.HandleCallback(callback(userID, "consumi_gas_si", ""))
	bot.HandleMessage(userID, "1200")

	confirmation := tg.lastSent(t).text
	assert.Contains(t, confirmation, "Abbiamo finito")
	assert.Contains(t, confirmation, "💡 <b>Luce (Fissa Monoraria)</b>")
	assert.Contains(t, confirmation, "Prezzo fisso: 0,145 €/kWh")
	assert.Contains(t, confirmation, "Consumo: <b>2700</b> kWh/anno")
	assert.Contains(t, confirmation, "🔥 <b>Gas (Fissa Monoraria)</b>")
	assert.Contains(t, confirmation, "Consumo: <b>1200</b> Smc/anno")

	profile, err := st.Get(userID)
	require.NoError(t, err)
	assert.Equal(t, model.KindFixed, profile.Electricity.Kind)
	assert.True(t, profile.Electricity.EnergyRate.Equal(dec(t, "0.145")))
	assert.True(t, profile.Electricity.Consumption[model.SlotAnnual].Equal(dec(t, "2700")))
	require.NotNil(t, profile.Gas)
	assert.True(t, profile.Gas.EnergyRate.Equal(dec(t, "0.456")))
	assert.True(t, profile.Gas.Consumption[model.SlotAnnual].Equal(dec(t, "1200")))
	assert.Nil(t, profile.LastNotified)

	assert.False(t, bot.sessions.active(userID))
}

func TestRegistration_VariableThreeTier(t *testing.T) {
	bot, st, tg := newTestBot()
	const userID int64 = 8

	bot.HandleMessage(userID, "/start")
	bot.HandleCallback(callback(userID, "tipo_variabile", ""))
	assert.Contains(t, tg.lastSent(t).text, "monoraria o trioraria")

	bot.HandleCallback(callback(userID, "luce_tri", ""))
	assert.Contains(t, tg.lastSent(t).text, "spread della tua tariffa rispetto al PUN")

	bot.HandleMessage(userID, "0,0088")
	bot.HandleMessage(userID, "72")
	bot.HandleCallback(callback(userID, "consumi_luce_si", ""))
	assert.Contains(t, tg.lastSent(t).text, "fascia F1")

	bot.HandleMessage(userID, "900")
	assert.Contains(t, tg.lastSent(t).text, "fascia F2")
	bot.HandleMessage(userID, "800")
	assert.Contains(t, tg.lastSent(t).text, "fascia F3")
	bot.HandleMessage(userID, "1000")

	bot.HandleCallback(callback(userID, "gas_no", ""))

	confirmation := tg.lastSent(t).text
	assert.Contains(t, confirmation, "Luce (Variabile Trioraria)")
	assert.Contains(t, confirmation, "Spread (PUN +): 0,0088 €/kWh")
	assert.Contains(t, confirmation, "Consumo: <b>2700</b> kWh/anno - F1: 900 kWh | F2: 800 kWh | F3: 1000 kWh")

	profile, err := st.Get(userID)
	require.NoError(t, err)
	assert.Equal(t, model.BandThreeTier, profile.Electricity.Band)
	assert.Nil(t, profile.Gas)
	assert.True(t, profile.Electricity.Consumption[model.SlotF2].Equal(dec(t, "800")))
}

func TestRegistration_RejectsBadInput(t *testing.T) {
	bot, _, tg := newTestBot()
	const userID int64 = 9

	bot.HandleMessage(userID, "/start")
	bot.HandleCallback(callback(userID, "tipo_fissa", ""))

	bot.HandleMessage(userID, "abc")
	assert.Contains(t, tg.lastSent(t).text, "Inserisci un numero valido (es: 0,145)")

	bot.HandleMessage(userID, "-1")
	assert.Contains(t, tg.lastSent(t).text, "maggiore o uguale a zero")

	bot.HandleMessage(userID, strings.Repeat("9", 40))
	assert.Contains(t, tg.lastSent(t).text, "troppo lungo")

	// Still waiting for a valid energy rate.
	bot.HandleMessage(userID, "0,145")
	assert.Contains(t, tg.lastSent(t).text, "commercializzazione luce")
}

func TestRegistration_UpdateGreetingForExistingUser(t *testing.T) {
	bot, st, tg := newTestBot()
	seedProfile(t, st, 10)

	bot.HandleMessage(10, "/update")
	assert.Contains(t, tg.lastSent(t).text, "Aggiorniamo le tue tariffe")
}

func TestRegistration_ClearsPendingOnNewRates(t *testing.T) {
	bot, st, tg := newTestBot()
	const userID int64 = 11
	seedProfile(t, st, userID)
	require.NoError(t, st.SavePending(userID, &model.TariffFragment{
		Electricity: &model.Tariff{
			Kind:                 model.KindFixed,
			Band:                 model.BandSingle,
			EnergyRate:           dec(t, "0.13"),
			CommercializationFee: dec(t, "72"),
		},
	}))

	bot.HandleMessage(userID, "/update")
	bot.HandleCallback(callback(userID, "tipo_fissa", ""))
	bot.HandleMessage(userID, "0,15")
	bot.HandleMessage(userID, "60")
	bot.HandleCallback(callback(userID, "consumi_luce_no", ""))
	bot.HandleCallback(callback(userID, "gas_no", ""))

	assert.Contains(t, tg.lastSent(t).text, "Abbiamo finito")
	_, err := st.LoadPending(userID)
	assert.ErrorIs(t, err, store.ErrNoPending)
}

func TestCancelAbandonsConversation(t *testing.T) {
	bot, st, tg := newTestBot()
	const userID int64 = 12

	bot.HandleMessage(userID, "/start")
	bot.HandleMessage(userID, "/cancel")
	assert.Contains(t, tg.lastSent(t).text, "Registrazione annullata")
	assert.False(t, bot.sessions.active(userID))

	// Free text outside a conversation gets the hint, not a validation error.
	bot.HandleMessage(userID, "0,145")
	assert.Contains(t, tg.lastSent(t).text, "usa /start")

	_, err := st.Get(userID)
	assert.ErrorIs(t, err, store.ErrProfileNotFound)
}

func TestStatus(t *testing.T) {
	bot, st, tg := newTestBot()

	bot.HandleMessage(20, "/status")
	assert.Contains(t, tg.lastSent(t).text, "Non hai ancora registrato")

	seedProfile(t, st, 20)
	bot.HandleMessage(20, "/status")
	status := tg.lastSent(t).text
	assert.Contains(t, status, "I tuoi dati")
	assert.Contains(t, status, "Luce (Fissa Monoraria)")
	assert.Contains(t, status, "Prezzo fisso: 0,145 €/kWh")
	assert.Contains(t, status, "Commercializzazione: 72 €/anno")
	assert.Contains(t, status, "Per modificarli usa /update")
}

func TestRemove(t *testing.T) {
	bot, st, tg := newTestBot()
	seedProfile(t, st, 21)

	bot.HandleMessage(21, "/remove")
	assert.Contains(t, tg.lastSent(t).text, "Dati cancellati con successo")
	_, err := st.Get(21)
	assert.ErrorIs(t, err, store.ErrProfileNotFound)

	bot.HandleMessage(21, "/remove")
	assert.Contains(t, tg.lastSent(t).text, "Non hai ancora registrato")
}

func TestUnknownCommand(t *testing.T) {
	bot, _, tg := newTestBot()
	bot.HandleMessage(22, "/frobnicate")
	assert.Contains(t, tg.lastSent(t).text, "Comando non riconosciuto")
}

func notificationText() string {
	return fmt.Sprintf("⚡️ <b>Buone notizie!</b>\nblah blah\n\n%s", notifier.PromptText)
}

func TestAcceptRates_AppliesPending(t *testing.T) {
	bot, st, tg := newTestBot()
	const userID int64 = 30

	profile := seedProfile(t, st, userID)
	profile.LastNotified = &model.NotifiedSnapshot{
		Electricity: &model.NotifiedRate{
			EnergyRate:           dec(t, "0.13"),
			CommercializationFee: dec(t, "72"),
		},
	}
	require.NoError(t, st.Put(userID, profile))
	require.NoError(t, st.SavePending(userID, &model.TariffFragment{
		Electricity: &model.Tariff{
			Kind:                 model.KindFixed,
			Band:                 model.BandSingle,
			EnergyRate:           dec(t, "0.13"),
			CommercializationFee: dec(t, "72"),
		},
	}))

	bot.HandleCallback(callback(userID, notifier.CallbackAcceptRates, notificationText()))

	require.Len(t, tg.edited, 1)
	assert.Equal(t, 42, tg.edited[0].messageID)
	assert.Contains(t, tg.edited[0].text, notifier.ConfirmedText)
	assert.NotContains(t, tg.edited[0].text, notifier.PromptText)
	assert.Equal(t, []string{"cb-1"}, tg.answered)

	updated, err := st.Get(userID)
	require.NoError(t, err)
	assert.True(t, updated.Electricity.EnergyRate.Equal(dec(t, "0.13")))
	// The dedup snapshot survives the update so the sweep stays silent.
	require.NotNil(t, updated.LastNotified)
	require.NotNil(t, updated.LastNotified.Electricity)
	assert.True(t, updated.LastNotified.Electricity.EnergyRate.Equal(dec(t, "0.13")))

	_, err = st.LoadPending(userID)
	assert.ErrorIs(t, err, store.ErrNoPending)
}

func TestAcceptRates_NoPending(t *testing.T) {
	bot, st, tg := newTestBot()
	seedProfile(t, st, 31)

	bot.HandleCallback(callback(31, notifier.CallbackAcceptRates, notificationText()))

	require.Len(t, tg.edited, 1)
	assert.Contains(t, tg.edited[0].text, notifier.DeclinedText)

	// Stored rates untouched.
	profile, err := st.Get(31)
	require.NoError(t, err)
	assert.True(t, profile.Electricity.EnergyRate.Equal(dec(t, "0.145")))
}

func TestAcceptRates_UserGone(t *testing.T) {
	bot, _, tg := newTestBot()

	bot.HandleCallback(callback(32, notifier.CallbackAcceptRates, notificationText()))

	require.Len(t, tg.edited, 1)
	assert.Contains(t, tg.edited[0].text, notifier.DeclinedText)
}

func TestAcceptRates_Idempotent(t *testing.T) {
	bot, st, tg := newTestBot()
	const userID int64 = 33
	seedProfile(t, st, userID)
	require.NoError(t, st.SavePending(userID, &model.TariffFragment{
		Electricity: &model.Tariff{
			Kind:                 model.KindFixed,
			Band:                 model.BandSingle,
			EnergyRate:           dec(t, "0.13"),
			CommercializationFee: dec(t, "70"),
		},
	}))

	bot.HandleCallback(callback(userID, notifier.CallbackAcceptRates, notificationText()))
	bot.HandleCallback(callback(userID, notifier.CallbackAcceptRates, notificationText()))

	require.Len(t, tg.edited, 2)
	assert.Contains(t, tg.edited[0].text, notifier.ConfirmedText)
	assert.Contains(t, tg.edited[1].text, notifier.DeclinedText)

	profile, err := st.Get(userID)
	require.NoError(t, err)
	assert.True(t, profile.Electricity.CommercializationFee.Equal(dec(t, "70")))
}

func TestAcceptRates_SaveFailureKeepsPendingRetryable(t *testing.T) {
	st := store.NewMemoryStore()
	profiles := &failingProfiles{MemoryStore: st, putFailures: 1}
	tg := &fakeMessenger{}
	bot := NewBot(profiles, st, tg)

	const userID int64 = 36
	seedProfile(t, st, userID)
	require.NoError(t, st.SavePending(userID, &model.TariffFragment{
		Electricity: &model.Tariff{
			Kind:                 model.KindFixed,
			Band:                 model.BandSingle,
			EnergyRate:           dec(t, "0.13"),
			CommercializationFee: dec(t, "70"),
		},
	}))

	bot.HandleCallback(callback(userID, notifier.CallbackAcceptRates, notificationText()))

	require.Len(t, tg.edited, 1)
	assert.Contains(t, tg.edited[0].text, notifier.UpdateErrText)

	// Nothing was applied and the pending slot survives for a retry.
	profile, err := st.Get(userID)
	require.NoError(t, err)
	assert.True(t, profile.Electricity.EnergyRate.Equal(dec(t, "0.145")))
	fragment, err := st.LoadPending(userID)
	require.NoError(t, err)
	require.NotNil(t, fragment.Electricity)
	assert.True(t, fragment.Electricity.EnergyRate.Equal(dec(t, "0.13")))

	bot.HandleCallback(callback(userID, notifier.CallbackAcceptRates, notificationText()))

	require.Len(t, tg.edited, 2)
	assert.Contains(t, tg.edited[1].text, notifier.ConfirmedText)
	profile, err = st.Get(userID)
	require.NoError(t, err)
	assert.True(t, profile.Electricity.EnergyRate.Equal(dec(t, "0.13")))
	_, err = st.LoadPending(userID)
	assert.ErrorIs(t, err, store.ErrNoPending)
}

func TestDeclineRates(t *testing.T) {
	bot, st, tg := newTestBot()
	const userID int64 = 34
	seedProfile(t, st, userID)
	require.NoError(t, st.SavePending(userID, &model.TariffFragment{
		Electricity: &model.Tariff{
			Kind:                 model.KindFixed,
			Band:                 model.BandSingle,
			EnergyRate:           dec(t, "0.13"),
			CommercializationFee: dec(t, "72"),
		},
	}))

	bot.HandleCallback(callback(userID, notifier.CallbackDeclineRates, notificationText()))

	require.Len(t, tg.edited, 1)
	assert.Contains(t, tg.edited[0].text, notifier.DeclinedText)

	// Rates untouched, pending dropped.
	profile, err := st.Get(userID)
	require.NoError(t, err)
	assert.True(t, profile.Electricity.EnergyRate.Equal(dec(t, "0.145")))
	_, err = st.LoadPending(userID)
	assert.ErrorIs(t, err, store.ErrNoPending)

	// Declining again is a no-op.
	bot.HandleCallback(callback(userID, notifier.CallbackDeclineRates, notificationText()))

	require.Len(t, tg.edited, 2)
	assert.Contains(t, tg.edited[1].text, notifier.DeclinedText)
	profile, err = st.Get(userID)
	require.NoError(t, err)
	assert.True(t, profile.Electricity.EnergyRate.Equal(dec(t, "0.145")))
}

func TestAcceptRates_EditFailureFallsBackToMessage(t *testing.T) {
	bot, st, tg := newTestBot()
	const userID int64 = 35
	seedProfile(t, st, userID)
	require.NoError(t, st.SavePending(userID, &model.TariffFragment{
		Electricity: &model.Tariff{
			Kind:                 model.KindFixed,
			Band:                 model.BandSingle,
			EnergyRate:           dec(t, "0.13"),
			CommercializationFee: dec(t, "72"),
		},
	}))
	tg.editErr = fmt.Errorf("message is too old")

	bot.HandleCallback(callback(userID, notifier.CallbackAcceptRates, notificationText()))

	assert.Empty(t, tg.edited)
	assert.Equal(t, notifier.ConfirmedText, tg.lastSent(t).text)
}

func TestReplacePrompt(t *testing.T) {
	body := "header\n\n" + notifier.PromptText
	got := replacePrompt(body, notifier.ConfirmedText)
	assert.Equal(t, "header\n\n"+notifier.ConfirmedText, got)

	// Bodies without the prompt get the outcome appended.
	got = replacePrompt("just text", notifier.ConfirmedText)
	assert.Equal(t, "just text\n\n"+notifier.ConfirmedText, got)
}
