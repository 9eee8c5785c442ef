package handler

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/dstmrk/octotracker/internal/model"
	"github.com/dstmrk/octotracker/internal/notifier"
	"github.com/dstmrk/octotracker/internal/store"
)

const notRegisteredText = "ℹ️ Non hai ancora registrato le tue tariffe.\n\n" +
	"Per iniziare a usare OctoTracker, inserisci i tuoi dati con il comando /start.\n\n" +
	"🐙 Ti guiderò passo passo: ci vogliono meno di 60 secondi!"

func (b *Bot) handleCommand(chatID int64, text string) {
	cmd := strings.ToLower(strings.Fields(text)[0])
	if i := strings.IndexByte(cmd, '@'); i >= 0 {
		cmd = cmd[:i]
	}

	// A command always abandons any conversation in progress.
	if cmd != "/cancel" {
		b.sessions.end(chatID)
	}

	switch cmd {
	case "/start", "/update":
		b.startRegistration(chatID)
	case "/status":
		b.handleStatus(chatID)
	case "/remove":
		b.handleRemove(chatID)
	case "/help":
		b.handleHelp(chatID)
	case "/cancel":
		b.handleCancel(chatID)
	default:
		b.reply(chatID,
			"Comando non riconosciuto 🤷‍♂️\n"+
				"Dai un'occhiata a /help per vedere cosa puoi fare con OctoTracker.")
	}
}

func (b *Bot) handleStatus(chatID int64) {
	profile, err := b.profiles.Get(chatID)
	if err != nil {
		if !errors.Is(err, store.ErrProfileNotFound) {
			log.Printf("[ERROR] load profile for %d: %v", chatID, err)
		}
		b.reply(chatID, notRegisteredText)
		return
	}

	var sb strings.Builder
	sb.WriteString("📊 <b>I tuoi dati:</b>\n\n")

	for _, svc := range profile.Subscribed() {
		tariff := profile.Tariff(svc)
		emoji := "💡"
		name := "Luce"
		if svc == model.ServiceGas {
			emoji = "🔥"
			name = "Gas"
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "%s <b>%s (%s):</b>\n", emoji, name, notifier.TypeDisplay(tariff.Kind, tariff.Band))
		fmt.Fprintf(&sb, "  - %s: %s %s\n",
			notifier.RateLabel(tariff.Kind, svc),
			notifier.FormatNumber(tariff.EnergyRate, 4),
			notifier.EnergyUnit(svc))
		fmt.Fprintf(&sb, "  - Commercializzazione: %s €/anno\n",
			notifier.FormatNumber(tariff.CommercializationFee, 2))
		sb.WriteString(notifier.FormatConsumption(svc, tariff, "  - "))
	}

	sb.WriteString("\nPer modificarli usa /update")
	b.reply(chatID, sb.String())
}

func (b *Bot) handleRemove(chatID int64) {
	err := b.profiles.Delete(chatID)
	switch {
	case err == nil:
		b.reply(chatID,
			"✅ <b>Dati cancellati con successo</b>\n\n"+
				"Tutte le informazioni che avevi registrato (tariffe e preferenze) sono state rimosse.\n"+
				"Da questo momento non riceverai più notifiche da OctoTracker.\n\n"+
				"🐙 Ti ringrazio per averlo provato!\n\n"+
				"Se in futuro vuoi ricominciare a monitorare le tariffe, ti basta usare il comando /start.")
	case errors.Is(err, store.ErrProfileNotFound):
		b.reply(chatID, notRegisteredText)
	default:
		log.Printf("[ERROR] delete profile for %d: %v", chatID, err)
		b.reply(chatID, "❌ Si è verificato un errore. Riprova più tardi.")
	}
}

func (b *Bot) handleHelp(chatID int64) {
	b.reply(chatID,
		"👋 <b>Benvenuto su OctoTracker!</b>\n\n"+
			"Questo bot ti aiuta a monitorare le tariffe luce e gas di Octopus Energy "+
			"e ti avvisa quando ci sono offerte più convenienti rispetto alle tue.\n\n"+
			"<b>Comandi disponibili:</b>\n"+
			"• /start – Inizia e registra le tue tariffe attuali\n"+
			"• /update – Aggiorna le tariffe che hai impostato\n"+
			"• /status – Mostra le tariffe e lo stato attuale\n"+
			"• /remove – Cancella i tuoi dati e disattiva il servizio\n"+
			"• /cancel – Annulla la registrazione in corso\n"+
			"• /help – Mostra questo messaggio di aiuto\n\n"+
			"💡 Il bot controlla le tariffe ogni giorno.\n\n"+
			"⚠️ OctoTracker non è affiliato né collegato in alcun modo a Octopus Energy.")
}

func (b *Bot) handleCancel(chatID int64) {
	b.sessions.end(chatID)
	b.reply(chatID,
		"❌ <b>Registrazione annullata</b>\n\n"+
			"Nessun problema! Hai annullato la procedura di registrazione.\n\n"+
			"Quando vuoi riprovarci, usa il comando /start.\n"+
			"Se hai bisogno di aiuto, puoi usare /help.")
}
