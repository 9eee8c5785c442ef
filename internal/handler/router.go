// Package handler reacts to incoming Telegram updates: bot commands, the
// tariff registration conversation and the Accept/Decline buttons of rate
// notifications.
package handler

import (
	"log"
	"strings"

	"github.com/dstmrk/octotracker/internal/notifier"
	"github.com/dstmrk/octotracker/internal/store"
)

// Messenger is the outgoing half of the Telegram client the handlers need.
type Messenger interface {
	SendMessage(chatID int64, text string, keyboard notifier.InlineKeyboard) error
	EditMessageText(chatID int64, messageID int, text string) error
	AnswerCallback(callbackID string) error
}

// Bot routes updates to the right handler. It implements
// notifier.UpdateHandler.
type Bot struct {
	profiles store.ProfileStore
	pending  store.PendingStore
	tg       Messenger
	sessions *sessionManager
}

func NewBot(profiles store.ProfileStore, pending store.PendingStore, tg Messenger) *Bot {
	return &Bot{
		profiles: profiles,
		pending:  pending,
		tg:       tg,
		sessions: newSessionManager(),
	}
}

// HandleMessage routes an incoming text message: commands first, then any
// registration conversation in progress.
func (b *Bot) HandleMessage(chatID int64, text string) {
	if strings.HasPrefix(text, "/") {
		b.handleCommand(chatID, text)
		return
	}
	if b.sessions.active(chatID) {
		b.handleRegistrationInput(chatID, text)
		return
	}
	b.reply(chatID, "Per registrare o aggiornare le tue tariffe usa /start. Con /help vedi tutti i comandi.")
}

// HandleCallback routes an inline button press.
func (b *Bot) HandleCallback(cb *notifier.CallbackQuery) {
	if err := b.tg.AnswerCallback(cb.ID); err != nil {
		log.Printf("[WARN] answer callback: %v", err)
	}

	switch cb.Data {
	case notifier.CallbackAcceptRates:
		b.handleAcceptRates(cb)
	case notifier.CallbackDeclineRates:
		b.handleDeclineRates(cb)
	default:
		b.handleRegistrationCallback(cb)
	}
}

func (b *Bot) reply(chatID int64, text string) {
	if err := b.tg.SendMessage(chatID, text, nil); err != nil {
		log.Printf("[ERROR] send reply to %d: %v", chatID, err)
	}
}

func (b *Bot) replyWithKeyboard(chatID int64, text string, keyboard notifier.InlineKeyboard) {
	if err := b.tg.SendMessage(chatID, text, keyboard); err != nil {
		log.Printf("[ERROR] send reply to %d: %v", chatID, err)
	}
}
