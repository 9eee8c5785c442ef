package handler

import (
	"errors"
	"log"
	"strings"

	"github.com/dstmrk/octotracker/internal/model"
	"github.com/dstmrk/octotracker/internal/notifier"
	"github.com/dstmrk/octotracker/internal/store"
)

// updateOutcome is the result of applying or discarding a pending update.
type updateOutcome int

const (
	updateOK updateOutcome = iota
	updateNoPending
	updateNoUser
	updateDBError
)

func (b *Bot) handleAcceptRates(cb *notifier.CallbackQuery) {
	if cb.Message == nil {
		return
	}
	chatID := cb.Message.Chat.ID

	outcome := b.applyPendingRates(cb.From.ID)

	var text string
	switch outcome {
	case updateOK:
		text = notifier.ConfirmedText
	case updateNoPending, updateNoUser:
		text = notifier.DeclinedText
	case updateDBError:
		text = notifier.UpdateErrText
	}

	b.editOutcome(chatID, cb.Message, text)
}

func (b *Bot) handleDeclineRates(cb *notifier.CallbackQuery) {
	if cb.Message == nil {
		return
	}
	chatID := cb.Message.Chat.ID

	if err := b.pending.ClearPending(cb.From.ID); err != nil {
		log.Printf("[WARN] clear pending rates for %d: %v", cb.From.ID, err)
	}

	b.editOutcome(chatID, cb.Message, notifier.DeclinedText)
}

// applyPendingRates merges the stored pending rates into the user's profile.
// The dedup snapshot and any service the fragment does not carry stay as they
// are. The pending slot is cleared only after the profile is persisted, so a
// storage failure leaves the update retryable via /update.
func (b *Bot) applyPendingRates(userID int64) updateOutcome {
	fragment, err := b.pending.LoadPending(userID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNoPending):
			return updateNoPending
		case errors.Is(err, store.ErrProfileNotFound):
			return updateNoUser
		default:
			log.Printf("[ERROR] load pending rates for %d: %v", userID, err)
			return updateDBError
		}
	}

	profile, err := b.profiles.Get(userID)
	if err != nil {
		if errors.Is(err, store.ErrProfileNotFound) {
			return updateNoUser
		}
		log.Printf("[ERROR] load profile for %d: %v", userID, err)
		return updateDBError
	}

	mergeFragment(profile, fragment)

	if err := profile.Validate(); err != nil {
		log.Printf("[ERROR] pending rates for %d produce invalid profile: %v", userID, err)
		return updateDBError
	}

	if err := b.profiles.Put(userID, profile); err != nil {
		log.Printf("[ERROR] save updated profile for %d: %v", userID, err)
		return updateDBError
	}

	if err := b.pending.ClearPending(userID); err != nil {
		log.Printf("[WARN] clear pending rates for %d after apply: %v", userID, err)
	}

	return updateOK
}

// mergeFragment overwrites the profile's tariffs with those carried by the
// fragment, service by service.
func mergeFragment(profile *model.TariffProfile, fragment *model.TariffFragment) {
	if fragment.Electricity != nil {
		profile.Electricity = *fragment.Electricity.Clone()
	}
	if fragment.Gas != nil {
		profile.Gas = fragment.Gas.Clone()
	}
}

// editOutcome swaps the trailing prompt of the notification for the outcome
// text, falling back to a plain message when the edit fails (e.g. the
// notification is too old to edit).
func (b *Bot) editOutcome(chatID int64, msg *notifier.Message, text string) {
	edited := replacePrompt(msg.Text, text)
	if err := b.tg.EditMessageText(chatID, msg.MessageID, edited); err != nil {
		log.Printf("[WARN] edit notification for %d: %v", chatID, err)
		b.reply(chatID, text)
	}
}

func replacePrompt(body, outcome string) string {
	if body == "" {
		return outcome
	}
	if idx := strings.LastIndex(body, notifier.PromptText); idx >= 0 {
		return body[:idx] + outcome
	}
	return body + "\n\n" + outcome
}
