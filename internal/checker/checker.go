// Package checker runs the daily sweep: it compares every registered user's
// tariffs against the current published offers and notifies the users that
// can save money.
package checker

import (
	"context"
	"log"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/dstmrk/octotracker/internal/engine"
	"github.com/dstmrk/octotracker/internal/model"
	"github.com/dstmrk/octotracker/internal/notifier"
	"github.com/dstmrk/octotracker/internal/store"
)

const (
	// How many notifications are in flight at once.
	maxParallelSends = 10

	sendRetries = 2
)

// OfferSource supplies the current offer snapshot.
type OfferSource interface {
	Current() *model.OfferSnapshot
}

// Sender delivers one notification message. Implemented by
// notifier.TelegramNotifier.
type Sender interface {
	SendWithRetry(ctx context.Context, chatID int64, text string, keyboard notifier.InlineKeyboard, maxRetries int) error
}

// Checker evaluates all users against the current offers.
type Checker struct {
	profiles store.ProfileStore
	pending  store.PendingStore
	offers   OfferSource
	sender   Sender
}

func New(profiles store.ProfileStore, pending store.PendingStore, offers OfferSource, sender Sender) *Checker {
	return &Checker{
		profiles: profiles,
		pending:  pending,
		offers:   offers,
		sender:   sender,
	}
}

// notification is one prepared send.
type notification struct {
	userID   int64
	message  string
	proposed *model.NotifiedSnapshot
	profile  *model.TariffProfile
}

// Run performs one sweep. A failure for one user never blocks the others;
// the returned error covers only being unable to sweep at all.
func (c *Checker) Run(ctx context.Context) error {
	snapshot := c.offers.Current()
	if snapshot.IsEmpty() {
		log.Printf("[WARN] checker: no offer snapshot available, skipping sweep")
		return nil
	}

	profiles, err := c.profiles.All()
	if err != nil {
		return err
	}
	log.Printf("[INFO] checker: sweeping %d users against offers from %s", len(profiles), snapshot.SourceDate)

	var pending []notification
	for userID, profile := range profiles {
		n, ok := c.evaluateUser(userID, profile, snapshot)
		if ok {
			pending = append(pending, n)
		}
	}
	if len(pending) == 0 {
		log.Printf("[INFO] checker: sweep done, nothing to notify")
		return nil
	}

	sent := c.dispatch(ctx, pending)
	log.Printf("[INFO] checker: sweep done, %d/%d notifications sent", sent, len(pending))
	return nil
}

// evaluateUser runs the comparison pipeline for one user and, when the user
// should be notified, stores the pending update and returns the prepared
// notification.
func (c *Checker) evaluateUser(userID int64, profile *model.TariffProfile, snapshot *model.OfferSnapshot) (notification, bool) {
	agg := engine.Evaluate(profile, snapshot)
	if !agg.HasSavings {
		return notification{}, false
	}

	proposed := engine.BuildNotifiedSnapshot(profile, snapshot, &agg)
	if !engine.ShouldNotify(profile, &agg, proposed) {
		return notification{}, false
	}

	selected, estimates := c.selectServices(profile, snapshot, &agg)
	if len(selected) == 0 {
		// Every saving service is mixed with a net loss for this user.
		log.Printf("[INFO] checker: user %d skipped, estimated net loss on all changed services", userID)
		return notification{}, false
	}

	fragment := engine.BuildPendingUpdate(profile, snapshot, selected)
	if err := c.pending.SavePending(userID, fragment); err != nil {
		log.Printf("[ERROR] checker: save pending for user %d: %v", userID, err)
		return notification{}, false
	}

	message := notifier.FormatNotification(&notifier.NotificationData{
		Profile:   profile,
		Snapshot:  snapshot,
		Savings:   &agg,
		Show:      selected,
		Estimates: estimates,
	})
	return notification{
		userID:   userID,
		message:  message,
		proposed: proposed,
		profile:  profile,
	}, true
}

// selectServices picks the services proposed for update. A service with
// savings is selected unless its outcome is mixed and the user's consumption
// says the switch is a net loss. Estimates are kept for display whenever
// consumption allows computing them.
func (c *Checker) selectServices(profile *model.TariffProfile, snapshot *model.OfferSnapshot, agg *model.AggregateSavings) (engine.ServiceSet, map[model.Service]decimal.Decimal) {
	selected := engine.ServiceSet{}
	estimates := map[model.Service]decimal.Decimal{}

	for _, svc := range profile.Subscribed() {
		result := agg.Result(svc)
		if !result.HasSavings() {
			continue
		}
		estimate, ok := engine.EstimateAnnualSavings(svc, profile, snapshot)
		if result.IsMixed() && ok && estimate.Sign() <= 0 {
			continue
		}
		selected[svc] = true
		if ok {
			estimates[svc] = estimate
		}
	}
	return selected, estimates
}

// dispatch sends the prepared notifications with bounded parallelism and
// records the notified snapshot for each successful send.
func (c *Checker) dispatch(ctx context.Context, pending []notification) int {
	var g errgroup.Group
	g.SetLimit(maxParallelSends)

	sent := make(chan int64, len(pending))
	byUser := make(map[int64]notification, len(pending))
	for _, n := range pending {
		n := n
		byUser[n.userID] = n
		g.Go(func() error {
			err := c.sender.SendWithRetry(ctx, n.userID, n.message, notifier.BuildRateUpdateKeyboard(), sendRetries)
			if err != nil {
				if notifier.IsRecipientGone(err) {
					log.Printf("[WARN] checker: user %d unreachable (blocked or gone): %v", n.userID, err)
				} else {
					log.Printf("[ERROR] checker: send to user %d failed: %v", n.userID, err)
				}
				return nil
			}
			sent <- n.userID
			return nil
		})
	}
	g.Wait()
	close(sent)

	// Only successfully notified users get their dedup snapshot advanced, so
	// failed sends are retried on the next sweep.
	var count int
	for userID := range sent {
		n := byUser[userID]
		n.profile.LastNotified = n.proposed
		if err := c.profiles.Put(userID, n.profile); err != nil {
			log.Printf("[ERROR] checker: record notified rates for user %d: %v", userID, err)
			continue
		}
		count++
	}
	return count
}
