package notify

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/pricewatch/internal/progress"
	"github.com/JakeFAU/pricewatch/internal/tracker"
)

// Config holds dispatcher-wide settings.
type Config struct {
	// Recipients is used for items without their own list.
	Recipients []string
	RunID      [16]byte
}

// Dispatcher applies item policy and delivers change notifications.
type Dispatcher struct {
	channel Channel
	emitter progress.Emitter
	cfg     Config
	logger  *zap.Logger
}

// NewDispatcher wires a Dispatcher. A nil channel behaves like Noop.
func NewDispatcher(channel Channel, emitter progress.Emitter, cfg Config, logger *zap.Logger) *Dispatcher {
	if channel == nil {
		channel = Noop
	}
	if emitter == nil {
		emitter = progress.Discard
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{channel: channel, emitter: emitter, cfg: cfg, logger: logger}
}

// MaybeNotify decides and, when allowed, delivers a notification for event.
// The returned error is never fatal to a run; callers report it and move on.
func (d *Dispatcher) MaybeNotify(ctx context.Context, item tracker.Item, event tracker.ChangeEvent) (Decision, error) {
	decision := Decide(item.Policy, event)
	base := progress.Event{
		RunID:    d.cfg.RunID,
		TS:       event.NewCheckedAt,
		Site:     progress.SiteFromURL(event.URL),
		URL:      event.URL,
		Title:    event.Title,
		OldPrice: event.OldPrice,
		NewPrice: event.NewPrice,
	}
	if decision == Suppress {
		base.Stage = progress.StageNotifySuppressed
		base.Note = "price did not drop"
		d.emitter.Emit(base)
		return decision, nil
	}

	recipients := d.recipientsFor(item)
	err := d.channel.Deliver(ctx, Render(event), recipients)
	if err != nil {
		reason := tracker.ReasonDeliveryFailed
		if errors.Is(err, ErrNoChannel) {
			reason = tracker.ReasonNotificationConfigMissing
		}
		terr := tracker.NewError(reason, event.URL, err)
		d.logger.Warn("notification failed", zap.String("url", event.URL), zap.Error(terr))
		base.Stage = progress.StageNotifyFailed
		base.Reason = string(terr.Reason)
		base.Note = err.Error()
		d.emitter.Emit(base)
		return decision, terr
	}
	base.Stage = progress.StageNotified
	base.Note = strings.Join(recipients, ", ")
	d.emitter.Emit(base)
	return decision, nil
}

func (d *Dispatcher) recipientsFor(item tracker.Item) []string {
	if len(item.Recipients) > 0 {
		return item.Recipients
	}
	return d.cfg.Recipients
}
