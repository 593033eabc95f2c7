// Package notify decides whether a price change is worth telling someone
// about and hands the message to a delivery Channel.
package notify

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"

	"github.com/JakeFAU/pricewatch/internal/tracker"
)

// Decision is the outcome of applying a policy to a change.
type Decision int

// Decisions.
const (
	Deliver Decision = iota + 1
	Suppress
)

func (d Decision) String() string {
	switch d {
	case Deliver:
		return "deliver"
	case Suppress:
		return "suppress"
	default:
		return "unknown"
	}
}

// Decide applies policy to event. Only-on-drop items stay silent unless the
// new price is strictly lower.
func Decide(policy tracker.Policy, event tracker.ChangeEvent) Decision {
	if policy == tracker.PolicyOnlyOnDrop && event.NewPrice >= event.OldPrice {
		return Suppress
	}
	return Deliver
}

// Payload is a rendered notification.
type Payload struct {
	Subject string
	Text    string
	HTML    string
	Event   tracker.ChangeEvent
}

// Render builds the notification for event.
func Render(event tracker.ChangeEvent) Payload {
	name := event.Title
	if name == "" {
		name = event.URL
	}
	checked := tracker.FormatTime(event.NewCheckedAt)
	oldPrice := tracker.FormatPrice(event.OldPrice)
	newPrice := tracker.FormatPrice(event.NewPrice)

	var text strings.Builder
	fmt.Fprintf(&text, "The price of %s changed.\n\n", name)
	fmt.Fprintf(&text, "Old price: %s\n", oldPrice)
	fmt.Fprintf(&text, "New price: %s\n", newPrice)
	fmt.Fprintf(&text, "Link: %s\n", event.URL)
	fmt.Fprintf(&text, "Checked at: %s\n", checked)

	var body strings.Builder
	fmt.Fprintf(&body, "<p>The price of <b>%s</b> changed.</p>\n", html.EscapeString(name))
	body.WriteString("<table>\n")
	fmt.Fprintf(&body, "<tr><td>Old price</td><td>%s</td></tr>\n", oldPrice)
	fmt.Fprintf(&body, "<tr><td>New price</td><td>%s</td></tr>\n", newPrice)
	fmt.Fprintf(&body, "<tr><td>Link</td><td><a href=\"%s\">%s</a></td></tr>\n",
		html.EscapeString(event.URL), html.EscapeString(event.URL))
	fmt.Fprintf(&body, "<tr><td>Checked at</td><td>%s</td></tr>\n", checked)
	body.WriteString("</table>\n")

	return Payload{
		Subject: "Price change: " + name,
		Text:    text.String(),
		HTML:    body.String(),
		Event:   event,
	}
}

// Channel delivers a payload to recipients.
type Channel interface {
	Deliver(ctx context.Context, payload Payload, recipients []string) error
}

// ChannelFunc adapts a function to Channel.
type ChannelFunc func(ctx context.Context, payload Payload, recipients []string) error

// Deliver calls f.
func (f ChannelFunc) Deliver(ctx context.Context, payload Payload, recipients []string) error {
	return f(ctx, payload, recipients)
}

// ErrNoChannel is returned by Noop.
var ErrNoChannel = errors.New("no notification channel configured")

// Noop is the channel used when nothing is configured. Every delivery fails
// with ErrNoChannel so the caller can report the missing configuration.
var Noop Channel = ChannelFunc(func(context.Context, Payload, []string) error {
	return ErrNoChannel
})

// Multi fans a payload out to every channel and joins their errors.
func Multi(channels ...Channel) Channel {
	switch len(channels) {
	case 0:
		return Noop
	case 1:
		return channels[0]
	}
	return ChannelFunc(func(ctx context.Context, payload Payload, recipients []string) error {
		var errs []error
		for _, ch := range channels {
			if err := ch.Deliver(ctx, payload, recipients); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
}
