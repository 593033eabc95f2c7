// Package tracker defines the core types shared across the price pipeline.
package tracker

import (
	"strconv"
	"strings"
	"time"
)

// Policy decides which price changes trigger a notification.
type Policy string

// Notification policies.
const (
	PolicyAlways     Policy = "always"
	PolicyOnlyOnDrop Policy = "only_on_drop"
)

// Rule locates the price inside a fetched document.
type Rule struct {
	// Selector is a CSS selector; the first match is used.
	Selector string
	// Attribute, when set, reads the attribute instead of the element content.
	Attribute string
}

// Item is one configured page to watch.
type Item struct {
	URL        string
	Rule       Rule
	Policy     Policy
	Recipients []string
	Headless   bool
}

// Key returns the identity used to address the item in the store.
func (i Item) Key() string {
	return Key(i.URL)
}

// Key normalizes a source address; identities compare case-insensitively.
func Key(url string) string {
	return strings.ToLower(strings.TrimSpace(url))
}

// Document is the raw payload returned by a Fetcher.
type Document struct {
	URL        string
	StatusCode int
	Body       []byte
	Duration   time.Duration
}

// Observation is a freshly parsed price for one item.
type Observation struct {
	URL        string
	Title      string
	Price      float64
	ObservedAt time.Time
}

// Outcome is the result of observing a single item. Exactly one of
// Observation or Err is meaningful; Err is nil on success.
type Outcome struct {
	Item        Item
	Observation Observation
	Err         *Error
}

// OK reports whether the outcome carries an observation.
func (o Outcome) OK() bool {
	return o.Err == nil
}

// Success builds a successful Outcome.
func Success(item Item, obs Observation) Outcome {
	return Outcome{Item: item, Observation: obs}
}

// Failure builds a failed Outcome.
func Failure(item Item, err *Error) Outcome {
	return Outcome{Item: item, Err: err}
}

// Entry is the persisted state for one identity.
type Entry struct {
	URL       string
	Title     string
	Price     float64
	CheckedAt time.Time
}

// ChangeEvent is emitted when a known item reports a different price.
type ChangeEvent struct {
	URL          string
	Title        string
	OldPrice     float64
	NewPrice     float64
	OldCheckedAt time.Time
	NewCheckedAt time.Time
}

// Dropped reports whether the price went down.
func (e ChangeEvent) Dropped() bool {
	return e.NewPrice < e.OldPrice
}

// DisplayLayout is the timestamp format used in console lines and notifications.
const DisplayLayout = "2006-01-02 15:04:05 UTC"

// FormatTime renders t in UTC using DisplayLayout.
func FormatTime(t time.Time) string {
	return t.UTC().Format(DisplayLayout)
}

// FormatPrice renders v with two decimals, or with as many digits as needed
// when two decimals would hide part of the value.
func FormatPrice(v float64) string {
	short := strconv.FormatFloat(v, 'f', 2, 64)
	if back, err := strconv.ParseFloat(short, 64); err == nil && back == v {
		return short
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
