// Package progress defines the events emitted while a price run executes.
package progress

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart         Stage = "RUN_START"
	StageRunDone          Stage = "RUN_DONE"
	StageFetchStart       Stage = "FETCH_START"
	StageFetchDone        Stage = "FETCH_DONE"
	StageItemFailed       Stage = "ITEM_FAILED"
	StageNewItem          Stage = "NEW_ITEM"
	StagePriceChanged     Stage = "PRICE_CHANGED"
	StagePriceUnchanged   Stage = "PRICE_UNCHANGED"
	StageNotified         Stage = "NOTIFIED"
	StageNotifySuppressed Stage = "NOTIFY_SUPPRESSED"
	StageNotifyFailed     Stage = "NOTIFY_FAILED"
)

// Event captures a single step of a run.
type Event struct {
	// RunID identifies the run using the 16-byte UUID form.
	RunID [16]byte
	// TS is the UTC timestamp recorded by the emitter.
	TS    time.Time
	Stage Stage
	// Site is the lower-cased host of URL, used as a metric label.
	Site  string
	URL   string
	Title string
	// OldPrice and NewPrice are set for price stages.
	OldPrice float64
	NewPrice float64
	// PrevCheckedAt is the prior check time for PRICE_CHANGED.
	PrevCheckedAt time.Time
	Bytes         int64
	Dur           time.Duration
	// Reason is the machine-readable failure reason, Note the human text.
	Reason string
	Note   string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone:
	case StageFetchStart, StageFetchDone, StageItemFailed, StageNewItem, StagePriceChanged,
		StagePriceUnchanged, StageNotified, StageNotifySuppressed, StageNotifyFailed:
		if e.URL == "" {
			return fmt.Errorf("%s requires url", e.Stage)
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID to uuid.UUID.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}

// SiteFromURL extracts a lowercase hostname, or "unknown" for invalid input.
func SiteFromURL(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}
