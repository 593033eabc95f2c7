// Package storage holds the on-disk document shared by the blob-style state
// stores, plus helpers every backend uses to report failures.
package storage

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/JakeFAU/pricewatch/internal/tracker"
)

// Record is one persisted product.
type Record struct {
	URL           string  `yaml:"url"`
	Title         string  `yaml:"title,omitempty"`
	Price         float64 `yaml:"price"`
	LastCheckTime string  `yaml:"last_check_time"`
}

// Document is the serialized form of a tracker.State.
type Document struct {
	Products map[string]Record `yaml:"products"`
}

// Encode renders state as YAML. Timestamps use RFC 3339 with nanoseconds.
func Encode(state *tracker.State) ([]byte, error) {
	doc := Document{Products: make(map[string]Record, state.Len())}
	for _, e := range state.Entries() {
		doc.Products[tracker.Key(e.URL)] = FromEntry(e)
	}
	out, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode state: %w", err)
	}
	return out, nil
}

// Decode parses a YAML document. Empty input yields an empty state.
func Decode(data []byte) (*tracker.State, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	state := tracker.NewState()
	for key, rec := range doc.Products {
		if rec.URL == "" {
			rec.URL = key
		}
		entry, err := rec.Entry()
		if err != nil {
			return nil, fmt.Errorf("decode %q: %w", key, err)
		}
		state.Upsert(entry)
	}
	return state, nil
}

// FromEntry converts an Entry to its persisted form.
func FromEntry(e tracker.Entry) Record {
	return Record{
		URL:           e.URL,
		Title:         e.Title,
		Price:         e.Price,
		LastCheckTime: e.CheckedAt.UTC().Format(time.RFC3339Nano),
	}
}

// Entry converts a Record back to an Entry.
func (r Record) Entry() (tracker.Entry, error) {
	at, err := time.Parse(time.RFC3339Nano, r.LastCheckTime)
	if err != nil {
		return tracker.Entry{}, fmt.Errorf("parse last_check_time: %w", err)
	}
	return tracker.Entry{URL: r.URL, Title: r.Title, Price: r.Price, CheckedAt: at.UTC()}, nil
}

// Unreadable wraps a load failure as a persistence error.
func Unreadable(location string, err error) error {
	return tracker.NewError(tracker.ReasonStoreUnreadable, location, err)
}

// Unwritable wraps a save failure as a persistence error.
func Unwritable(location string, err error) error {
	return tracker.NewError(tracker.ReasonStoreUnwritable, location, err)
}
