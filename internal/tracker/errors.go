package tracker

import (
	"errors"
	"fmt"
)

// Kind is the coarse error category. Per-item kinds (transport, extraction,
// value format) never abort a run; persistence and configuration are fatal.
type Kind int

// Error kinds.
const (
	KindUnknown Kind = iota
	KindTransport
	KindExtraction
	KindValueFormat
	KindPersistence
	KindConfiguration
	KindNotification
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindExtraction:
		return "extraction"
	case KindValueFormat:
		return "value_format"
	case KindPersistence:
		return "persistence"
	case KindConfiguration:
		return "configuration"
	case KindNotification:
		return "notification"
	default:
		return "unknown"
	}
}

// Fatal reports whether errors of this kind abort the whole run.
func (k Kind) Fatal() bool {
	return k == KindPersistence || k == KindConfiguration
}

// Reason refines a Kind.
type Reason string

// Failure reasons.
const (
	ReasonFetchFailed               Reason = "fetch_failed"
	ReasonSelectorInvalid           Reason = "selector_invalid"
	ReasonElementNotFound           Reason = "element_not_found"
	ReasonAttributeNotFound         Reason = "attribute_not_found"
	ReasonPriceNotNumeric           Reason = "price_not_numeric"
	ReasonStoreUnreadable           Reason = "store_unreadable"
	ReasonStoreUnwritable           Reason = "store_unwritable"
	ReasonConfigInvalid             Reason = "config_invalid"
	ReasonNotificationConfigMissing Reason = "notification_config_missing"
	ReasonDeliveryFailed            Reason = "delivery_failed"
)

var reasonKinds = map[Reason]Kind{
	ReasonFetchFailed:               KindTransport,
	ReasonSelectorInvalid:           KindExtraction,
	ReasonElementNotFound:           KindExtraction,
	ReasonAttributeNotFound:         KindExtraction,
	ReasonPriceNotNumeric:           KindValueFormat,
	ReasonStoreUnreadable:           KindPersistence,
	ReasonStoreUnwritable:           KindPersistence,
	ReasonConfigInvalid:             KindConfiguration,
	ReasonNotificationConfigMissing: KindNotification,
	ReasonDeliveryFailed:            KindNotification,
}

// Error is a structured pipeline failure.
type Error struct {
	Kind     Kind
	Reason   Reason
	Identity string
	Err      error
}

// NewError builds an Error whose Kind is derived from the reason.
func NewError(reason Reason, identity string, cause error) *Error {
	return &Error{
		Kind:     reasonKinds[reason],
		Reason:   reason,
		Identity: identity,
		Err:      cause,
	}
}

func (e *Error) Error() string {
	msg := string(e.Reason)
	if e.Identity != "" {
		msg = fmt.Sprintf("%s for %s", msg, e.Identity)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by Reason, so errors.Is(err, &Error{Reason: r}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Reason != "" && t.Reason == e.Reason
}

// KindOf returns the Kind carried by err, or KindUnknown.
func KindOf(err error) Kind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return KindUnknown
}

// ReasonOf returns the Reason carried by err, or "".
func ReasonOf(err error) Reason {
	var te *Error
	if errors.As(err, &te) {
		return te.Reason
	}
	return ""
}

// AsError converts err into an *Error, defaulting to the given reason when err
// is not already structured.
func AsError(err error, reason Reason, identity string) *Error {
	if err == nil {
		return nil
	}
	var te *Error
	if errors.As(err, &te) {
		if te.Identity == "" {
			cp := *te
			cp.Identity = identity
			return &cp
		}
		return te
	}
	return NewError(reason, identity, err)
}
