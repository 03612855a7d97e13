// Package filter decides which event records trigger an invocation.
package filter

import "github.com/vietddude/orchestrator/internal/core/domain"

// Filter defines the interface for event qualification
type Filter interface {
	// Qualifies reports whether the record should trigger an invocation
	Qualifies(event domain.EventRecord) bool
}

// NamePresent qualifies every event that carries a non-empty name.
type NamePresent struct{}

func (NamePresent) Qualifies(event domain.EventRecord) bool {
	return event.Named()
}

// New returns NamePresent for an empty list and an allow-list otherwise.
func New(eventNames []string) Filter {
	if len(eventNames) == 0 {
		return NamePresent{}
	}
	return NewNameAllowList(eventNames...)
}
