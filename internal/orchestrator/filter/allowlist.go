package filter

import "github.com/vietddude/orchestrator/internal/core/domain"

// NameAllowList qualifies named events whose name is in the list.
// Names are matched exactly. The set is fixed at construction.
type NameAllowList struct {
	names map[string]struct{}
}

// NewNameAllowList creates an allow-list filter.
func NewNameAllowList(names ...string) *NameAllowList {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return &NameAllowList{names: set}
}

// Qualifies checks presence first, then membership.
func (f *NameAllowList) Qualifies(event domain.EventRecord) bool {
	if !event.Named() {
		return false
	}
	_, ok := f.names[event.Name]
	return ok
}
