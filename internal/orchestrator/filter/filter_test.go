package filter

import (
	"encoding/json"
	"testing"

	"github.com/vietddude/orchestrator/internal/core/domain"
)

func TestNamePresent(t *testing.T) {
	f := NamePresent{}

	if f.Qualifies(domain.EventRecord{}) {
		t.Error("Expected record without name not to qualify")
	}
	if f.Qualifies(domain.EventRecord{ChaincodeID: "payment", Payload: json.RawMessage(`{"a":1}`)}) {
		t.Error("Expected payload without name not to qualify")
	}
	if !f.Qualifies(domain.EventRecord{Name: "Deposited"}) {
		t.Error("Expected named record to qualify")
	}
	if !f.Qualifies(domain.EventRecord{Name: "anything-at-all"}) {
		t.Error("Expected any name to qualify")
	}
}

func TestNameAllowList(t *testing.T) {
	f := NewNameAllowList("Deposited")

	if !f.Qualifies(domain.EventRecord{Name: "Deposited"}) {
		t.Error("Expected Deposited to qualify")
	}
	if f.Qualifies(domain.EventRecord{Name: "deposited"}) {
		t.Error("Expected names to be case-sensitive")
	}
	if f.Qualifies(domain.EventRecord{Name: "Withdrawn"}) {
		t.Error("Expected Withdrawn not to qualify")
	}
	if f.Qualifies(domain.EventRecord{}) {
		t.Error("Expected unnamed record not to qualify")
	}
}

func TestNameAllowList_CopiesInput(t *testing.T) {
	names := []string{"Deposited", "Withdrawn"}
	f := NewNameAllowList(names...)
	names[0] = "Transferred"

	if !f.Qualifies(domain.EventRecord{Name: "Deposited"}) {
		t.Error("Expected list to be unaffected by later changes to the input")
	}
	if f.Qualifies(domain.EventRecord{Name: "Transferred"}) {
		t.Error("Expected Transferred not to qualify")
	}
	if f.Qualifies(domain.EventRecord{Name: ""}) {
		t.Error("Expected empty name not to qualify")
	}
}

func TestNew(t *testing.T) {
	if _, ok := New(nil).(NamePresent); !ok {
		t.Error("Expected presence-only filter for empty list")
	}
	if _, ok := New([]string{"Deposited"}).(*NameAllowList); !ok {
		t.Error("Expected allow-list filter for non-empty list")
	}
}
