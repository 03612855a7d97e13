package blockjson

import (
	"errors"
	"os"
	"testing"
)

func readFixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile("testdata/" + name)
	if err != nil {
		t.Fatalf("failed to read fixture: %v", err)
	}
	return data
}

func TestDecode_EndorserTransaction(t *testing.T) {
	block, err := Decode(readFixture(t, "block_deposited.json"))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	if block.Number != 5 {
		t.Errorf("expected block 5, got %d", block.Number)
	}
	if len(block.Envelopes) != 1 {
		t.Fatalf("expected 1 envelope, got %d", len(block.Envelopes))
	}

	env := block.Envelopes[0]
	if env.TxID != "4f3e2d1c" || env.ChannelID != "bank-transport" {
		t.Errorf("unexpected channel header: %+v", env)
	}
	if !env.HasActions() || len(env.Actions) != 1 {
		t.Fatalf("expected 1 action, got %+v", env.Actions)
	}

	ext := env.Actions[0].Payload.Action.ProposalResponsePayload.Extension
	if ext == nil || ext.Events == nil {
		t.Fatal("expected event node on the fixed path")
	}
	if ext.Events.Name != "Deposited" || ext.Events.ChaincodeID != "travel" {
		t.Errorf("unexpected event: %+v", ext.Events)
	}
	if len(ext.Events.Payload) == 0 {
		t.Error("expected raw payload to be kept")
	}
}

func TestDecode_ConfigTransactionHasNoActions(t *testing.T) {
	block, err := Decode(readFixture(t, "block_config.json"))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if block.Number != 0 || len(block.Envelopes) != 1 {
		t.Fatalf("unexpected block: %+v", block)
	}
	if block.Envelopes[0].HasActions() {
		t.Error("expected config envelope without actions")
	}
}

func TestDecode_PresenceIsPreserved(t *testing.T) {
	tests := []struct {
		name       string
		payload    string
		hasActions bool
		eventNil   bool
		eventName  string
	}{
		{
			name:    "absent actions",
			payload: `{"header":{"number":"7"},"data":{"data":[{}]}}`,
		},
		{
			name:    "null actions",
			payload: `{"header":{"number":"7"},"data":{"data":[{"payload":{"data":{"actions":null}}}]}}`,
		},
		{
			name:       "empty events",
			payload:    `{"header":{"number":"6"},"data":{"data":[{"payload":{"data":{"actions":[{"payload":{"action":{"proposal_response_payload":{"extension":{"events":{}}}}}}]}}}]}}`,
			hasActions: true,
		},
		{
			name:       "missing events node",
			payload:    `{"header":{"number":"6"},"data":{"data":[{"payload":{"data":{"actions":[{"payload":{"action":{"proposal_response_payload":{"extension":{}}}}}]}}}]}}`,
			hasActions: true,
			eventNil:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			block, err := Decode([]byte(tt.payload))
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}
			env := block.Envelopes[0]
			if env.HasActions() != tt.hasActions {
				t.Fatalf("expected HasActions=%v, got %v", tt.hasActions, env.HasActions())
			}
			if !tt.hasActions {
				return
			}
			events := env.Actions[0].Payload.Action.ProposalResponsePayload.Extension.Events
			if (events == nil) != tt.eventNil {
				t.Fatalf("expected events nil=%v, got %+v", tt.eventNil, events)
			}
			if events != nil && events.Name != tt.eventName {
				t.Errorf("expected name %q, got %q", tt.eventName, events.Name)
			}
		})
	}
}

func TestDecode_Invalid(t *testing.T) {
	tests := []string{
		`not json`,
		`{"data":{"data":[]}}`,
		`{"header":{"number":"abc"}}`,
		`{"header":{"number":-1}}`,
	}

	for _, payload := range tests {
		if _, err := Decode([]byte(payload)); !errors.Is(err, ErrInvalidBlock) {
			t.Errorf("Decode(%s): expected ErrInvalidBlock, got %v", payload, err)
		}
	}
}
