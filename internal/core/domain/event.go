package domain

import "encoding/json"

// EventRecord is the chaincode event optionally emitted by an action.
// An empty Name means no application event was emitted.
type EventRecord struct {
	ChaincodeID string          `json:"chaincode_id,omitempty"`
	TxID        string          `json:"tx_id,omitempty"`
	Name        string          `json:"event_name,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

// Named reports whether the record carries an event name.
func (e EventRecord) Named() bool {
	return e.Name != ""
}
