package domain

// Block represents a committed ledger block as delivered by the peer.
// Number is assigned by the ledger; delivery may repeat or reorder it.
type Block struct {
	Number    uint64
	Envelopes []Envelope
}

// Envelope represents a transaction inside a block.
type Envelope struct {
	TxID      string
	ChannelID string

	// Actions is nil when the envelope carried no actions field at all
	// (config transactions, for example).
	Actions []Action
}

// HasActions reports whether the envelope carried an actions field.
func (e Envelope) HasActions() bool {
	return e.Actions != nil
}

// Action is one chaincode execution inside an envelope. Its event record is
// reached through a fixed path of nested nodes; any nil node on that path
// means the action is malformed.
type Action struct {
	Payload *ActionPayload `json:"payload"`
}

type ActionPayload struct {
	Action *EndorsedAction `json:"action"`
}

type EndorsedAction struct {
	ProposalResponsePayload *ProposalResponsePayload `json:"proposal_response_payload"`
}

type ProposalResponsePayload struct {
	Extension *ChaincodeAction `json:"extension"`
}

type ChaincodeAction struct {
	Events *EventRecord `json:"events"`
}

// NewEventAction builds an action whose fixed path ends at event.
func NewEventAction(event EventRecord) Action {
	return Action{
		Payload: &ActionPayload{
			Action: &EndorsedAction{
				ProposalResponsePayload: &ProposalResponsePayload{
					Extension: &ChaincodeAction{Events: &event},
				},
			},
		},
	}
}
