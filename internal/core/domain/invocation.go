package domain

import "time"

// InvocationRequest is a chaincode call submitted for a qualifying event.
type InvocationRequest struct {
	Endpoints  []string `json:"peers"`
	ContractID string   `json:"contract_id"`
	Function   string   `json:"function"`
	Method     string   `json:"method"`
	Args       []string `json:"args"`
	Identity   string   `json:"identity"`
	Org        string   `json:"org"`
}

type InvocationStatus string

const (
	InvocationStatusSucceeded InvocationStatus = "succeeded"
	InvocationStatusFailed    InvocationStatus = "failed"
)

// Invocation is the audit record of one completed invocation attempt.
type Invocation struct {
	ID            string            `json:"id"                db:"id"`
	BlockNumber   uint64            `json:"block_number"      db:"block_number"`
	SourceTxID    string            `json:"source_tx_id"      db:"source_tx_id"`
	EventName     string            `json:"event_name"        db:"event_name"`
	Request       InvocationRequest `json:"request"           db:"-"`
	TransactionID string            `json:"transaction_id"    db:"transaction_id"`
	Status        InvocationStatus  `json:"status"            db:"status"`
	Error         string            `json:"error,omitempty"   db:"error_msg"`
	StartedAt     time.Time         `json:"started_at"        db:"started_at"`
	CompletedAt   time.Time         `json:"completed_at"      db:"completed_at"`
}

// Duration returns how long the invocation took.
func (i *Invocation) Duration() time.Duration {
	return i.CompletedAt.Sub(i.StartedAt)
}
