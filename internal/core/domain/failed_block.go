package domain

import "time"

// FailedBlock records a block whose processing pass was abandoned.
type FailedBlock struct {
	ID          string      `json:"id"`
	Channel     string      `json:"channel"`
	BlockNumber uint64      `json:"block_number"`
	FailureType FailureType `json:"failure_type"`
	Error       string      `json:"error_msg"`
	CreatedAt   time.Time   `json:"created_at"`
}

type FailureType string

const (
	FailureTypeParsing FailureType = "parsing"
	FailureTypePanic   FailureType = "panic"
)
