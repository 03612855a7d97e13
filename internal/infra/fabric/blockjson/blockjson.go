// Package blockjson decodes Fabric blocks in the JSON shape produced by the
// peer event listener (header.number, data.data[].payload...).
package blockjson

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/vietddude/orchestrator/internal/core/domain"
)

// ErrInvalidBlock is returned for payloads that are not a block at all.
var ErrInvalidBlock = errors.New("invalid block")

type wireBlock struct {
	Header *struct {
		Number blockNumber `json:"number"`
	} `json:"header"`
	Data *struct {
		Data []wireEnvelope `json:"data"`
	} `json:"data"`
}

type wireEnvelope struct {
	Payload *struct {
		Header *struct {
			ChannelHeader *struct {
				TxID      string `json:"tx_id"`
				ChannelID string `json:"channel_id"`
			} `json:"channel_header"`
		} `json:"header"`
		Data *struct {
			Actions *[]domain.Action `json:"actions"`
		} `json:"data"`
	} `json:"payload"`
}

// blockNumber accepts the number as a JSON string or a JSON number.
type blockNumber uint64

func (n *blockNumber) UnmarshalJSON(b []byte) error {
	s := string(bytes.Trim(b, `"`))
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fmt.Errorf("block number %s: %w", b, err)
	}
	*n = blockNumber(v)
	return nil
}

// Decode parses one block. Envelopes without payload.data.actions (or with
// "actions": null) decode with nil Actions; actions are kept as-is so the
// parser can tell absent event nodes apart from empty ones.
func Decode(data []byte) (*domain.Block, error) {
	var wb wireBlock
	if err := json.Unmarshal(data, &wb); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBlock, err)
	}
	if wb.Header == nil {
		return nil, fmt.Errorf("%w: missing header", ErrInvalidBlock)
	}

	block := &domain.Block{Number: uint64(wb.Header.Number)}
	if wb.Data == nil {
		return block, nil
	}

	block.Envelopes = make([]domain.Envelope, 0, len(wb.Data.Data))
	for _, we := range wb.Data.Data {
		var env domain.Envelope
		if p := we.Payload; p != nil {
			if p.Header != nil && p.Header.ChannelHeader != nil {
				env.TxID = p.Header.ChannelHeader.TxID
				env.ChannelID = p.Header.ChannelHeader.ChannelID
			}
			if p.Data != nil && p.Data.Actions != nil {
				env.Actions = *p.Data.Actions
			}
		}
		block.Envelopes = append(block.Envelopes, env)
	}
	return block, nil
}
