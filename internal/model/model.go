// Package model defines the shared record types exchanged between the
// ingest pipeline's parser, linker, sinks, and stores.
package model

import "time"

// MessageType classifies a normalized call record.
type MessageType string

const (
	MessageTypeDiscovery MessageType = "discovery"
	MessageTypeUpdate    MessageType = "update"
	MessageTypeBonding   MessageType = "bonding"
	MessageTypeOther     MessageType = "other"
)

// RawMessage is the durable, unmodified capture of a single inbound
// chat event, persisted before any classification or parsing occurs.
type RawMessage struct {
	ID                   int64
	MessageID            int64
	ChannelID            int64
	ChannelName          string
	MessageText          string
	MessageDate          time.Time
	ReplyToID            *int64
	IsClassified         bool
	ClassificationResult string
	CreatedAt            time.Time
}

// CryptoCall is the normalized, enriched record derived from a RawMessage
// that the parser recognized as a call.
type CryptoCall struct {
	ID                  int64
	MessageID           int64
	ChannelID           int64
	ChannelName         string
	MessageType         MessageType
	TokenName           *string
	ContractAddress     *string
	EntryCap            *float64
	PeakCap             *float64
	XGain               *float64
	VIPX                *float64
	TimeToPeak          *string
	LinkedCryptoCallID  *int64
	ClassificationResult string
	Timestamp           time.Time
	CreatedAt           time.Time
}

// ParsedMessage is the parser's output: the fields it extracted from a
// message's text, prior to linking and inheritance.
type ParsedMessage struct {
	MessageType     MessageType
	TokenName       *string
	ContractAddress *string
	EntryCap        *float64
	PeakCap         *float64
	XGain           *float64
	VIPX            *float64
	TimeToPeak      *string
}
