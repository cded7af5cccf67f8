// Package link resolves a parsed message to the discovery call it
// continues, and fills in any fields the update message omitted by
// inheriting them from that parent.
package link

import (
	"context"
	"strings"
	"time"

	"github.com/pfultibot/callpipe/internal/model"
)

// LookbackWindow bounds how far back a contract-address or token-name
// match may reach; matches outside this window are not considered.
const LookbackWindow = 24 * time.Hour

// Lookup resolves candidate parent calls. Implemented by the primary
// store; kept separate so this package carries no SQL dependency.
type Lookup interface {
	FindByReply(ctx context.Context, channelID int64, replyToMessageID int64) (*model.CryptoCall, error)
	FindByContract(ctx context.Context, channelID int64, contractAddress string, since time.Time) (*model.CryptoCall, error)
	FindByTokenName(ctx context.Context, channelID int64, tokenName string, since time.Time) (*model.CryptoCall, error)
}

// Result carries the resolved parent (if any) and the fields that
// should be inherited onto the child when those fields are null.
type Result struct {
	ParentID        *int64
	TokenName       *string
	ContractAddress *string
}

// Link resolves parsed against lookup, honoring the fixed priority:
// reply reference, then contract address, then case-insensitive token
// name. The contract-address and token-name matches are bounded by
// LookbackWindow; the reply match is not. Discovery messages never link.
// Market-cap proximity is never used as a matching signal.
func Link(ctx context.Context, parsed *model.ParsedMessage, raw *model.RawMessage, lookup Lookup) (Result, error) {
	if parsed.MessageType == model.MessageTypeDiscovery {
		return Result{}, nil
	}

	since := raw.MessageDate.Add(-LookbackWindow)

	if raw.ReplyToID != nil {
		parent, err := lookup.FindByReply(ctx, raw.ChannelID, *raw.ReplyToID)
		if err != nil {
			return Result{}, err
		}
		if parent != nil {
			return resultFromParent(parent, parsed), nil
		}
	}

	if parsed.ContractAddress != nil && *parsed.ContractAddress != "" {
		parent, err := lookup.FindByContract(ctx, raw.ChannelID, *parsed.ContractAddress, since)
		if err != nil {
			return Result{}, err
		}
		if parent != nil {
			return resultFromParent(parent, parsed), nil
		}
	}

	if parsed.TokenName != nil && *parsed.TokenName != "" {
		name := strings.ToUpper(strings.TrimSpace(*parsed.TokenName))
		parent, err := lookup.FindByTokenName(ctx, raw.ChannelID, name, since)
		if err != nil {
			return Result{}, err
		}
		if parent != nil {
			return resultFromParent(parent, parsed), nil
		}
	}

	return Result{}, nil
}

// resultFromParent builds the link result, inheriting only fields the
// child left null — an explicit child value is never overwritten.
func resultFromParent(parent *model.CryptoCall, parsed *model.ParsedMessage) Result {
	res := Result{ParentID: &parent.ID}

	if parsed.TokenName == nil && parent.TokenName != nil {
		name := *parent.TokenName
		res.TokenName = &name
	}
	if parsed.ContractAddress == nil && parent.ContractAddress != nil {
		addr := *parent.ContractAddress
		res.ContractAddress = &addr
	}

	return res
}
