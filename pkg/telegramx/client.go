package telegramx

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"time"

	"github.com/gotd/td/session"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/tg"
	"github.com/gotd/td/tgerr"

	"github.com/pfultibot/callpipe/pkg/logging"
)

// Config configures a Client.
type Config struct {
	APIID       int
	APIHash     string
	SessionPath string
	SessionB64  string // if set, base64-decoded and written to SessionPath before opening
}

// Client wraps a gotd/td MTProto client and exposes the pipeline's
// narrow Event-based contract.
type Client struct {
	raw *telegram.Client
	log *logging.Logger
}

// NewClient materializes the session file (if SessionB64 is set) and
// constructs the underlying MTProto client with an update dispatcher
// wired to deliver normalized Events to onEvent.
func NewClient(cfg Config, onEvent func(Event)) (*Client, error) {
	if cfg.SessionB64 != "" {
		if err := materializeSession(cfg.SessionPath, cfg.SessionB64); err != nil {
			return nil, fmt.Errorf("materialize session: %w", err)
		}
	}

	dispatcher := tg.NewUpdateDispatcher()
	dispatcher.OnNewChannelMessage(func(_ context.Context, e tg.Entities, u *tg.UpdateNewChannelMessage) error {
		ev, ok := toEvent(e, u.Message)
		if ok {
			onEvent(ev)
		}
		return nil
	})

	raw := telegram.NewClient(cfg.APIID, cfg.APIHash, telegram.Options{
		SessionStorage: &session.FileStorage{Path: cfg.SessionPath},
		UpdateHandler:  dispatcher,
	})

	return &Client{raw: raw, log: logging.GetDefault().Component("telegramx")}, nil
}

func materializeSession(path, b64 string) error {
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return fmt.Errorf("decode TG_SESSION_B64: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

func toEvent(e tg.Entities, raw tg.MessageClass) (Event, bool) {
	msg, ok := raw.(*tg.Message)
	if !ok {
		return Event{}, false
	}

	ev := Event{
		MessageID: int64(msg.ID),
		Text:      msg.Message,
		Date:      time.Unix(int64(msg.Date), 0).UTC(),
	}

	if peer, ok := msg.PeerID.(*tg.PeerChannel); ok {
		ev.ChatID = channelIDToChatID(peer.ChannelID)
		if ch, ok := e.Channels[peer.ChannelID]; ok {
			ev.ChatTitle = ch.Title
		}
	}

	if reply, ok := msg.GetReplyTo(); ok {
		if h, ok := reply.(*tg.MessageReplyHeader); ok {
			if replyID, ok := h.GetReplyToMsgID(); ok {
				id := int64(replyID)
				ev.ReplyToID = &id
			}
		}
	}

	return ev, true
}

// channelIDToChatID maps a bare channel ID to the negative, "-100"
// prefixed chat ID convention used throughout the stream contract.
func channelIDToChatID(channelID int64) int64 {
	return -(1_000_000_000_000 + channelID)
}

// Listen connects, authenticates using the materialized session, and
// blocks delivering Events (via the handler passed to NewClient) until
// ctx is cancelled or a non-retryable error occurs.
func (c *Client) Listen(ctx context.Context) error {
	return c.raw.Run(ctx, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
}

// Alive reports whether the MTProto connection is still responsive by
// issuing a cheap config round trip. Used by the chatstream supervisor's
// periodic health check to decide whether to force a reconnect.
func (c *Client) Alive(ctx context.Context) bool {
	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	_, err := c.raw.API().HelpGetConfig(checkCtx)
	if err != nil {
		c.log.Warn("health check round trip failed", "error", err)
		return false
	}
	return true
}

// AsFloodWait classifies err as a FloodWait if the server reported one,
// extracting the exact wait duration the caller must honor.
func AsFloodWait(err error) (*FloodWait, bool) {
	if fw, ok := tgerr.AsFloodWait(err); ok {
		return &FloodWait{Wait: fw}, true
	}
	return nil, false
}

// AsAuthError classifies err as a non-retryable authentication failure.
func AsAuthError(err error) (*AuthError, bool) {
	if tgerr.Is(err, "AUTH_KEY_UNREGISTERED") || tgerr.Is(err, "AUTH_KEY_INVALID") || tgerr.Is(err, "SESSION_REVOKED") {
		return &AuthError{Reason: err.Error()}, true
	}
	return nil, false
}
