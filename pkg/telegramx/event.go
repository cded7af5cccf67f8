// Package telegramx adapts github.com/gotd/td's MTProto client into the
// plain event contract the ingest pipeline's stream supervisor expects,
// so the rest of the pipeline never imports gotd types directly.
package telegramx

import "time"

// Event is one inbound chat message, normalized away from gotd's wire
// types: message_id, chat_id (negative for channels), the chat's
// title, the message text, its timestamp, and an optional reply
// reference.
type Event struct {
	MessageID   int64
	ChatID      int64
	ChatTitle   string
	Text        string
	Date        time.Time
	ReplyToID   *int64
}

// FloodWait is built by AsFloodWait from an error in which the server
// asked the caller to wait a specific duration before retrying. Callers must
// honor Wait verbatim rather than applying their own backoff.
type FloodWait struct {
	Wait time.Duration
}

func (e *FloodWait) Error() string {
	return "flood wait: retry after " + e.Wait.String()
}

// AuthError indicates a non-retryable authentication failure (expired
// or revoked session, wrong credentials) that requires operator
// intervention rather than a reconnect.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string { return "auth error: " + e.Reason }
