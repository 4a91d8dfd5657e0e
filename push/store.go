package push

import (
	"context"
	"time"
)

//go:generate mockgen -source=store.go -destination=pushmock/mocks.go -package=pushmock

// TokenStore resolves and prunes device tokens.
type TokenStore interface {
	// TokensForUsers returns every token registered for any of the users.
	TokensForUsers(ctx context.Context, userIDs []string) ([]DeviceToken, error)

	// DeleteTokens removes the given tokens. Deleting an unknown token is a
	// no-op.
	DeleteTokens(ctx context.Context, tokens []string) error
}

// Sender delivers one notification to one device.
type Sender interface {
	// Send never returns an error: transport failures come back as a
	// Result with Status 0.
	Send(ctx context.Context, authToken string, deviceToken string, n Notification) Result
}

// TokenSigner produces the bearer token for a batch of sends.
type TokenSigner interface {
	Sign(now time.Time) (string, error)
}

// ReportPublisher receives the report of every completed dispatch.
type ReportPublisher interface {
	PublishReport(ctx context.Context, report Report) error
}
