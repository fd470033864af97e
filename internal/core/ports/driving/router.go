package driving

import (
	"context"

	"github.com/custodia-labs/descgen-core/internal/core/domain"
)

// MessageRouter answers typed requests from UI and content contexts
type MessageRouter interface {
	// Handle initializes settings if needed and dispatches the message
	Handle(ctx context.Context, msg domain.Message) domain.Response

	// OnInstalled runs first-start checks such as opening the options page
	// when no API key is configured
	OnInstalled(ctx context.Context) error
}
