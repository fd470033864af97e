package driving

import (
	"context"

	"github.com/custodia-labs/descgen-core/internal/core/domain"
)

// Broadcaster pushes a snapshot to every other execution context.
// Delivery is best effort; failures never reach the caller.
type Broadcaster interface {
	Broadcast(ctx context.Context, settings domain.Settings)
}
