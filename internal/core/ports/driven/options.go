package driven

import "context"

// OptionsOpener shows the extension's options page to the user
type OptionsOpener interface {
	Open(ctx context.Context) error
}
