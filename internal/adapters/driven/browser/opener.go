package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pkg/browser"

	"github.com/custodia-labs/descgen-core/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.OptionsOpener = (*Opener)(nil)

// ErrNoOptionsURL is returned when no options page is configured
var ErrNoOptionsURL = errors.New("options page URL not configured")

// Opener opens the options page in the host's default browser
type Opener struct {
	url    string
	open   func(url string) error
	logger *slog.Logger
}

// NewOpener creates an Opener for the given options page URL
func NewOpener(url string, logger *slog.Logger) *Opener {
	if logger == nil {
		logger = slog.Default()
	}
	return &Opener{
		url:    url,
		open:   browser.OpenURL,
		logger: logger.With("component", "options_opener"),
	}
}

// Open launches the browser. The context only bounds the wait for the
// launcher to return.
func (o *Opener) Open(ctx context.Context) error {
	if o.url == "" {
		return ErrNoOptionsURL
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- o.open(o.url)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("open options page: %w", err)
		}
		o.logger.Info("opened options page", "url", o.url)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
