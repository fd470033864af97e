package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/custodia-labs/descgen-core/internal/core/domain"
	"github.com/custodia-labs/descgen-core/internal/core/ports/driven"
	"github.com/custodia-labs/descgen-core/internal/core/ports/driving"
)

// Ensure messageRouter implements MessageRouter
var _ driving.MessageRouter = (*messageRouter)(nil)

// messageRouter dispatches context messages to the settings service
type messageRouter struct {
	settings driving.SettingsService
	options  driven.OptionsOpener
	logger   *slog.Logger
}

// NewMessageRouter creates a new MessageRouter.
// options may be nil, in which case OPEN_OPTIONS only acknowledges.
func NewMessageRouter(settings driving.SettingsService, options driven.OptionsOpener, logger *slog.Logger) driving.MessageRouter {
	if logger == nil {
		logger = slog.Default()
	}
	return &messageRouter{
		settings: settings,
		options:  options,
		logger:   logger.With("component", "router"),
	}
}

// Handle initializes settings if needed and dispatches the message
func (r *messageRouter) Handle(ctx context.Context, msg domain.Message) domain.Response {
	r.logger.Debug("message received", "type", msg.Type)

	if err := r.settings.Initialize(ctx); err != nil {
		r.logger.Error("failed to initialize settings", "type", msg.Type, "error", err)
		return domain.ErrorResponse(err)
	}

	switch msg.Type {
	case domain.MessageOpenOptions:
		r.openOptions(ctx)
		return domain.SuccessResponse()

	case domain.MessageGetAPIKey:
		return domain.APIKeyResponse(r.settings.GetCurrentAPIKey())

	case domain.MessageGetSettings:
		settings := r.settings.GetAll()
		return domain.SettingsResponse(&settings)

	case domain.MessageSaveSettings:
		if err := r.settings.SaveToStorage(ctx, msg.Settings); err != nil {
			return domain.FailureResponse(err)
		}
		return domain.SuccessResponse()

	case domain.MessageRotateAPIKey:
		key, err := r.settings.RotateToNextAPIKey(ctx)
		if err != nil {
			return domain.FailureResponse(err)
		}
		return domain.RotatedResponse(key)

	case domain.MessageResetSettings:
		if err := r.settings.ResetToDefaults(ctx); err != nil {
			return domain.FailureResponse(err)
		}
		return domain.SuccessResponse()

	default:
		r.logger.Warn("unknown message type", "type", msg.Type)
		return domain.ErrorResponse(domain.ErrUnknownMessageType)
	}
}

// OnInstalled opens the options page when no API key is configured yet
func (r *messageRouter) OnInstalled(ctx context.Context) error {
	if err := r.settings.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize settings: %w", err)
	}

	if len(r.settings.GetAPIKeys()) == 0 {
		r.logger.Info("no api keys configured, opening options page")
		r.openOptions(ctx)
	}
	return nil
}

func (r *messageRouter) openOptions(ctx context.Context) {
	if r.options == nil {
		return
	}
	if err := r.options.Open(ctx); err != nil {
		r.logger.Warn("failed to open options page", "error", err)
	}
}
