package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/custodia-labs/descgen-core/internal/core/domain"
)

const maxBodyBytes = 1 << 20

// ErrorResponse represents an API error response
// @Description API error response
type ErrorResponse struct {
	Error string `json:"error" example:"invalid request body"`
}

// StatusResponse represents a simple status response
// @Description Simple status response
type StatusResponse struct {
	Status string `json:"status" example:"ok"`
}

// VersionResponse represents the API version response
// @Description API version response
type VersionResponse struct {
	Version string `json:"version" example:"1.0.0"`
}

// APIKeyResponse carries the active API key
// @Description Active API key; empty when none is configured
type APIKeyResponse struct {
	APIKey string `json:"apiKey" example:"AIza..."`
}

// Health endpoints

// handleHealth godoc
// @Summary      Health check
// @Description  Returns the health status of the API
// @Tags         Health
// @Produce      json
// @Success      200  {object}  StatusResponse
// @Router       /health [get]
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReady godoc
// @Summary      Readiness check
// @Description  Returns the readiness status of the API (checks the settings store)
// @Tags         Health
// @Produce      json
// @Success      200  {object}  StatusResponse
// @Failure      503  {object}  ErrorResponse  "Settings store unreachable"
// @Router       /ready [get]
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.store != nil {
		if err := s.store.Ping(r.Context()); err != nil {
			s.logger.Warn("readiness check failed", "error", err)
			writeError(w, http.StatusServiceUnavailable, "settings store unreachable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// handleVersion godoc
// @Summary      Get API version
// @Description  Returns the current API version
// @Tags         Health
// @Produce      json
// @Success      200  {object}  VersionResponse
// @Router       /version [get]
func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
}

// Message endpoint

// handleMessage godoc
// @Summary      Send a context message
// @Description  Routes a typed message (GET_API_KEY, GET_SETTINGS, SAVE_SETTINGS, ROTATE_API_KEY, RESET_SETTINGS, OPEN_OPTIONS). The body mirrors what the message bus would return; failures are reported in the body, not the status.
// @Tags         Messages
// @Accept       json
// @Produce      json
// @Param        request  body      domain.Message  true  "Message"
// @Success      200      {object}  domain.Response
// @Failure      400      {object}  ErrorResponse  "Invalid request body"
// @Security     BearerAuth
// @Router       /messages [post]
func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var msg domain.Message
	if err := decodeBody(r, &msg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp := s.messageRouter.Handle(r.Context(), msg)
	writeJSON(w, http.StatusOK, resp.Body())
}

// Settings endpoints

// handleGetSettings godoc
// @Summary      Get settings
// @Description  Returns the full settings snapshot
// @Tags         Settings
// @Produce      json
// @Success      200  {object}  domain.Settings
// @Failure      503  {object}  ErrorResponse  "Settings not initialized"
// @Security     BearerAuth
// @Router       /settings [get]
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	if !s.initialize(w, r) {
		return
	}
	writeJSON(w, http.StatusOK, s.settingsService.GetAll())
}

// handleUpdateSettings godoc
// @Summary      Update settings
// @Description  Merges the given fields into the settings and persists them
// @Tags         Settings
// @Accept       json
// @Produce      json
// @Param        request  body      domain.SettingsPatch  true  "Fields to change"
// @Success      200      {object}  domain.Settings
// @Failure      400      {object}  ErrorResponse  "Invalid request body"
// @Failure      500      {object}  ErrorResponse  "Failed to save settings"
// @Security     BearerAuth
// @Router       /settings [patch]
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var patch domain.SettingsPatch
	if err := decodeBody(r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if !s.initialize(w, r) {
		return
	}

	if err := s.settingsService.SaveToStorage(r.Context(), &patch); err != nil {
		s.writeSettingsError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, s.settingsService.GetAll())
}

// handleSetSetting godoc
// @Summary      Set one setting
// @Description  Replaces a single field by its persisted name with the JSON body
// @Tags         Settings
// @Accept       json
// @Produce      json
// @Param        key      path      string  true  "Setting name (apiKeys, currentApiKeyIndex, apiEndpoint)"
// @Success      200      {object}  domain.Settings
// @Failure      400      {object}  ErrorResponse  "Invalid value"
// @Failure      404      {object}  ErrorResponse  "Unknown setting"
// @Security     BearerAuth
// @Router       /settings/{key} [put]
func (s *Server) handleSetSetting(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil || !json.Valid(body) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if !s.initialize(w, r) {
		return
	}

	if err := s.settingsService.Set(r.Context(), key, json.RawMessage(body)); err != nil {
		s.writeSettingsError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, s.settingsService.GetAll())
}

// handleRotateAPIKey godoc
// @Summary      Rotate API key
// @Description  Advances to the next configured API key, wrapping at the end
// @Tags         Settings
// @Produce      json
// @Success      200  {object}  APIKeyResponse
// @Failure      409  {object}  ErrorResponse  "No API keys configured"
// @Failure      500  {object}  ErrorResponse  "Failed to save settings"
// @Security     BearerAuth
// @Router       /settings/rotate [post]
func (s *Server) handleRotateAPIKey(w http.ResponseWriter, r *http.Request) {
	if !s.initialize(w, r) {
		return
	}

	key, err := s.settingsService.RotateToNextAPIKey(r.Context())
	if err != nil {
		s.writeSettingsError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, APIKeyResponse{APIKey: key})
}

// handleResetSettings godoc
// @Summary      Reset settings
// @Description  Restores default settings and persists them
// @Tags         Settings
// @Produce      json
// @Success      200  {object}  domain.Settings
// @Failure      500  {object}  ErrorResponse  "Failed to save settings"
// @Security     BearerAuth
// @Router       /settings/reset [post]
func (s *Server) handleResetSettings(w http.ResponseWriter, r *http.Request) {
	if !s.initialize(w, r) {
		return
	}

	if err := s.settingsService.ResetToDefaults(r.Context()); err != nil {
		s.writeSettingsError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, s.settingsService.GetAll())
}

// handleGetAPIKey godoc
// @Summary      Get current API key
// @Description  Returns the active API key, or an empty string when none is configured
// @Tags         Settings
// @Produce      json
// @Success      200  {object}  APIKeyResponse
// @Security     BearerAuth
// @Router       /settings/api-key [get]
func (s *Server) handleGetAPIKey(w http.ResponseWriter, r *http.Request) {
	if !s.initialize(w, r) {
		return
	}
	writeJSON(w, http.StatusOK, APIKeyResponse{APIKey: s.settingsService.GetCurrentAPIKey()})
}

// Context endpoints

// handleListContexts godoc
// @Summary      List connected contexts
// @Description  Returns every extension context connected over the websocket channel
// @Tags         Contexts
// @Produce      json
// @Success      200  {array}   domain.ContextInfo
// @Failure      403  {object}  ErrorResponse  "Insufficient permissions"
// @Security     BearerAuth
// @Router       /contexts [get]
func (s *Server) handleListContexts(w http.ResponseWriter, r *http.Request) {
	infos := []domain.ContextInfo{}
	if s.contexts != nil {
		infos = append(infos, s.contexts.Contexts()...)
	}
	writeJSON(w, http.StatusOK, infos)
}

// initialize runs the settings race guard and reports whether to continue
func (s *Server) initialize(w http.ResponseWriter, r *http.Request) bool {
	if err := s.settingsService.Initialize(r.Context()); err != nil {
		s.logger.Error("settings initialization failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "settings not initialized")
		return false
	}
	return true
}

func (s *Server) writeSettingsError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrUnknownSettingsKey):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrNoAPIKeys):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error("settings operation failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save settings")
	}
}

func decodeBody(r *http.Request, v any) error {
	return json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
