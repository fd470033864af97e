package domain

// MessageType identifies a request sent by an extension context
type MessageType string

const (
	MessageOpenOptions   MessageType = "OPEN_OPTIONS"
	MessageGetAPIKey     MessageType = "GET_API_KEY"
	MessageGetSettings   MessageType = "GET_SETTINGS"
	MessageSaveSettings  MessageType = "SAVE_SETTINGS"
	MessageRotateAPIKey  MessageType = "ROTATE_API_KEY"
	MessageResetSettings MessageType = "RESET_SETTINGS"
)

// Message is a typed request from a UI or content context
type Message struct {
	Type     MessageType    `json:"type"`
	Settings *SettingsPatch `json:"settings,omitempty"`
}

// Response is the reply to a Message.
// GET_SETTINGS replies with the snapshot itself; see Body.
type Response struct {
	Success  *bool     `json:"success,omitempty"`
	APIKey   *string   `json:"apiKey,omitempty"`
	Error    string    `json:"error,omitempty"`
	Settings *Settings `json:"-"`
}

// Body returns the value written on the wire for this response
func (r Response) Body() any {
	if r.Settings != nil {
		return r.Settings
	}
	return r
}

// SuccessResponse builds {success: true}
func SuccessResponse() Response {
	ok := true
	return Response{Success: &ok}
}

// FailureResponse builds {success: false, error}
func FailureResponse(err error) Response {
	ok := false
	return Response{Success: &ok, Error: err.Error()}
}

// ErrorResponse builds {error} without a success flag
func ErrorResponse(err error) Response {
	return Response{Error: err.Error()}
}

// APIKeyResponse builds {apiKey}
func APIKeyResponse(key string) Response {
	return Response{APIKey: &key}
}

// RotatedResponse builds {success: true, apiKey}
func RotatedResponse(key string) Response {
	ok := true
	return Response{Success: &ok, APIKey: &key}
}

// SettingsResponse replies with the full snapshot
func SettingsResponse(s *Settings) Response {
	return Response{Settings: s}
}

// IsSuccess reports whether the response carries success=true
func (r Response) IsSuccess() bool {
	return r.Success != nil && *r.Success
}
