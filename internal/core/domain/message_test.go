package domain

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestResponse_WireShapes(t *testing.T) {
	tests := []struct {
		name     string
		response Response
		want     string
	}{
		{"success", SuccessResponse(), `{"success":true}`},
		{"failure", FailureResponse(errors.New("boom")), `{"success":false,"error":"boom"}`},
		{"error only", ErrorResponse(ErrUnknownMessageType), `{"error":"unknown request type"}`},
		{"api key", APIKeyResponse("k1"), `{"apiKey":"k1"}`},
		{"empty api key", APIKeyResponse(""), `{"apiKey":""}`},
		{"rotated", RotatedResponse("k2"), `{"success":true,"apiKey":"k2"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.response.Body())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(data) != tt.want {
				t.Errorf("expected %s, got %s", tt.want, string(data))
			}
		})
	}
}

func TestResponse_SettingsBody(t *testing.T) {
	resp := SettingsResponse(DefaultSettings())

	data, err := json.Marshal(resp.Body())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if decoded["apiEndpoint"] != DefaultAPIEndpoint {
		t.Errorf("expected snapshot body, got %s", string(data))
	}
	if _, ok := decoded["success"]; ok {
		t.Error("snapshot body should not carry a success flag")
	}
}

func TestMessage_Decode(t *testing.T) {
	var msg Message
	body := `{"type":"SAVE_SETTINGS","settings":{"apiEndpoint":"https://x"}}`
	if err := json.Unmarshal([]byte(body), &msg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if msg.Type != MessageSaveSettings {
		t.Errorf("expected SAVE_SETTINGS, got %s", msg.Type)
	}
	if msg.Settings == nil || msg.Settings.APIEndpoint == nil || *msg.Settings.APIEndpoint != "https://x" {
		t.Error("expected endpoint patch")
	}
	if msg.Settings.APIKeys != nil {
		t.Error("absent field should stay nil")
	}
}

func TestStorageArea_IsValid(t *testing.T) {
	if !StorageAreaSync.IsValid() || !StorageAreaLocal.IsValid() {
		t.Error("known areas should be valid")
	}
	if StorageArea("session").IsValid() {
		t.Error("unknown area should be invalid")
	}
}

func TestContextKind_IsValid(t *testing.T) {
	for _, k := range []ContextKind{ContextKindContent, ContextKindOptions, ContextKindPopup, ContextKindBackground} {
		if !k.IsValid() {
			t.Errorf("%s should be valid", k)
		}
	}
	if ContextKind("devtools").IsValid() {
		t.Error("unknown kind should be invalid")
	}
}
