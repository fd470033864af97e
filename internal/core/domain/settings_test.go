package domain

import (
	"encoding/json"
	"errors"
	"testing"
)

func intPtr(i int) *int { return &i }

func TestDefaultSettings(t *testing.T) {
	settings := DefaultSettings()

	if len(settings.APIKeys) != 0 {
		t.Errorf("expected no api keys, got %v", settings.APIKeys)
	}
	if settings.APIKeys == nil {
		t.Error("expected empty, non-nil api keys")
	}
	if settings.CurrentAPIKeyIndex != nil {
		t.Errorf("expected nil index, got %d", *settings.CurrentAPIKeyIndex)
	}
	if settings.APIEndpoint != DefaultAPIEndpoint {
		t.Errorf("expected default endpoint, got %s", settings.APIEndpoint)
	}
}

func TestSettings_Clone(t *testing.T) {
	original := &Settings{
		APIKeys:            []string{"k1", "k2"},
		CurrentAPIKeyIndex: intPtr(1),
		APIEndpoint:        "https://x",
	}

	clone := original.Clone()
	clone.APIKeys[0] = "changed"
	*clone.CurrentAPIKeyIndex = 0
	clone.APIEndpoint = "https://y"

	if original.APIKeys[0] != "k1" {
		t.Error("clone shares the key slice")
	}
	if *original.CurrentAPIKeyIndex != 1 {
		t.Error("clone shares the index pointer")
	}
	if original.APIEndpoint != "https://x" {
		t.Error("clone changed the endpoint")
	}
}

func TestSettings_Normalize(t *testing.T) {
	tests := []struct {
		name     string
		settings Settings
		want     *int
	}{
		{"no keys drops index", Settings{APIKeys: nil, CurrentAPIKeyIndex: intPtr(3)}, nil},
		{"missing index defaults to first", Settings{APIKeys: []string{"a"}}, intPtr(0)},
		{"out of range resets", Settings{APIKeys: []string{"a", "b"}, CurrentAPIKeyIndex: intPtr(2)}, intPtr(0)},
		{"negative resets", Settings{APIKeys: []string{"a", "b"}, CurrentAPIKeyIndex: intPtr(-1)}, intPtr(0)},
		{"valid index kept", Settings{APIKeys: []string{"a", "b"}, CurrentAPIKeyIndex: intPtr(1)}, intPtr(1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := tt.settings
			s.Normalize()
			if s.APIKeys == nil {
				t.Error("expected non-nil api keys")
			}
			switch {
			case tt.want == nil && s.CurrentAPIKeyIndex != nil:
				t.Errorf("expected nil index, got %d", *s.CurrentAPIKeyIndex)
			case tt.want != nil && s.CurrentAPIKeyIndex == nil:
				t.Errorf("expected index %d, got nil", *tt.want)
			case tt.want != nil && *s.CurrentAPIKeyIndex != *tt.want:
				t.Errorf("expected index %d, got %d", *tt.want, *s.CurrentAPIKeyIndex)
			}
		})
	}
}

func TestSettings_CurrentAPIKey(t *testing.T) {
	tests := []struct {
		name     string
		settings Settings
		wantKey  string
		wantOK   bool
	}{
		{"no keys", Settings{}, "", false},
		{"nil index", Settings{APIKeys: []string{"a"}}, "", false},
		{"out of range", Settings{APIKeys: []string{"a"}, CurrentAPIKeyIndex: intPtr(5)}, "", false},
		{"valid", Settings{APIKeys: []string{"a", "b"}, CurrentAPIKeyIndex: intPtr(1)}, "b", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, ok := tt.settings.CurrentAPIKey()
			if key != tt.wantKey || ok != tt.wantOK {
				t.Errorf("expected (%q, %t), got (%q, %t)", tt.wantKey, tt.wantOK, key, ok)
			}
		})
	}
}

func TestSettings_NextAPIKeyIndex(t *testing.T) {
	s := Settings{APIKeys: []string{"k1", "k2", "k3"}, CurrentAPIKeyIndex: intPtr(2)}
	next, ok := s.NextAPIKeyIndex()
	if !ok || next != 0 {
		t.Errorf("expected wrap to 0, got %d (%t)", next, ok)
	}

	empty := Settings{}
	if _, ok := empty.NextAPIKeyIndex(); ok {
		t.Error("expected no next index without keys")
	}
}

func TestSettings_NextAPIKeyIndex_Cycle(t *testing.T) {
	for n := 1; n <= 5; n++ {
		s := Settings{APIKeys: make([]string, n), CurrentAPIKeyIndex: intPtr(0)}
		for i := 0; i < n; i++ {
			next, _ := s.NextAPIKeyIndex()
			s.CurrentAPIKeyIndex = intPtr(next)
		}
		if *s.CurrentAPIKeyIndex != 0 {
			t.Errorf("n=%d: expected to return to 0, got %d", n, *s.CurrentAPIKeyIndex)
		}
	}
}

func TestSettings_Field(t *testing.T) {
	s := Settings{APIKeys: []string{"a"}, CurrentAPIKeyIndex: intPtr(0), APIEndpoint: "https://x"}

	if v, ok := s.Field(SettingsKeyAPIEndpoint); !ok || v != "https://x" {
		t.Errorf("unexpected endpoint field: %v %t", v, ok)
	}
	if v, ok := s.Field(SettingsKeyCurrentAPIKeyIndex); !ok || v != 0 {
		t.Errorf("unexpected index field: %v %t", v, ok)
	}
	if v, ok := s.Field("nope"); ok || v != nil {
		t.Errorf("expected unknown field to be absent, got %v", v)
	}

	keys, _ := s.Field(SettingsKeyAPIKeys)
	keys.([]string)[0] = "changed"
	if s.APIKeys[0] != "a" {
		t.Error("Field exposed the internal key slice")
	}
}

func TestSettings_ApplyField(t *testing.T) {
	s := DefaultSettings()

	if err := s.ApplyField(SettingsKeyAPIKeys, json.RawMessage(`["k1","k2"]`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.ApplyField(SettingsKeyCurrentAPIKeyIndex, json.RawMessage(`1`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key, _ := s.CurrentAPIKey(); key != "k2" {
		t.Errorf("expected k2, got %s", key)
	}

	if err := s.ApplyField(SettingsKeyCurrentAPIKeyIndex, json.RawMessage(`null`)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.CurrentAPIKeyIndex != nil {
		t.Error("expected null to clear the index")
	}

	err := s.ApplyField("apiKey", json.RawMessage(`"legacy"`))
	if !errors.Is(err, ErrUnknownSettingsKey) {
		t.Errorf("expected ErrUnknownSettingsKey, got %v", err)
	}

	if err := s.ApplyField(SettingsKeyAPIEndpoint, json.RawMessage(`42`)); err == nil {
		t.Error("expected decode error")
	}
}

func TestSettingsFromRecord(t *testing.T) {
	record := map[string]json.RawMessage{
		SettingsKeyAPIKeys: json.RawMessage(`["k1","k2","k3"]`),
		"unrelated":        json.RawMessage(`true`),
	}

	s, err := SettingsFromRecord(DefaultSettings(), record)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(s.APIKeys) != 3 {
		t.Errorf("expected 3 keys, got %d", len(s.APIKeys))
	}
	if s.APIEndpoint != DefaultAPIEndpoint {
		t.Error("unset field should keep its default")
	}
	if s.CurrentAPIKeyIndex == nil || *s.CurrentAPIKeyIndex != 0 {
		t.Error("expected index normalized to 0")
	}
}

func TestSettingsFromRecord_BadFieldKeepsDefault(t *testing.T) {
	record := map[string]json.RawMessage{
		SettingsKeyAPIEndpoint: json.RawMessage(`{"bad":true}`),
		SettingsKeyAPIKeys:     json.RawMessage(`["k1"]`),
	}

	s, err := SettingsFromRecord(DefaultSettings(), record)
	if err == nil {
		t.Fatal("expected decode error to be reported")
	}
	if s.APIEndpoint != DefaultAPIEndpoint {
		t.Errorf("expected default endpoint, got %s", s.APIEndpoint)
	}
	if len(s.APIKeys) != 1 {
		t.Error("valid fields should still be applied")
	}
}

func TestSettings_RecordRoundTrip(t *testing.T) {
	original := &Settings{APIKeys: []string{"k1", "k2"}, CurrentAPIKeyIndex: intPtr(1), APIEndpoint: "https://x"}

	record, err := original.Record()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(record) != len(SettingsKeys) {
		t.Errorf("expected %d fields, got %d", len(SettingsKeys), len(record))
	}

	restored, err := SettingsFromRecord(DefaultSettings(), record)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key, _ := restored.CurrentAPIKey(); key != "k2" {
		t.Errorf("expected k2, got %s", key)
	}
	if restored.APIEndpoint != "https://x" {
		t.Errorf("expected https://x, got %s", restored.APIEndpoint)
	}
}

func TestSettingsPatch_Apply(t *testing.T) {
	s := DefaultSettings()
	endpoint := "https://x"
	(&SettingsPatch{APIEndpoint: &endpoint}).Apply(s)

	if s.APIEndpoint != "https://x" {
		t.Errorf("expected https://x, got %s", s.APIEndpoint)
	}
	if len(s.APIKeys) != 0 {
		t.Error("api keys should be unchanged")
	}

	keys := []string{"a", "b"}
	patch := &SettingsPatch{APIKeys: &keys}
	patch.Apply(s)
	keys[0] = "mutated"
	if s.APIKeys[0] != "a" {
		t.Error("patch shares its key slice with the settings")
	}
}

func TestSettingsPatch_IsEmpty(t *testing.T) {
	var nilPatch *SettingsPatch
	if !nilPatch.IsEmpty() {
		t.Error("nil patch should be empty")
	}
	if !(&SettingsPatch{}).IsEmpty() {
		t.Error("zero patch should be empty")
	}
	if (&SettingsPatch{CurrentAPIKeyIndex: intPtr(0)}).IsEmpty() {
		t.Error("patch with index should not be empty")
	}
}

func TestSettingsPatch_Validate(t *testing.T) {
	empty := []string{"ok", ""}
	tests := []struct {
		name    string
		patch   *SettingsPatch
		wantErr bool
	}{
		{"nil", nil, false},
		{"negative index", &SettingsPatch{CurrentAPIKeyIndex: intPtr(-1)}, true},
		{"empty key", &SettingsPatch{APIKeys: &empty}, true},
		{"valid", &SettingsPatch{CurrentAPIKeyIndex: intPtr(2)}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.patch.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("expected error=%t, got %v", tt.wantErr, err)
			}
			if err != nil && !errors.Is(err, ErrInvalidInput) {
				t.Errorf("expected ErrInvalidInput, got %v", err)
			}
		})
	}
}

func TestValidateField(t *testing.T) {
	tests := []struct {
		name string
		key  string
		raw  string
		want error
	}{
		{"keys", SettingsKeyAPIKeys, `["k1","k2"]`, nil},
		{"empty key in list", SettingsKeyAPIKeys, `[""]`, ErrInvalidInput},
		{"null keys", SettingsKeyAPIKeys, `null`, nil},
		{"wrong type", SettingsKeyAPIKeys, `"k1"`, ErrInvalidInput},
		{"index", SettingsKeyCurrentAPIKeyIndex, `1`, nil},
		{"negative index", SettingsKeyCurrentAPIKeyIndex, `-1`, ErrInvalidInput},
		{"null index", SettingsKeyCurrentAPIKeyIndex, `null`, nil},
		{"endpoint", SettingsKeyAPIEndpoint, `"https://x"`, nil},
		{"unknown key", "apiKey", `"legacy"`, ErrUnknownSettingsKey},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateField(tt.key, json.RawMessage(tt.raw))
			if tt.want == nil {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}
