package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// DefaultAPIEndpoint is the generation endpoint used until one is configured
const DefaultAPIEndpoint = "https://generativelanguage.googleapis.com/v1beta/models/gemini-2.5-flash:generateContent"

// Persisted field names. The persisted layout is a flat mapping of these keys.
const (
	SettingsKeyAPIKeys            = "apiKeys"
	SettingsKeyCurrentAPIKeyIndex = "currentApiKeyIndex"
	SettingsKeyAPIEndpoint        = "apiEndpoint"
)

// SettingsKeys lists every persisted field in a stable order
var SettingsKeys = []string{
	SettingsKeyAPIKeys,
	SettingsKeyCurrentAPIKeyIndex,
	SettingsKeyAPIEndpoint,
}

// Settings is the authoritative configuration snapshot.
//
// When APIKeys is non-empty CurrentAPIKeyIndex points at a valid element.
// When APIKeys is empty CurrentAPIKeyIndex is nil.
type Settings struct {
	APIKeys            []string `json:"apiKeys"`
	CurrentAPIKeyIndex *int     `json:"currentApiKeyIndex,omitempty"`
	APIEndpoint        string   `json:"apiEndpoint"`
}

// DefaultSettings returns the settings used before anything is persisted
func DefaultSettings() *Settings {
	return &Settings{
		APIKeys:     []string{},
		APIEndpoint: DefaultAPIEndpoint,
	}
}

// Clone returns a deep copy
func (s *Settings) Clone() *Settings {
	c := &Settings{
		APIKeys:     make([]string, len(s.APIKeys)),
		APIEndpoint: s.APIEndpoint,
	}
	copy(c.APIKeys, s.APIKeys)
	if s.CurrentAPIKeyIndex != nil {
		idx := *s.CurrentAPIKeyIndex
		c.CurrentAPIKeyIndex = &idx
	}
	return c
}

// HasAPIKeys returns true if at least one key is configured
func (s *Settings) HasAPIKeys() bool {
	return len(s.APIKeys) > 0
}

// Normalize restores the index invariant.
// A missing or out-of-range index falls back to the first key.
func (s *Settings) Normalize() {
	if s.APIKeys == nil {
		s.APIKeys = []string{}
	}
	if len(s.APIKeys) == 0 {
		s.CurrentAPIKeyIndex = nil
		return
	}
	if s.CurrentAPIKeyIndex == nil || *s.CurrentAPIKeyIndex < 0 || *s.CurrentAPIKeyIndex >= len(s.APIKeys) {
		idx := 0
		s.CurrentAPIKeyIndex = &idx
	}
}

// CurrentAPIKey returns the active key, or "" and false when none is configured
func (s *Settings) CurrentAPIKey() (string, bool) {
	if s.CurrentAPIKeyIndex == nil {
		return "", false
	}
	idx := *s.CurrentAPIKeyIndex
	if idx < 0 || idx >= len(s.APIKeys) {
		return "", false
	}
	return s.APIKeys[idx], true
}

// NextAPIKeyIndex returns the index rotation would move to
func (s *Settings) NextAPIKeyIndex() (int, bool) {
	n := len(s.APIKeys)
	if n == 0 {
		return 0, false
	}
	current := 0
	if s.CurrentAPIKeyIndex != nil {
		current = *s.CurrentAPIKeyIndex
	}
	next := (current + 1) % n
	if next < 0 {
		next = 0
	}
	return next, true
}

// Field returns a single field by its persisted name
func (s *Settings) Field(key string) (any, bool) {
	switch key {
	case SettingsKeyAPIKeys:
		keys := make([]string, len(s.APIKeys))
		copy(keys, s.APIKeys)
		return keys, true
	case SettingsKeyCurrentAPIKeyIndex:
		if s.CurrentAPIKeyIndex == nil {
			return nil, true
		}
		return *s.CurrentAPIKeyIndex, true
	case SettingsKeyAPIEndpoint:
		return s.APIEndpoint, true
	default:
		return nil, false
	}
}

// ApplyField decodes raw into the named field.
// A JSON null resets the field to its zero value.
func (s *Settings) ApplyField(key string, raw json.RawMessage) error {
	isNull := len(raw) == 0 || string(raw) == "null"

	switch key {
	case SettingsKeyAPIKeys:
		if isNull {
			s.APIKeys = []string{}
			return nil
		}
		var keys []string
		if err := json.Unmarshal(raw, &keys); err != nil {
			return fmt.Errorf("decode %s: %w", key, err)
		}
		s.APIKeys = keys
	case SettingsKeyCurrentAPIKeyIndex:
		if isNull {
			s.CurrentAPIKeyIndex = nil
			return nil
		}
		var idx int
		if err := json.Unmarshal(raw, &idx); err != nil {
			return fmt.Errorf("decode %s: %w", key, err)
		}
		s.CurrentAPIKeyIndex = &idx
	case SettingsKeyAPIEndpoint:
		if isNull {
			s.APIEndpoint = ""
			return nil
		}
		var endpoint string
		if err := json.Unmarshal(raw, &endpoint); err != nil {
			return fmt.Errorf("decode %s: %w", key, err)
		}
		s.APIEndpoint = endpoint
	default:
		return fmt.Errorf("%w: %s", ErrUnknownSettingsKey, key)
	}
	return nil
}

// Record encodes the snapshot as the flat persisted mapping
func (s *Settings) Record() (map[string]json.RawMessage, error) {
	record := make(map[string]json.RawMessage, len(SettingsKeys))
	for _, key := range SettingsKeys {
		value, _ := s.Field(key)
		raw, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("encode %s: %w", key, err)
		}
		record[key] = raw
	}
	return record, nil
}

// SettingsFromRecord overlays a persisted mapping on top of defaults.
// Persisted values win; unknown keys are ignored. Fields that fail to decode
// keep their default and are reported in the returned error.
func SettingsFromRecord(defaults *Settings, record map[string]json.RawMessage) (*Settings, error) {
	s := defaults.Clone()
	var errs []error
	for _, key := range SettingsKeys {
		raw, ok := record[key]
		if !ok {
			continue
		}
		if err := s.ApplyField(key, raw); err != nil {
			errs = append(errs, err)
		}
	}
	s.Normalize()
	return s, errors.Join(errs...)
}

// SettingsPatch is a partial snapshot. Nil fields are left untouched.
type SettingsPatch struct {
	APIKeys            *[]string `json:"apiKeys,omitempty"`
	CurrentAPIKeyIndex *int      `json:"currentApiKeyIndex,omitempty"`
	APIEndpoint        *string   `json:"apiEndpoint,omitempty"`
}

// IsEmpty returns true if the patch changes nothing
func (p *SettingsPatch) IsEmpty() bool {
	return p == nil || (p.APIKeys == nil && p.CurrentAPIKeyIndex == nil && p.APIEndpoint == nil)
}

// Apply merges the patch into s field by field, last write wins
func (p *SettingsPatch) Apply(s *Settings) {
	if p == nil {
		return
	}
	if p.APIKeys != nil {
		keys := make([]string, len(*p.APIKeys))
		copy(keys, *p.APIKeys)
		s.APIKeys = keys
	}
	if p.CurrentAPIKeyIndex != nil {
		idx := *p.CurrentAPIKeyIndex
		s.CurrentAPIKeyIndex = &idx
	}
	if p.APIEndpoint != nil {
		s.APIEndpoint = *p.APIEndpoint
	}
}

// Validate checks the patch for values that can never be stored
func (p *SettingsPatch) Validate() error {
	if p == nil {
		return nil
	}
	if p.CurrentAPIKeyIndex != nil && *p.CurrentAPIKeyIndex < 0 {
		return fmt.Errorf("%w: currentApiKeyIndex must not be negative", ErrInvalidInput)
	}
	if p.APIKeys != nil {
		for i, key := range *p.APIKeys {
			if key == "" {
				return fmt.Errorf("%w: apiKeys[%d] is empty", ErrInvalidInput, i)
			}
		}
	}
	return nil
}

// ValidateField checks one persisted field value with the same rules as
// SettingsPatch.Validate. A null value resets the field and is always valid.
func ValidateField(key string, raw json.RawMessage) error {
	decoded := DefaultSettings()
	if err := decoded.ApplyField(key, raw); err != nil {
		if errors.Is(err, ErrUnknownSettingsKey) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}

	patch := &SettingsPatch{}
	switch key {
	case SettingsKeyAPIKeys:
		patch.APIKeys = &decoded.APIKeys
	case SettingsKeyCurrentAPIKeyIndex:
		patch.CurrentAPIKeyIndex = decoded.CurrentAPIKeyIndex
	case SettingsKeyAPIEndpoint:
		patch.APIEndpoint = &decoded.APIEndpoint
	}
	return patch.Validate()
}
