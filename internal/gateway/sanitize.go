package gateway

import (
	"bytes"
	"encoding/json"
	"math"
)

// SensitiveUserFields are removed from user detail payloads even when the
// upstream should never have returned them.
var SensitiveUserFields = []string{"email", "password", "secret", "token", "oauth_id"}

// Sanitizer applies the post-fetch transforms for relayed upstream bodies.
type Sanitizer struct {
	Members *SeenMembers
}

// Apply runs the transforms that apply to apiPath and returns the body to
// relay plus the number of newly registered member IDs. The input body is
// returned unchanged when no transform applies or it cannot be rewritten.
func (s Sanitizer) Apply(apiPath string, body []byte) ([]byte, int) {
	switch {
	case IsTeamDetail(apiPath):
		ids := HarvestMembers(body)
		if s.Members == nil {
			return body, 0
		}
		return body, s.Members.Add(ids...)
	case IsUserDetail(apiPath):
		if out, err := StripSensitive(body); err == nil {
			return out, 0
		}
		// Never relay an unparsed user payload that might carry secrets.
		return []byte(`{"success":false,"data":null}`), 0
	}
	return body, 0
}

// HarvestMembers returns the integer IDs in data.members and data.captain_id
// of a team detail payload. Malformed or absent fields contribute nothing.
func HarvestMembers(body []byte) []int64 {
	var payload struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil
	}
	// Each field is decoded on its own so one malformed field does not hide
	// the other.
	var data map[string]json.RawMessage
	if err := json.Unmarshal(payload.Data, &data); err != nil || data == nil {
		return nil
	}
	var ids []int64
	var members []json.RawMessage
	if err := json.Unmarshal(data["members"], &members); err == nil {
		for _, raw := range members {
			if id, ok := asID(raw); ok {
				ids = append(ids, id)
			}
		}
	}
	if id, ok := asID(data["captain_id"]); ok {
		ids = append(ids, id)
	}
	return ids
}

// asID accepts only whole JSON numbers. Strings, objects and fractions are
// ignored.
func asID(raw json.RawMessage) (int64, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, false
	}
	// null decodes to 0 without error; upstream IDs start at 1.
	if f != math.Trunc(f) || f < 1 || f > math.MaxInt64/2 {
		return 0, false
	}
	return int64(f), true
}

// StripSensitive removes SensitiveUserFields from the "data" object of a user
// detail payload. Numbers are preserved verbatim.
func StripSensitive(body []byte) ([]byte, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, err
	}
	if data, ok := doc["data"].(map[string]any); ok {
		for _, f := range SensitiveUserFields {
			delete(data, f)
		}
	}
	return json.Marshal(doc)
}
