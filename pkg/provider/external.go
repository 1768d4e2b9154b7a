package provider

import (
	"encoding/json"
	"time"
)

// ExternalRecord is a single provider payload as decoded from JSON.
// Field names and casing are provider-controlled; any field may be absent
// or null. ExternalRecords exist only between the fetch boundary and the
// transformers in this package.
type ExternalRecord map[string]any

// DecodeRecords parses a JSON array body into ExternalRecords.
// A top-level object is treated as a single-element result, since some
// provider endpoints return one object instead of a list.
func DecodeRecords(data []byte) ([]ExternalRecord, error) {
	var records []ExternalRecord
	if err := json.Unmarshal(data, &records); err == nil {
		return records, nil
	}

	var single ExternalRecord
	if err := json.Unmarshal(data, &single); err != nil {
		return nil, err
	}
	return []ExternalRecord{single}, nil
}

// str reads a string field. Missing, null, or non-string values yield "".
func (r ExternalRecord) str(key string) string {
	if r == nil {
		return ""
	}
	if v, ok := r[key].(string); ok {
		return v
	}
	return ""
}

// num reads a numeric field. JSON numbers decode as float64; int and int64
// are accepted for records built in tests. Anything else yields 0.
func (r ExternalRecord) num(key string) int64 {
	if r == nil {
		return 0
	}
	switch v := r[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

// boolean reads a bool field. Missing, null, or non-bool values yield false.
func (r ExternalRecord) boolean(key string) bool {
	if r == nil {
		return false
	}
	if v, ok := r[key].(bool); ok {
		return v
	}
	return false
}

// object reads a nested object field. Missing, null, or non-object values
// yield nil, which every transformer accepts.
func (r ExternalRecord) object(key string) ExternalRecord {
	if r == nil {
		return nil
	}
	switch v := r[key].(type) {
	case map[string]any:
		return ExternalRecord(v)
	case ExternalRecord:
		return v
	default:
		return nil
	}
}

// timestamp reads an RFC 3339 time field. Missing or unparsable values
// yield the zero time.
func (r ExternalRecord) timestamp(key string) time.Time {
	s := r.str(key)
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
