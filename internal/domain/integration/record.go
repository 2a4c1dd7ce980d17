package integration

import (
	"encoding/json"
	"sort"
	"time"

	"github.com/tidwall/gjson"
)

// ---------------------------------------------------------------------------
// FieldSet
// ---------------------------------------------------------------------------

// FieldSet holds the synchronized fields of one record keyed by local field
// name. Values are canonical strings so that both sides compare equal when
// they carry the same data: decimals are normalized, booleans are
// "true"/"false" and absent values are empty strings.
type FieldSet map[string]string

// Clone returns a copy of the field set
func (f FieldSet) Clone() FieldSet {
	out := make(FieldSet, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Keys returns the field names in sorted order
func (f FieldSet) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Merge returns a copy of f overlaid with changes
func (f FieldSet) Merge(changes FieldSet) FieldSet {
	out := f.Clone()
	for k, v := range changes {
		out[k] = v
	}
	return out
}

// Only returns the subset of f restricted to the given field names
func (f FieldSet) Only(names []string) FieldSet {
	out := make(FieldSet, len(names))
	for _, n := range names {
		if v, ok := f[n]; ok {
			out[n] = v
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// LocalRecord
// ---------------------------------------------------------------------------

// LocalRecord is the local representation of a synchronized entity
type LocalRecord struct {
	ID        string
	Entity    EntityType
	Fields    FieldSet
	Active    bool
	UpdatedAt time.Time
}

// ---------------------------------------------------------------------------
// RemotePayload
// ---------------------------------------------------------------------------

// RemotePayload is one remote resource in the platform's JSON shape,
// without the resource envelope.
type RemotePayload json.RawMessage

// ID returns the remote identifier of the resource
func (p RemotePayload) ID() string {
	return gjson.GetBytes(p, "id").String()
}

// Get returns the value at a gjson path
func (p RemotePayload) Get(path string) gjson.Result {
	return gjson.GetBytes(p, path)
}

// UpdatedAt returns the remote modification time, or the zero time when
// the resource does not carry one.
func (p RemotePayload) UpdatedAt() time.Time {
	raw := gjson.GetBytes(p, "updated_at").String()
	if raw == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

// IsObject reports whether the payload is a JSON object
func (p RemotePayload) IsObject() bool {
	return gjson.ValidBytes(p) && gjson.ParseBytes(p).IsObject()
}

// MarshalJSON keeps the raw bytes when the payload is embedded in DTOs
func (p RemotePayload) MarshalJSON() ([]byte, error) {
	if len(p) == 0 {
		return []byte("null"), nil
	}
	return p, nil
}

// RemotePage is one page of a remote collection
type RemotePage struct {
	Records []RemotePayload
	// NextCursor is empty on the last page
	NextCursor string
}
