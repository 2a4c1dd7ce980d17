// Package mapper translates records between the local and remote schemas
// using declarative field tables, and correlates records across the two
// sides by cross reference and natural key.
package mapper

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/erp/shopsync/internal/domain/integration"
)

// Mapper maps and matches records of every entity type
type Mapper struct {
	refs  integration.CrossReferenceRepository
	local integration.LocalStore
}

// New creates a mapper
func New(refs integration.CrossReferenceRepository, local integration.LocalStore) *Mapper {
	return &Mapper{refs: refs, local: local}
}

// LocalMatch is the local counterpart of a remote record
type LocalMatch struct {
	Record *integration.LocalRecord
	// Ref is nil when the match was made by natural key
	Ref *integration.CrossReference
}

// RemoteMatch is the remote counterpart of a local record
type RemoteMatch struct {
	Payload integration.RemotePayload
	Ref     *integration.CrossReference
}

func table(entity integration.EntityType) (*Table, error) {
	t, ok := TableFor(entity)
	if !ok {
		return nil, fmt.Errorf("%w: %s", integration.ErrInvalidEntityType, entity)
	}
	return t, nil
}

// ---------------------------------------------------------------------------
// Matching
// ---------------------------------------------------------------------------

// MatchLocal finds the local record of a remote one: by cross reference
// first, then by natural key. It returns ErrNoMatch when there is none and
// ErrAmbiguousMatch when the record cannot be correlated safely.
func (m *Mapper) MatchLocal(ctx context.Context, instanceID uuid.UUID, entity integration.EntityType, remote integration.RemotePayload) (*LocalMatch, error) {
	t, err := table(entity)
	if err != nil {
		return nil, err
	}

	if remoteID := remote.ID(); remoteID != "" {
		ref, err := m.refs.FindByRemoteID(ctx, instanceID, entity, remoteID)
		switch {
		case err == nil:
			rec, err := m.local.Get(ctx, entity, ref.LocalID)
			if err == nil {
				return &LocalMatch{Record: rec, Ref: ref}, nil
			}
			// a reference to a deleted local record is resolved by key
			if !errors.Is(err, integration.ErrRecordNotFound) {
				return nil, err
			}
		case !errors.Is(err, integration.ErrCrossReferenceNotFound):
			return nil, err
		}
	}

	key := t.RemoteKey(gjson.ParseBytes(remote))
	if key == "" {
		return nil, fmt.Errorf("%w: remote %s %s has no natural key", integration.ErrAmbiguousMatch, entity, remote.ID())
	}

	candidates, err := m.local.FindByKey(ctx, entity, key)
	if err != nil {
		return nil, err
	}
	switch len(candidates) {
	case 0:
		return nil, integration.ErrNoMatch
	case 1:
	default:
		return nil, fmt.Errorf("%w: %d local %s records share key %q", integration.ErrAmbiguousMatch, len(candidates), entity, key)
	}

	rec := candidates[0]
	linked, err := m.refs.FindByLocalID(ctx, instanceID, entity, rec.ID)
	switch {
	case err == nil:
		if linked.RemoteID != remote.ID() {
			return nil, fmt.Errorf("%w: local %s %s with key %q is linked to remote %s", integration.ErrAmbiguousMatch, entity, rec.ID, key, linked.RemoteID)
		}
		return &LocalMatch{Record: &rec, Ref: linked}, nil
	case errors.Is(err, integration.ErrCrossReferenceNotFound):
		return &LocalMatch{Record: &rec}, nil
	default:
		return nil, err
	}
}

// MatchRemote finds the remote record of a local one, mirroring MatchLocal
func (m *Mapper) MatchRemote(ctx context.Context, instanceID uuid.UUID, entity integration.EntityType, local *integration.LocalRecord, remote integration.RemoteStore) (*RemoteMatch, error) {
	t, err := table(entity)
	if err != nil {
		return nil, err
	}

	ref, err := m.refs.FindByLocalID(ctx, instanceID, entity, local.ID)
	switch {
	case err == nil:
		payload, err := remote.Get(ctx, entity, ref.RemoteID)
		if err == nil {
			return &RemoteMatch{Payload: payload, Ref: ref}, nil
		}
		if !errors.Is(err, integration.ErrRemoteNotFound) {
			return nil, err
		}
		// deleted remotely, fall back to the key so the record is recreated
		// or relinked
	case !errors.Is(err, integration.ErrCrossReferenceNotFound):
		return nil, err
	}

	key := t.LocalKey(local.Fields)
	if key == "" {
		if t.KeyAssignedRemotely {
			return nil, integration.ErrNoMatch
		}
		return nil, fmt.Errorf("%w: local %s %s has no natural key", integration.ErrAmbiguousMatch, entity, local.ID)
	}

	candidates, err := remote.FindByKey(ctx, entity, key)
	if err != nil {
		return nil, err
	}
	switch len(candidates) {
	case 0:
		return nil, integration.ErrNoMatch
	case 1:
	default:
		return nil, fmt.Errorf("%w: %d remote %s records share key %q", integration.ErrAmbiguousMatch, len(candidates), entity, key)
	}

	payload := candidates[0]
	linked, err := m.refs.FindByRemoteID(ctx, instanceID, entity, payload.ID())
	switch {
	case err == nil:
		if linked.LocalID != local.ID {
			return nil, fmt.Errorf("%w: remote %s %s with key %q is linked to local %s", integration.ErrAmbiguousMatch, entity, payload.ID(), key, linked.LocalID)
		}
		return &RemoteMatch{Payload: payload, Ref: linked}, nil
	case errors.Is(err, integration.ErrCrossReferenceNotFound):
		return &RemoteMatch{Payload: payload}, nil
	default:
		return nil, err
	}
}

// ---------------------------------------------------------------------------
// Mapping
// ---------------------------------------------------------------------------

// ToLocalFields maps a remote resource onto local fields. Unknown remote
// fields are ignored; a missing required field is a validation error.
func (m *Mapper) ToLocalFields(entity integration.EntityType, remote integration.RemotePayload) (integration.FieldSet, error) {
	t, err := table(entity)
	if err != nil {
		return nil, err
	}
	if !remote.IsObject() {
		return nil, fmt.Errorf("%w: remote %s is not a JSON object", integration.ErrValidation, entity)
	}

	doc := gjson.ParseBytes(remote)
	fields := make(integration.FieldSet, len(t.Rules))
	for _, rule := range t.Rules {
		if !rule.imports() {
			continue
		}
		v, err := importValue(rule, lookup(doc, rule), doc)
		if err != nil {
			return nil, err
		}
		fields[rule.Local] = v
	}

	for _, name := range t.Required {
		if fields[name] == "" {
			return nil, fmt.Errorf("%w: remote %s %s is missing %s", integration.ErrValidation, entity, remote.ID(), name)
		}
	}
	return fields, nil
}

// RemoteView maps a remote resource onto local fields without enforcing
// required fields, skipping values that fail to convert. It is the current
// state of the remote side when exporting.
func (m *Mapper) RemoteView(entity integration.EntityType, remote integration.RemotePayload) integration.FieldSet {
	t, ok := TableFor(entity)
	if !ok || !remote.IsObject() {
		return integration.FieldSet{}
	}
	doc := gjson.ParseBytes(remote)
	fields := make(integration.FieldSet, len(t.Rules))
	for _, rule := range t.Rules {
		if !rule.imports() {
			continue
		}
		if v, err := importValue(rule, lookup(doc, rule), doc); err == nil {
			fields[rule.Local] = v
		}
	}
	return fields
}

// Canonical normalizes the mapped fields of a local record so they compare
// equal with the output of ToLocalFields. Fields without a rule are
// dropped.
func (m *Mapper) Canonical(entity integration.EntityType, fields integration.FieldSet) (integration.FieldSet, error) {
	t, err := table(entity)
	if err != nil {
		return nil, err
	}
	out := make(integration.FieldSet, len(fields))
	for _, rule := range t.Rules {
		v, ok := fields[rule.Local]
		if !ok {
			continue
		}
		c, err := canonical(rule, v, fields)
		if err != nil {
			return nil, err
		}
		out[rule.Local] = c
	}
	return out, nil
}

// ToRemotePayload builds the bare remote resource for a local record.
// Only the fields named in only are written (all exportable fields when
// only is nil); identity paths are copied from base, the current remote
// resource, so that partial updates address existing nested resources.
func (m *Mapper) ToRemotePayload(entity integration.EntityType, fields integration.FieldSet, only []string, base integration.RemotePayload) (integration.RemotePayload, error) {
	t, err := table(entity)
	if err != nil {
		return nil, err
	}

	if t.ImportOnly {
		return nil, fmt.Errorf("%w: %s records are import only", integration.ErrInvalidDirection, entity)
	}
	creating := len(base) == 0
	if creating {
		for _, name := range t.ExportRequired {
			if fields[name] == "" {
				return nil, fmt.Errorf("%w: local %s is missing %s", integration.ErrValidation, entity, name)
			}
		}
	}

	var want map[string]bool
	if only != nil {
		want = make(map[string]bool, len(only))
		for _, name := range only {
			want[name] = true
		}
	}

	out := []byte(`{}`)
	if !creating {
		for _, id := range t.Identity {
			if v := base.Get(id.From); v.Exists() && v.Type != gjson.Null {
				if out, err = sjson.SetRawBytes(out, id.To, []byte(v.Raw)); err != nil {
					return nil, fmt.Errorf("mapper: failed to copy %s: %w", id.From, err)
				}
			}
		}
	}

	for _, rule := range t.Rules {
		if !rule.exports() || (rule.CreateOnly && !creating) {
			continue
		}
		if want != nil && !want[rule.Local] {
			continue
		}
		v, ok := fields[rule.Local]
		if !ok {
			continue
		}
		value, err := exportValue(rule, v, fields)
		if err != nil {
			return nil, err
		}
		if raw, isRaw := value.(rawJSON); isRaw {
			out, err = sjson.SetRawBytes(out, rule.writePath(), raw)
		} else {
			out, err = sjson.SetBytes(out, rule.writePath(), value)
		}
		if err != nil {
			return nil, fmt.Errorf("mapper: failed to write %s: %w", rule.writePath(), err)
		}
	}
	return out, nil
}

// ComparableFields returns the local fields compared during a pass. Export
// updates leave out fields that cannot change after creation.
func (m *Mapper) ComparableFields(entity integration.EntityType, direction integration.Direction) []string {
	t, ok := TableFor(entity)
	if !ok {
		return nil
	}
	var names []string
	for _, rule := range t.Rules {
		switch direction {
		case integration.DirectionImport:
			if rule.imports() {
				names = append(names, rule.Local)
			}
		case integration.DirectionExport:
			if rule.exports() && !rule.CreateOnly {
				names = append(names, rule.Local)
			}
		}
	}
	sort.Strings(names)
	return names
}

// RemoteAssignedFields returns the import-only local fields. After an
// export create they are read back from the remote response.
func (m *Mapper) RemoteAssignedFields(entity integration.EntityType) []string {
	t, ok := TableFor(entity)
	if !ok {
		return nil
	}
	var names []string
	for _, rule := range t.Rules {
		if rule.Mode == ImportOnly {
			names = append(names, rule.Local)
		}
	}
	sort.Strings(names)
	return names
}

// Exportable reports whether records of entity can be written remotely
func (m *Mapper) Exportable(entity integration.EntityType) bool {
	t, ok := TableFor(entity)
	return ok && !t.ImportOnly
}

// NaturalKeyOf returns the natural key of local fields
func (m *Mapper) NaturalKeyOf(entity integration.EntityType, fields integration.FieldSet) string {
	t, ok := TableFor(entity)
	if !ok {
		return ""
	}
	return t.LocalKey(fields)
}

// RemoteNaturalKey returns the natural key of a remote resource
func (m *Mapper) RemoteNaturalKey(entity integration.EntityType, remote integration.RemotePayload) string {
	t, ok := TableFor(entity)
	if !ok || !remote.IsObject() {
		return ""
	}
	return t.RemoteKey(gjson.ParseBytes(remote))
}

func lookup(doc gjson.Result, rule FieldRule) gjson.Result {
	if rule.Remote == "" {
		return gjson.Result{}
	}
	v := doc.Get(rule.Remote)
	if v.Exists() {
		return v
	}
	for _, alt := range rule.Alt {
		if v = doc.Get(alt); v.Exists() {
			return v
		}
	}
	return v
}
