package integration

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/sjson"
	"go.uber.org/zap"

	"github.com/erp/shopsync/internal/domain/integration"
)

// ---------------------------------------------------------------------------
// Import
// ---------------------------------------------------------------------------

// importRecord brings one remote record into the local store. Per-record
// problems come back as errored or skipped entries; only systemic errors
// are returned.
func (e *SyncEngine) importRecord(ctx context.Context, run *jobRun, remote integration.RemotePayload) (*integration.SyncLogEntry, error) {
	job := run.job
	entity := job.Entity
	key := e.mapper.RemoteNaturalKey(entity, remote)

	// inventory levels have no id of their own
	if entity == integration.EntityInventory && remote.ID() == "" && key != "" {
		if withID, err := sjson.SetBytes(remote, "id", key); err == nil {
			remote = withID
		}
	}
	remoteID := remote.ID()

	incoming, err := e.mapper.ToLocalFields(entity, remote)
	if err != nil {
		return e.recordError(run, integration.ActionUpdate, "", remoteID, key, err)
	}

	match, err := e.mapper.MatchLocal(ctx, job.InstanceID, entity, remote)
	if errors.Is(err, integration.ErrNoMatch) {
		rec, err := e.Local.Create(ctx, entity, incoming)
		if err != nil {
			return e.recordError(run, integration.ActionCreate, "", remoteID, key, err)
		}
		if err := e.link(ctx, run, nil, rec.ID, remote, key, incoming); err != nil {
			return e.recordError(run, integration.ActionCreate, rec.ID, remoteID, key, err)
		}
		return integration.NewSyncLogEntry(job, integration.ActionCreate, rec.ID, remoteID, key, incoming.Keys(), nil), nil
	}
	if err != nil {
		return e.recordError(run, integration.ActionUpdate, "", remoteID, key, err)
	}

	rec := match.Record
	current, err := e.mapper.Canonical(entity, rec.Fields)
	if err != nil {
		return e.recordError(run, integration.ActionUpdate, rec.ID, remoteID, key, err)
	}
	current = current.Only(e.mapper.ComparableFields(entity, integration.DirectionImport))

	var baseline integration.FieldSet
	if match.Ref != nil {
		baseline = match.Ref.Baseline
	}
	diff := integration.Reconcile(incoming, current, baseline, remote.UpdatedAt(), rec.UpdatedAt)

	action := integration.ActionUnchanged
	if !diff.IsEmpty() {
		if _, err := e.Local.Update(ctx, entity, rec.ID, diff.Changes); err != nil {
			return e.recordError(run, integration.ActionUpdate, rec.ID, remoteID, key, err)
		}
		action = integration.ActionUpdate
	}

	agreed := agreedFields(incoming, current.Merge(diff.Changes))
	if err := e.link(ctx, run, match.Ref, rec.ID, remote, key, agreed); err != nil {
		return e.recordError(run, action, rec.ID, remoteID, key, err)
	}

	entry := integration.NewSyncLogEntry(job, action, rec.ID, remoteID, key, diff.ChangedFields(), nil)
	entry.Message = conflictMessage(diff)
	return entry, nil
}

// importRecords imports every record a remote resource stands for, the
// variants of a product. The last entry is returned for the caller to
// record.
func (e *SyncEngine) importRecords(ctx context.Context, run *jobRun, payload integration.RemotePayload) (*integration.SyncLogEntry, error) {
	records, err := integration.RecordsOf(run.job.Entity, payload)
	if err != nil {
		return e.recordError(run, integration.ActionUpdate, "", payload.ID(), "", err)
	}
	if len(records) == 0 {
		entry := integration.NewSyncLogEntry(run.job, integration.ActionSkip, "", payload.ID(), "", nil, nil)
		entry.Message = "resource has no records to sync"
		return entry, nil
	}
	for _, rec := range records[:len(records)-1] {
		entry, err := e.importRecord(ctx, run, rec)
		if err != nil {
			return nil, err
		}
		if err := e.record(ctx, run, entry); err != nil {
			return nil, err
		}
	}
	return e.importRecord(ctx, run, records[len(records)-1])
}

// importParentOrder re-imports the order a refund belongs to
func (e *SyncEngine) importParentOrder(ctx context.Context, run *jobRun, payload integration.RemotePayload) (*integration.SyncLogEntry, error) {
	orderID := payload.Get("order_id").String()
	if orderID == "" {
		err := fmt.Errorf("%w: refund %s has no order_id", integration.ErrValidation, payload.ID())
		return e.recordError(run, integration.ActionUpdate, "", "", "", err)
	}
	order, err := run.client.Get(ctx, integration.EntityOrder, orderID)
	if err != nil {
		return e.recordError(run, integration.ActionUpdate, "", orderID, "", err)
	}
	return e.importRecord(ctx, run, order)
}

// deactivateRecord archives the local counterpart of a record deleted
// remotely. A record that was never linked is skipped without error.
func (e *SyncEngine) deactivateRecord(ctx context.Context, run *jobRun, payload integration.RemotePayload) (*integration.SyncLogEntry, error) {
	job := run.job
	remoteID := payload.ID()
	if remoteID == "" {
		err := fmt.Errorf("%w: deletion notice has no id", integration.ErrValidation)
		return e.recordError(run, integration.ActionDeactivate, "", "", "", err)
	}

	refs, err := e.deletedRefs(ctx, job, remoteID)
	if err != nil {
		return e.recordError(run, integration.ActionDeactivate, "", remoteID, "", err)
	}
	if len(refs) == 0 {
		entry := integration.NewSyncLogEntry(job, integration.ActionSkip, "", remoteID, "", nil, nil)
		entry.Message = "no linked local record"
		return entry, nil
	}

	var entry *integration.SyncLogEntry
	for i := range refs {
		ref := &refs[i]
		if err := e.Local.Deactivate(ctx, job.Entity, ref.LocalID); err != nil {
			entry, err = e.recordError(run, integration.ActionDeactivate, ref.LocalID, ref.RemoteID, ref.NaturalKey, err)
			if err != nil {
				return nil, err
			}
		} else {
			entry = integration.NewSyncLogEntry(job, integration.ActionDeactivate, ref.LocalID, ref.RemoteID, ref.NaturalKey, []string{"active"}, nil)
		}
		// all but the last entry are recorded here, the caller records the last
		if i < len(refs)-1 {
			if err := e.record(ctx, run, entry); err != nil {
				return nil, err
			}
		}
	}
	return entry, nil
}

// deletedRefs returns the cross references a deletion notice covers: every
// variant record of a deleted product, or the single linked record.
func (e *SyncEngine) deletedRefs(ctx context.Context, job *integration.SyncJob, remoteID string) ([]integration.CrossReference, error) {
	if job.Entity == integration.EntityProduct {
		refs, err := e.Refs.FindByRemoteParent(ctx, job.InstanceID, job.Entity, remoteID)
		if err != nil || len(refs) > 0 {
			return refs, err
		}
	}
	ref, err := e.Refs.FindByRemoteID(ctx, job.InstanceID, job.Entity, remoteID)
	if errors.Is(err, integration.ErrCrossReferenceNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []integration.CrossReference{*ref}, nil
}

// ---------------------------------------------------------------------------
// Export
// ---------------------------------------------------------------------------

// exportRecord brings the remote store in line with one local record
func (e *SyncEngine) exportRecord(ctx context.Context, run *jobRun, rec *integration.LocalRecord) (*integration.SyncLogEntry, error) {
	job := run.job
	entity := job.Entity

	fields, err := e.mapper.Canonical(entity, rec.Fields)
	key := e.mapper.NaturalKeyOf(entity, rec.Fields)
	if err != nil {
		return e.recordError(run, integration.ActionUpdate, rec.ID, "", key, err)
	}

	match, err := e.mapper.MatchRemote(ctx, job.InstanceID, entity, rec, run.client)
	if errors.Is(err, integration.ErrNoMatch) {
		return e.exportCreate(ctx, run, rec, fields, key)
	}
	if err != nil {
		return e.recordError(run, integration.ActionUpdate, rec.ID, "", key, err)
	}

	remoteID := match.Payload.ID()
	current := e.mapper.RemoteView(entity, match.Payload)
	outgoing := fields.Only(e.mapper.ComparableFields(entity, integration.DirectionExport))

	var baseline integration.FieldSet
	if match.Ref != nil {
		baseline = match.Ref.Baseline
	}
	diff := integration.Reconcile(outgoing, current, baseline, rec.UpdatedAt, match.Payload.UpdatedAt())

	action := integration.ActionUnchanged
	after := current
	if !diff.IsEmpty() {
		payload, err := e.mapper.ToRemotePayload(entity, fields, diff.ChangedFields(), match.Payload)
		if err != nil {
			return e.recordError(run, integration.ActionUpdate, rec.ID, remoteID, key, err)
		}
		updated, err := run.client.Update(ctx, entity, remoteID, payload)
		if err != nil {
			return e.recordError(run, integration.ActionUpdate, rec.ID, remoteID, key, err)
		}
		after = current.Merge(e.mapper.RemoteView(entity, updated))
		action = integration.ActionUpdate
	}

	if err := e.link(ctx, run, match.Ref, rec.ID, match.Payload, key, agreedFields(fields, after)); err != nil {
		return e.recordError(run, action, rec.ID, remoteID, key, err)
	}

	entry := integration.NewSyncLogEntry(job, action, rec.ID, remoteID, key, diff.ChangedFields(), nil)
	entry.Message = conflictMessage(diff)
	return entry, nil
}

// exportCreate creates the remote counterpart of a local record and reads
// the fields the remote platform assigns (order numbers, inventory item
// ids) back into the local record.
func (e *SyncEngine) exportCreate(ctx context.Context, run *jobRun, rec *integration.LocalRecord, fields integration.FieldSet, key string) (*integration.SyncLogEntry, error) {
	job := run.job
	entity := job.Entity

	payload, err := e.mapper.ToRemotePayload(entity, fields, nil, nil)
	if err != nil {
		return e.recordError(run, integration.ActionCreate, rec.ID, "", key, err)
	}
	created, err := run.client.Create(ctx, entity, payload)
	if err != nil {
		return e.recordError(run, integration.ActionCreate, rec.ID, "", key, err)
	}

	remoteID := created.ID()
	view := e.mapper.RemoteView(entity, created)
	if key == "" {
		key = e.mapper.RemoteNaturalKey(entity, created)
	}

	backfill := make(integration.FieldSet)
	for _, name := range e.mapper.RemoteAssignedFields(entity) {
		if v := view[name]; v != "" && v != fields[name] {
			backfill[name] = v
		}
	}
	local := fields.Merge(backfill)

	// link first so a failed backfill never leads to a second remote create
	if err := e.link(ctx, run, nil, rec.ID, created, key, agreedFields(local, view)); err != nil {
		return e.recordError(run, integration.ActionCreate, rec.ID, remoteID, key, err)
	}
	if len(backfill) > 0 {
		if _, err := e.Local.Update(ctx, entity, rec.ID, backfill); err != nil {
			return e.recordError(run, integration.ActionCreate, rec.ID, remoteID, key, err)
		}
		run.log.Debug("Remote assigned fields written back", zap.String("local_id", rec.ID), zap.Strings("fields", backfill.Keys()))
	}
	return integration.NewSyncLogEntry(job, integration.ActionCreate, rec.ID, remoteID, key, outgoingKeys(fields, e.mapper.ComparableFields(entity, integration.DirectionExport)), nil), nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// link creates or refreshes the cross reference of a synced pair. The
// baseline only records fields both sides now agree on.
func (e *SyncEngine) link(ctx context.Context, run *jobRun, ref *integration.CrossReference, localID string, remote integration.RemotePayload, key string, agreed integration.FieldSet) error {
	if ref == nil {
		created, err := integration.NewCrossReference(run.job.InstanceID, run.job.Entity, localID, remote.ID(), key, agreed)
		if err != nil {
			return err
		}
		ref = created
	} else {
		ref.RecordSync(agreed, key)
	}
	if parent := integration.ParentID(run.job.Entity, remote); parent != "" {
		ref.RemoteParentID = parent
	}
	return e.Refs.Save(ctx, ref)
}

// agreedFields returns the fields of a whose value equals the one in b
func agreedFields(a, b integration.FieldSet) integration.FieldSet {
	out := make(integration.FieldSet, len(a))
	for k, v := range a {
		if other, ok := b[k]; ok && other == v {
			out[k] = v
		}
	}
	return out
}

func outgoingKeys(fields integration.FieldSet, names []string) []string {
	return fields.Only(names).Keys()
}

func conflictMessage(diff integration.FieldDiff) string {
	if len(diff.Conflicts) == 0 {
		return ""
	}
	return "concurrent edits resolved by modification time: " + strings.Join(diff.Conflicts, ", ")
}
