package monitor

import (
	"encoding/json"
	"fmt"

	"github.com/shareguard/shareguard/pkg/acl"
	"github.com/shareguard/shareguard/pkg/detector"
	"github.com/shareguard/shareguard/pkg/notify"
	"github.com/shareguard/shareguard/pkg/store"
)

// changeRecords flattens a change set into one persisted record per
// category. Every record carries the set's overall severity and message.
func changeRecords(cs *detector.ChangeSet, severity acl.Severity) []*store.ChangeRecord {
	message := cs.Message()
	var records []*store.ChangeRecord

	add := func(ct store.ChangeType, prev, cur map[string]any) {
		records = append(records, &store.ChangeRecord{
			Path:          cs.Path,
			ChangeType:    ct,
			PreviousState: prev,
			CurrentState:  cur,
			Severity:      severity,
			Message:       message,
		})
	}

	if cs.OwnerChanged != nil {
		add(store.ChangeOwner,
			map[string]any{"owner": cs.OwnerChanged.Old},
			map[string]any{"owner": cs.OwnerChanged.New})
	}
	if cs.InheritanceChanged != nil {
		add(store.ChangeInheritance,
			map[string]any{"inheritance_enabled": cs.InheritanceChanged.Old},
			map[string]any{"inheritance_enabled": cs.InheritanceChanged.New})
	}
	if len(cs.Added) > 0 {
		add(store.ChangePermissionAdded,
			nil,
			map[string]any{"aces": toAnySlice(cs.Added)})
	}
	if len(cs.Removed) > 0 {
		add(store.ChangePermissionRemoved,
			map[string]any{"aces": toAnySlice(cs.Removed)},
			nil)
	}
	if len(cs.Modified) > 0 {
		add(store.ChangePermissionModified,
			map[string]any{"aces": previousOfModified(cs.Modified)},
			map[string]any{"aces": currentOfModified(cs.Modified)})
	}
	return records
}

// changeEnvelope builds the outbound notification for a significant
// change set. The data payload follows the stable permission_change
// shape; data.path additionally feeds subscription path filters.
func changeEnvelope(cs *detector.ChangeSet, first *store.ChangeRecord, severity acl.Severity) *notify.Envelope {
	detail := cs.Detail()

	changes := make([]map[string]any, 0, len(detail.Items))
	for _, item := range detail.Items {
		entry := map[string]any{
			"type":        item.Type,
			"icon":        item.Icon,
			"description": item.Description,
			"impact":      item.Impact,
		}
		if len(item.Affected) > 0 {
			entry["users_affected"] = item.Affected
		}
		changes = append(changes, entry)
	}

	data := map[string]any{
		"change_id":      first.ID,
		"change_type":    string(first.ChangeType),
		"previous_state": first.PreviousState,
		"current_state":  first.CurrentState,
		"detected_time":  first.DetectedAt,
		"path":           cs.Path,
		"folder": map[string]any{
			"name":      detail.Folder,
			"full_path": detail.FullPath,
		},
		"summary": map[string]any{
			"changes_detected": detail.Summary.TotalChanges,
			"severity_level":   string(detail.Summary.Severity),
		},
		"changes": changes,
	}

	title := fmt.Sprintf("Permissions changed on %s", detail.Folder)
	return notify.NewEnvelope(notify.TypePermissionChange, title, cs.Message(), severity, data)
}

// toAnySlice converts typed change slices into plain JSON-shaped values
// for the serialized state columns.
func toAnySlice[T any](items []T) []any {
	out := make([]any, 0, len(items))
	for _, item := range items {
		out = append(out, toMap(item))
	}
	return out
}

func previousOfModified(mods []detector.Modification) []any {
	out := make([]any, 0, len(mods))
	for _, m := range mods {
		out = append(out, map[string]any{
			"trustee":     m.Trustee.FullName,
			"permissions": toMap(m.OldPermissions),
		})
	}
	return out
}

func currentOfModified(mods []detector.Modification) []any {
	out := make([]any, 0, len(mods))
	for _, m := range mods {
		out = append(out, map[string]any{
			"trustee":     m.Trustee.FullName,
			"permissions": toMap(m.NewPermissions),
		})
	}
	return out
}

func toMap(v any) map[string]any {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}
