package engine

import (
	"fmt"

	"github.com/aonescu/kubedit/internal/resource"
)

type Verdict string

const (
	// Indeterminate: the local copy is unusable or the server state is not known yet.
	Indeterminate Verdict = "Indeterminate"
	InSync        Verdict = "InSync"
	// Pushable: the local copy carries edits that nobody on the server is ahead of.
	Pushable Verdict = "Pushable"
	// Outdated: the server moved past the version the local copy was derived from.
	Outdated Verdict = "Outdated"
	// Conflict: the server object is gone while the local copy has unsaved edits.
	Conflict Verdict = "Conflict"
	// Deleted: the server object is gone and nothing local would be lost.
	Deleted Verdict = "Deleted"
)

// Input is everything a decision depends on. LastSynced is the local copy as it was
// after the last load, reload or push.
type Input struct {
	Local         *resource.Snapshot
	LastSynced    *resource.Snapshot
	Server        *resource.Snapshot
	ServerExists  bool
	ServerDeleted bool
}

type Decision struct {
	Verdict Verdict `json:"verdict"`

	// AutoReloadable is set on Outdated decisions when the local copy can be replaced by
	// the server copy without losing edits.
	AutoReloadable  bool   `json:"auto_reloadable,omitempty"`
	HasLocalChanges bool   `json:"has_local_changes"`
	Reason          string `json:"reason"`
}

// Decide classifies the relationship between the local, last synced and server copies.
// Rules apply in order and the first match wins: deletion, outdated, pushable, in sync.
// It never fails; missing inputs yield Indeterminate.
func Decide(in Input) Decision {
	if in.Local == nil {
		return Decision{Verdict: Indeterminate, Reason: "local document could not be read"}
	}
	if in.ServerExists && in.Server == nil {
		return Decision{Verdict: Indeterminate, Reason: "server state is unknown"}
	}

	changed := HasLocalChanges(in.Local, in.LastSynced)
	id := in.Local.Identity()

	if in.ServerDeleted || (!in.ServerExists && in.Local.Version() != "") {
		if !changed {
			return Decision{
				Verdict: Deleted,
				Reason:  fmt.Sprintf("%s was deleted on the cluster", id),
			}
		}
		return Decision{
			Verdict:         Conflict,
			HasLocalChanges: true,
			Reason:          fmt.Sprintf("%s was deleted on the cluster while it has unsaved edits", id),
		}
	}

	if in.ServerExists &&
		resource.VersionNewer(in.Server.Version(), in.Local.Version()) &&
		!resource.SemanticallyEqual(in.Server, in.Local) {
		return Decision{
			Verdict:         Outdated,
			AutoReloadable:  !changed,
			HasLocalChanges: changed,
			Reason: fmt.Sprintf("%s changed on the cluster (version %s, editing %s)",
				id, in.Server.Version(), in.Local.Version()),
		}
	}

	if !in.ServerExists {
		return Decision{
			Verdict:         Pushable,
			HasLocalChanges: changed,
			Reason:          fmt.Sprintf("%s does not exist on the cluster yet", id),
		}
	}

	if changed {
		return Decision{
			Verdict:         Pushable,
			HasLocalChanges: true,
			Reason:          fmt.Sprintf("%s has unsaved edits", id),
		}
	}

	return Decision{
		Verdict: InSync,
		Reason:  fmt.Sprintf("%s is in sync", id),
	}
}

// HasLocalChanges reports whether local was edited since it was last synced. A copy
// that was never synced counts as edited.
func HasLocalChanges(local, lastSynced *resource.Snapshot) bool {
	if lastSynced == nil {
		return true
	}
	return !resource.SemanticallyEqual(local, lastSynced)
}
