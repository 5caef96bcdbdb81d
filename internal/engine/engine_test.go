package engine

import (
	"testing"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"

	"github.com/aonescu/kubedit/internal/resource"
)

func deployment(replicas int64, version string) *resource.Snapshot {
	obj := &unstructured.Unstructured{Object: map[string]interface{}{
		"apiVersion": "apps/v1",
		"kind":       "Deployment",
		"metadata": map[string]interface{}{
			"name":      "foo",
			"namespace": "ns",
		},
		"spec": map[string]interface{}{
			"replicas": replicas,
		},
	}}
	if version != "" {
		obj.SetResourceVersion(version)
	}
	return resource.NewSnapshot(obj)
}

func TestDecide_DeletionPriority(t *testing.T) {
	local := deployment(2, "1")

	for _, server := range []*resource.Snapshot{nil, deployment(2, "1"), deployment(5, "9")} {
		decision := Decide(Input{
			Local:         local,
			LastSynced:    local,
			Server:        server,
			ServerExists:  server != nil,
			ServerDeleted: true,
		})
		if decision.Verdict != Deleted {
			t.Errorf("Expected Deleted, got %s", decision.Verdict)
		}
	}
}

func TestDecide_DeletedWithLocalEdits(t *testing.T) {
	decision := Decide(Input{
		Local:         deployment(3, "1"),
		LastSynced:    deployment(2, "1"),
		ServerDeleted: true,
	})
	if decision.Verdict != Conflict {
		t.Errorf("Expected Conflict, got %s", decision.Verdict)
	}
	if !decision.HasLocalChanges {
		t.Error("Expected local changes to be reported")
	}
}

func TestDecide_VanishedObject(t *testing.T) {
	local := deployment(2, "4")

	decision := Decide(Input{Local: local, LastSynced: local})
	if decision.Verdict != Deleted {
		t.Errorf("Expected Deleted for an absent object with a version token, got %s", decision.Verdict)
	}
}

func TestDecide_AutoReload(t *testing.T) {
	local := deployment(2, "1")

	decision := Decide(Input{
		Local:        local,
		LastSynced:   local,
		Server:       deployment(4, "2"),
		ServerExists: true,
	})
	if decision.Verdict != Outdated {
		t.Fatalf("Expected Outdated, got %s", decision.Verdict)
	}
	if !decision.AutoReloadable {
		t.Error("Expected an unedited copy to be auto reloadable")
	}
}

func TestDecide_ConflictSurfacing(t *testing.T) {
	decision := Decide(Input{
		Local:        deployment(3, "1"),
		LastSynced:   deployment(2, "1"),
		Server:       deployment(4, "2"),
		ServerExists: true,
	})
	if decision.Verdict != Outdated {
		t.Fatalf("Expected Outdated, got %s", decision.Verdict)
	}
	if decision.AutoReloadable {
		t.Error("Local edits must never be silently overwritten")
	}
}

func TestDecide_NewerServerWithSamePayload(t *testing.T) {
	local := deployment(2, "1")

	decision := Decide(Input{
		Local:        local,
		LastSynced:   local,
		Server:       deployment(2, "5"),
		ServerExists: true,
	})
	if decision.Verdict != InSync {
		t.Errorf("Expected InSync, got %s", decision.Verdict)
	}
}

func TestDecide_Pushable(t *testing.T) {
	decision := Decide(Input{
		Local:        deployment(3, "1"),
		LastSynced:   deployment(2, "1"),
		Server:       deployment(2, "1"),
		ServerExists: true,
	})
	if decision.Verdict != Pushable {
		t.Errorf("Expected Pushable, got %s", decision.Verdict)
	}
}

func TestDecide_NeverPushed(t *testing.T) {
	local := deployment(1, "")

	decision := Decide(Input{Local: local, LastSynced: local})
	if decision.Verdict != Pushable {
		t.Errorf("Expected Pushable for a copy that never reached the cluster, got %s", decision.Verdict)
	}
}

func TestDecide_Indeterminate(t *testing.T) {
	if got := Decide(Input{}).Verdict; got != Indeterminate {
		t.Errorf("Expected Indeterminate without a local copy, got %s", got)
	}
	local := deployment(1, "1")
	if got := Decide(Input{Local: local, LastSynced: local, ServerExists: true}).Verdict; got != Indeterminate {
		t.Errorf("Expected Indeterminate without a server copy, got %s", got)
	}
}

// Every combination of local edit state and server state yields exactly one verdict.
func TestDecide_Totality(t *testing.T) {
	synced := deployment(2, "1")
	edited := deployment(3, "1")

	type serverState struct {
		name    string
		server  *resource.Snapshot
		exists  bool
		deleted bool
	}
	servers := []serverState{
		{name: "deleted", deleted: true},
		{name: "same version", server: deployment(2, "1"), exists: true},
		{name: "newer version", server: deployment(7, "2"), exists: true},
	}
	locals := []struct {
		name  string
		local *resource.Snapshot
	}{
		{name: "unedited", local: synced},
		{name: "edited", local: edited},
	}

	expected := map[string]Verdict{
		"unedited/deleted":       Deleted,
		"unedited/same version":  InSync,
		"unedited/newer version": Outdated,
		"edited/deleted":         Conflict,
		"edited/same version":    Pushable,
		"edited/newer version":   Outdated,
	}

	for _, l := range locals {
		for _, s := range servers {
			name := l.name + "/" + s.name
			t.Run(name, func(t *testing.T) {
				decision := Decide(Input{
					Local:         l.local,
					LastSynced:    synced,
					Server:        s.server,
					ServerExists:  s.exists,
					ServerDeleted: s.deleted,
				})
				if decision.Verdict != expected[name] {
					t.Errorf("Expected %s, got %s", expected[name], decision.Verdict)
				}
				if decision.Reason == "" {
					t.Error("Expected a reason")
				}
			})
		}
	}
}

func TestHasLocalChanges(t *testing.T) {
	if !HasLocalChanges(deployment(1, "1"), nil) {
		t.Error("Expected a never synced copy to count as edited")
	}
	if HasLocalChanges(deployment(1, "1"), deployment(1, "3")) {
		t.Error("Expected version token differences to be ignored")
	}
	if !HasLocalChanges(deployment(1, "1"), deployment(2, "1")) {
		t.Error("Expected payload differences to count")
	}
}
