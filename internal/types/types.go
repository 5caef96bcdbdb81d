package types

import "time"

type Action string

const (
	ActionDecide Action = "decide"
	ActionPush   Action = "push"
	ActionReload Action = "reload"
	ActionRename Action = "rename"
	ActionError  Action = "error"
)

// SyncEvent records one reconciliation step of an edited document
type SyncEvent struct {
	Document  string    `json:"document"`
	Kind      string    `json:"kind"`
	Namespace string    `json:"namespace"`
	Name      string    `json:"name"`
	Version   string    `json:"version"`
	Verdict   string    `json:"verdict"`
	Action    Action    `json:"action"`
	Detail    string    `json:"detail,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
