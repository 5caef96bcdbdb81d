package notify

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/aonescu/kubedit/internal/resource"
)

type Kind string

const (
	KindReloadable Kind = "reloadable"
	KindDeleted    Kind = "deleted"
	KindPushable   Kind = "pushable"
	KindConflict   Kind = "conflict"
	KindError      Kind = "error"
)

// Text is the one-line text of a notification kind.
func Text(kind Kind, id resource.Identity) string {
	switch kind {
	case KindReloadable:
		return fmt.Sprintf("%s %s changed on the cluster. Reload?", id.Kind, id.Name)
	case KindDeleted:
		return fmt.Sprintf("%s %s was deleted on the cluster.", id.Kind, id.Name)
	case KindPushable:
		return fmt.Sprintf("%s %s has changes. Push to cluster?", id.Kind, id.Name)
	case KindConflict:
		return fmt.Sprintf("%s %s was modified on the cluster. Reload before pushing.", id.Kind, id.Name)
	default:
		return fmt.Sprintf("%s %s could not be synced with the cluster.", id.Kind, id.Name)
	}
}

// Notice addresses a notification to one document.
type Notice struct {
	Document string
	Identity resource.Identity
}

// Notifier is the user-facing notification sink. Show and hide are idempotent per kind
// per document, and none of them fail. Showing a kind that is already shown keeps it.
type Notifier interface {
	ShowReloadable(n Notice)
	ShowDeleted(n Notice)
	ShowPushable(n Notice)
	ShowConflict(n Notice)
	ShowError(n Notice, message string, cause error)
	Hide(n Notice, kind Kind)
	HideAll(n Notice)
}

// Active is one notification currently shown for a document.
type Active struct {
	Kind     Kind      `json:"kind"`
	Identity string    `json:"identity"`
	Message  string    `json:"message,omitempty"`
	Cause    string    `json:"cause,omitempty"`
	Since    time.Time `json:"since"`
}

// Recorder keeps the set of shown notifications in memory.
type Recorder struct {
	mu     sync.RWMutex
	active map[string]map[Kind]Active
	shown  map[Kind]int
}

func NewRecorder() *Recorder {
	return &Recorder{
		active: make(map[string]map[Kind]Active),
		shown:  make(map[Kind]int),
	}
}

func (r *Recorder) ShowReloadable(n Notice) { r.show(n, KindReloadable, "", nil) }
func (r *Recorder) ShowDeleted(n Notice) { r.show(n, KindDeleted, "", nil) }
func (r *Recorder) ShowPushable(n Notice) { r.show(n, KindPushable, "", nil) }
func (r *Recorder) ShowConflict(n Notice) { r.show(n, KindConflict, "", nil) }

func (r *Recorder) ShowError(n Notice, message string, cause error) {
	r.show(n, KindError, message, cause)
}

func (r *Recorder) Hide(n Notice, kind Kind) {
	r.hide(n, kind)
}

func (r *Recorder) HideAll(n Notice) {
	r.hideAll(n)
}

// show reports whether the notification was not shown before or now carries another
// message.
func (r *Recorder) show(n Notice, kind Kind, message string, cause error) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	kinds, exists := r.active[n.Document]
	if !exists {
		kinds = make(map[Kind]Active)
		r.active[n.Document] = kinds
	}
	previous, shown := kinds[kind]

	if message == "" {
		message = Text(kind, n.Identity)
	}
	entry := Active{
		Kind:     kind,
		Identity: n.Identity.String(),
		Message:  message,
		Since:    time.Now(),
	}
	if cause != nil {
		entry.Cause = cause.Error()
	}
	if shown {
		entry.Since = previous.Since
	}
	kinds[kind] = entry
	if !shown {
		r.shown[kind]++
	}
	return !shown || previous.Message != message
}

// hide reports whether kind was shown.
func (r *Recorder) hide(n Notice, kind Kind) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	kinds := r.active[n.Document]
	if _, shown := kinds[kind]; !shown {
		return false
	}
	delete(kinds, kind)
	if len(kinds) == 0 {
		delete(r.active, n.Document)
	}
	return true
}

// hideAll reports whether anything was shown.
func (r *Recorder) hideAll(n Notice) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	kinds := r.active[n.Document]
	delete(r.active, n.Document)
	return len(kinds) > 0
}

// Active returns the notifications shown for document ordered by kind.
func (r *Recorder) Active(document string) []Active {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Active, 0, len(r.active[document]))
	for _, entry := range r.active[document] {
		result = append(result, entry)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Kind < result[j].Kind })
	return result
}

func (r *Recorder) IsShown(document string, kind Kind) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, shown := r.active[document][kind]
	return shown
}

// ShownCount is how many times kind went from hidden to shown, across all documents.
func (r *Recorder) ShownCount(kind Kind) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.shown[kind]
}

// Multi fans every call out to each notifier in order.
type Multi []Notifier

func (m Multi) ShowReloadable(n Notice) {
	for _, notifier := range m {
		notifier.ShowReloadable(n)
	}
}

func (m Multi) ShowDeleted(n Notice) {
	for _, notifier := range m {
		notifier.ShowDeleted(n)
	}
}

func (m Multi) ShowPushable(n Notice) {
	for _, notifier := range m {
		notifier.ShowPushable(n)
	}
}

func (m Multi) ShowConflict(n Notice) {
	for _, notifier := range m {
		notifier.ShowConflict(n)
	}
}

func (m Multi) ShowError(n Notice, message string, cause error) {
	for _, notifier := range m {
		notifier.ShowError(n, message, cause)
	}
}

func (m Multi) Hide(n Notice, kind Kind) {
	for _, notifier := range m {
		notifier.Hide(n, kind)
	}
}

func (m Multi) HideAll(n Notice) {
	for _, notifier := range m {
		notifier.HideAll(n)
	}
}
