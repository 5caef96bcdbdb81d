package notify

import (
	"k8s.io/klog/v2"
)

// LogNotifier writes notifications to the log when they appear or their message changes.
type LogNotifier struct {
	state *Recorder
}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{state: NewRecorder()}
}

func (l *LogNotifier) ShowReloadable(n Notice) { l.show(n, KindReloadable) }
func (l *LogNotifier) ShowDeleted(n Notice) { l.show(n, KindDeleted) }
func (l *LogNotifier) ShowPushable(n Notice) { l.show(n, KindPushable) }
func (l *LogNotifier) ShowConflict(n Notice) { l.show(n, KindConflict) }

func (l *LogNotifier) ShowError(n Notice, message string, cause error) {
	if l.state.show(n, KindError, message, cause) {
		klog.ErrorS(cause, message, "document", n.Document, "identity", n.Identity.String())
	}
}

func (l *LogNotifier) Hide(n Notice, kind Kind) {
	if l.state.hide(n, kind) {
		klog.V(3).InfoS("Cleared notification", "document", n.Document, "kind", kind)
	}
}

func (l *LogNotifier) HideAll(n Notice) {
	if l.state.hideAll(n) {
		klog.V(3).InfoS("Cleared notifications", "document", n.Document)
	}
}

func (l *LogNotifier) show(n Notice, kind Kind) {
	if l.state.show(n, kind, "", nil) {
		klog.InfoS(Text(kind, n.Identity), "document", n.Document, "identity", n.Identity.String())
	}
}
