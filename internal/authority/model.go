package authority

// FieldPath addresses a field inside a resource object, one segment per map key.
// Segments may themselves contain dots (annotation keys).
type FieldPath []string

// OwnerMapping lists the fields a server-side actor writes on its own.
type OwnerMapping struct {
	Owner  string
	Fields []FieldPath
}

const lastAppliedAnnotation = "kubectl.kubernetes.io/last-applied-configuration"

// OwnerTable holds the bookkeeping fields that are populated by the cluster rather than
// by the author of a document.
var OwnerTable = []OwnerMapping{
	{
		Owner: "kube-apiserver",
		Fields: []FieldPath{
			{"metadata", "resourceVersion"},
			{"metadata", "uid"},
			{"metadata", "generation"},
			{"metadata", "creationTimestamp"},
			{"metadata", "managedFields"},
			{"metadata", "selfLink"},
		},
	},
	{
		Owner: "garbage-collector",
		Fields: []FieldPath{
			{"metadata", "deletionTimestamp"},
			{"metadata", "deletionGracePeriodSeconds"},
		},
	},
	{
		Owner: "kubectl",
		Fields: []FieldPath{
			{"metadata", "annotations", lastAppliedAnnotation},
		},
	},
	{
		Owner: "deployment-controller",
		Fields: []FieldPath{
			{"metadata", "annotations", "deployment.kubernetes.io/revision"},
		},
	},
	{
		Owner: "status-writers",
		Fields: []FieldPath{
			{"status"},
		},
	},
}
