package audit

// Status represents the lifecycle state of an audit.
type Status string

// Audit status values persisted in the record store.
const (
	StatusQueued     Status = "queued"
	StatusInProgress Status = "in-progress"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

var allStatuses = []Status{
	StatusQueued,
	StatusInProgress,
	StatusProcessing,
	StatusCompleted,
	StatusFailed,
}

func (s Status) rank() int {
	switch s {
	case StatusQueued:
		return 0
	case StatusInProgress:
		return 1
	case StatusProcessing:
		return 2
	case StatusCompleted, StatusFailed:
		return 3
	default:
		return -1
	}
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s.rank() >= 0
}

// Terminal reports whether no further transition may leave s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// CanTransition reports whether an audit in status from may be written with
// status to. Statuses only move forward; terminal statuses accept rewrites of
// the same status (report enrichment) and nothing else.
func CanTransition(from, to Status) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	if from == to {
		return true
	}
	if from.Terminal() {
		return false
	}
	return to.rank() > from.rank()
}

// Predecessors lists every status from which a write of to is allowed.
func Predecessors(to Status) []Status {
	out := make([]Status, 0, len(allStatuses))
	for _, s := range allStatuses {
		if CanTransition(s, to) {
			out = append(out, s)
		}
	}
	return out
}
