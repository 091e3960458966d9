package audit

// FileOp is the kind of a filesystem notification.
type FileOp int

const (
	OpChanged FileOp = iota + 1
	OpCreated
	OpDeleted
	OpRenamed
)

func (op FileOp) String() string {
	switch op {
	case OpChanged:
		return "changed"
	case OpCreated:
		return "created"
	case OpDeleted:
		return "deleted"
	case OpRenamed:
		return "renamed"
	default:
		return "unknown"
	}
}
