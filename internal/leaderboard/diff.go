package leaderboard

import "github.com/google/uuid"

type RowOpKind string

const (
	OpAdd    RowOpKind = "add"
	OpUpdate RowOpKind = "update"
	OpRemove RowOpKind = "remove"
)

// RowOp is one incremental change to a rendered leaderboard. Remove ops carry
// only the key.
type RowOp struct {
	Kind RowOpKind `json:"op"`
	Key  uuid.UUID `json:"key"`
	Row  *Row      `json:"row,omitempty"`
}

// DiffRows computes the keyed changes between two row lists. Identity is
// Row.Key, so a rank shuffle of an existing row yields an update, never a
// remove+add pair. Add/update ops follow the order of next; removals come
// last.
func DiffRows(prev, next []Row) []RowOp {
	prevByKey := make(map[uuid.UUID]Row, len(prev))
	for _, r := range prev {
		prevByKey[r.Key] = r
	}

	var ops []RowOp
	seen := make(map[uuid.UUID]struct{}, len(next))

	for i := range next {
		r := next[i]
		seen[r.Key] = struct{}{}

		old, ok := prevByKey[r.Key]
		if !ok {
			ops = append(ops, RowOp{Kind: OpAdd, Key: r.Key, Row: &next[i]})
			continue
		}
		if old != r {
			ops = append(ops, RowOp{Kind: OpUpdate, Key: r.Key, Row: &next[i]})
		}
	}

	for _, r := range prev {
		if _, ok := seen[r.Key]; !ok {
			ops = append(ops, RowOp{Kind: OpRemove, Key: r.Key})
		}
	}

	return ops
}
