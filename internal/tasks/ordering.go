package tasks

import "sort"

// Order sorts a snapshot for presentation: incomplete tasks first, then each
// group newest-first. A task whose server timestamp has not resolved yet
// (zero time) sinks to the end of its group. The sort is stable, so equal
// keys keep the snapshot's own order, and re-applying Order to its output
// changes nothing.
func Order(ts []Task) []Task {
	out := make([]Task, len(ts))
	copy(out, ts)

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Completed != out[j].Completed {
			return !out[i].Completed
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	return out
}
