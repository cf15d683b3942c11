// Package property owns the active property, its checklist, and the toggle
// operation that mutates it.
package property

import "github.com/sells-group/safe-zone/internal/model"

// ToggleTask returns a copy of p with the completion of task taskID flipped.
// p is never modified. An unknown taskID yields an equal copy and false.
func ToggleTask(p model.Property, taskID int) (model.Property, bool) {
	out := p.Clone()
	for i := range out.Tasks {
		if out.Tasks[i].ID == taskID {
			out.Tasks[i].Completed = !out.Tasks[i].Completed
			return out, true
		}
	}
	return out, false
}
