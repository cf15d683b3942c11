// Package model holds the property, checklist and neighbor types.
package model

import (
	"time"

	"github.com/rotisserie/eris"
)

// Coordinate is a WGS84 point.
type Coordinate struct {
	Latitude  float64 `json:"latitude" yaml:"latitude"`
	Longitude float64 `json:"longitude" yaml:"longitude"`
}

// TaskStatus is the display state of a mitigation task.
type TaskStatus string

const (
	TaskPending TaskStatus = "pending"
	TaskDone    TaskStatus = "done"
)

// Task is a single fire-mitigation checklist item. Only Completed ever changes.
type Task struct {
	ID        int    `json:"id" yaml:"id"`
	Text      string `json:"text" yaml:"text"`
	Completed bool   `json:"completed" yaml:"completed"`
}

// Status reports the task's state.
func (t Task) Status() TaskStatus {
	if t.Completed {
		return TaskDone
	}
	return TaskPending
}

// MaxTasks caps the checklist; it is also the maximum score.
const MaxTasks = 5

// Property is a parcel with its boundary ring and mitigation checklist.
type Property struct {
	ID          string       `json:"id" yaml:"id"`
	Coordinates []Coordinate `json:"coordinates" yaml:"coordinates"`
	Center      Coordinate   `json:"center" yaml:"center"`
	Tasks       []Task       `json:"tasks" yaml:"tasks"`
	Version     int64        `json:"version" yaml:"-"`
	UpdatedAt   time.Time    `json:"updated_at" yaml:"-"`
}

// Validate checks the boundary ring, the checklist size and task id uniqueness.
func (p Property) Validate() error {
	if p.ID == "" {
		return eris.New("model: property id is required")
	}
	if len(p.Coordinates) < 3 {
		return eris.Errorf("model: property %s ring has %d points, need at least 3", p.ID, len(p.Coordinates))
	}
	if len(p.Tasks) > MaxTasks {
		return eris.Errorf("model: property %s has %d tasks, at most %d allowed", p.ID, len(p.Tasks), MaxTasks)
	}
	seen := make(map[int]bool, len(p.Tasks))
	for _, t := range p.Tasks {
		if seen[t.ID] {
			return eris.Errorf("model: property %s has duplicate task id %d", p.ID, t.ID)
		}
		seen[t.ID] = true
	}
	return nil
}

// Clone returns a deep copy so callers can never alias a published snapshot.
func (p Property) Clone() Property {
	out := p
	if p.Coordinates != nil {
		out.Coordinates = make([]Coordinate, len(p.Coordinates))
		copy(out.Coordinates, p.Coordinates)
	}
	if p.Tasks != nil {
		out.Tasks = make([]Task, len(p.Tasks))
		copy(out.Tasks, p.Tasks)
	}
	return out
}

// FindTask returns the task with the given id.
func (p Property) FindTask(id int) (Task, bool) {
	for _, t := range p.Tasks {
		if t.ID == id {
			return t, true
		}
	}
	return Task{}, false
}

// Neighbor is read-only reference data for a nearby parcel.
type Neighbor struct {
	ID         string     `json:"id" yaml:"id"`
	Completion int        `json:"completion" yaml:"completion"`
	Center     Coordinate `json:"center" yaml:"center"`
}

// ToggleEvent records a single toggle applied to a property.
type ToggleEvent struct {
	ID         string    `json:"id"`
	PropertyID string    `json:"property_id"`
	TaskID     int       `json:"task_id"`
	Completed  bool      `json:"completed"`
	Version    int64     `json:"version"`
	CreatedAt  time.Time `json:"created_at"`
}
