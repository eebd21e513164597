package trial

import "fmt"

// State is a trial lifecycle state. Transitions are pending -> complete or
// pending -> failed; terminal states never change again.
type State string

const (
	Pending  State = "pending"
	Complete State = "complete"
	Failed   State = "failed"
)

func (s State) Terminal() bool { return s == Complete || s == Failed }

// Direction is the objective comparison direction, fixed per experiment at
// creation.
type Direction string

const (
	Minimize Direction = "minimize"
	Maximize Direction = "maximize"
)

func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case Minimize, Maximize:
		return Direction(s), nil
	case "":
		return Minimize, nil
	}
	return "", fmt.Errorf("invalid direction %q (want minimize or maximize)", s)
}

// Trial is one concrete parameter assignment drawn from a search space,
// keyed by full dotted parameter path. The orchestrator creates trials and
// is the sole writer of state transitions; once persisted, the result store
// is the system of record.
type Trial struct {
	ID            string         `json:"id"`
	ExperimentKey string         `json:"experiment_key"`
	Values        map[string]any `json:"values"`
	State         State          `json:"state" enum:"pending,complete,failed"`
	Objective     *float64       `json:"objective,omitempty"`
	Reason        string         `json:"reason,omitempty"`
	CreatedAt     string         `json:"created_at" format:"date-time"`
	CompletedAt   string         `json:"completed_at,omitempty" format:"date-time"`
}

// Better reports whether a is a strictly better completed trial than b under
// dir. Ties on objective break toward the earlier completion timestamp;
// RFC3339 timestamps compare correctly as strings.
func Better(a, b Trial, dir Direction) bool {
	if a.Objective == nil {
		return false
	}
	if b.Objective == nil {
		return true
	}
	if *a.Objective != *b.Objective {
		if dir == Maximize {
			return *a.Objective > *b.Objective
		}
		return *a.Objective < *b.Objective
	}
	return a.CompletedAt < b.CompletedAt
}
