package steel

import (
	"errors"
	"fmt"
	"time"
)

// Status enumerates steel tag lifecycle states. USED and SCRAP are terminal.
type Status string

const (
	StatusAvailable Status = "AVAILABLE"
	StatusAllocated Status = "ALLOCATED"
	StatusInUse     Status = "IN_USE"
	StatusUsed      Status = "USED"
	StatusScrap     Status = "SCRAP"
)

// Action enumerates lifecycle actions.
type Action string

const (
	ActionAllocate Action = "ALLOCATE"
	ActionIssue    Action = "ISSUE"
	ActionComplete Action = "COMPLETE"
	ActionScrap    Action = "SCRAP"
)

// transitions is the full lifecycle table; every (state, action) pair not
// listed here is illegal.
var transitions = map[Status]map[Action]Status{
	StatusAvailable: {ActionAllocate: StatusAllocated},
	StatusAllocated: {ActionIssue: StatusInUse},
	StatusInUse:     {ActionComplete: StatusUsed, ActionScrap: StatusScrap},
}

// Tag is one individually serialized steel lot.
type Tag struct {
	ID          int64
	TagNo       string
	MaterialID  int64
	Status      Status
	ProjectID   int64
	Weight      float64
	WidthMM     float64
	LengthMM    float64
	ThicknessMM float64
	IssuedAt    *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

var (
	// ErrTagNotFound indicates a missing tag id.
	ErrTagNotFound = errors.New("steel: tag not found")
	// ErrIllegalTransition indicates a (state, action) pair outside the table.
	ErrIllegalTransition = errors.New("steel: illegal transition")
	// ErrProjectRequired indicates ALLOCATE without a project.
	ErrProjectRequired = errors.New("steel: project required for allocation")
)

// IllegalTransitionError names the rejected (state, action) pair.
type IllegalTransitionError struct {
	From   Status
	Action Action
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("steel: action %s not allowed in state %s", e.Action, e.From)
}

// Is lets errors.Is treat this as ErrIllegalTransition.
func (e *IllegalTransitionError) Is(target error) bool {
	return target == ErrIllegalTransition
}

// AvailableActions lists the actions legal for a given state, used to drive
// UI menus and to pre-validate requests.
func AvailableActions(status Status) []Action {
	allowed := transitions[status]
	if len(allowed) == 0 {
		return nil
	}
	actions := make([]Action, 0, len(allowed))
	// Stable order for API output.
	for _, a := range []Action{ActionAllocate, ActionIssue, ActionComplete, ActionScrap} {
		if _, ok := allowed[a]; ok {
			actions = append(actions, a)
		}
	}
	return actions
}

// nextStatus resolves the transition table.
func nextStatus(from Status, action Action) (Status, error) {
	if to, ok := transitions[from][action]; ok {
		return to, nil
	}
	return "", &IllegalTransitionError{From: from, Action: action}
}
