package models

import (
	"path"
	"strings"
)

// Stage is a named folder of Task Documents. Membership is the state.
type Stage string

const (
	StageRoot            Stage = ""
	StageRaw             Stage = "Needs_Action"
	StagePendingApproval Stage = "Pending_Approval"
	StageApproved        Stage = "Approved"
	StageDone            Stage = "Done"
	StagePlans           Stage = "Plans"
	StageLogs            Stage = "Logs"
	StageUpdates         Stage = "Updates"
	StageInbox           Stage = "Inbox"
)

// DraftSubStages are the per-channel folders under Pending_Approval
var DraftSubStages = []string{"email", "social", "payments"}

// Sub returns a nested stage
func (s Stage) Sub(name string) Stage {
	return Stage(path.Join(string(s), name))
}

// DraftingStages returns every stage that can hold drafts awaiting or past review
func DraftingStages() []Stage {
	stages := []Stage{StagePendingApproval}
	for _, sub := range DraftSubStages {
		stages = append(stages, StagePendingApproval.Sub(sub))
	}
	return append(stages, StageApproved)
}

// Ref identifies a file within a stage
type Ref struct {
	Stage Stage
	Name  string
}

// NewRef creates a ref
func NewRef(stage Stage, name string) Ref {
	return Ref{Stage: stage, Name: name}
}

// Stem returns the name without its extension
func (r Ref) Stem() string {
	return strings.TrimSuffix(r.Name, path.Ext(r.Name))
}

// String renders stage/name
func (r Ref) String() string {
	if r.Stage == StageRoot {
		return r.Name
	}
	return string(r.Stage) + "/" + r.Name
}
