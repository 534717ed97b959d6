package models

import "time"

// ApprovalStatus records how an audited action was authorized
type ApprovalStatus string

const (
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalAuto     ApprovalStatus = "auto"
	ApprovalManual   ApprovalStatus = "manual"
)

// Result values used by the engine. Providers may record free text instead.
const (
	ResultSuccess = "success"
	ResultFailed  = "failed"
	ResultSkipped = "skipped"
)

// AuditLogEntry is one immutable record in the daily audit ledger
type AuditLogEntry struct {
	Timestamp      time.Time      `json:"timestamp"`
	ActionType     string         `json:"action_type"`
	Actor          string         `json:"actor"`
	Target         string         `json:"target"`
	Parameters     map[string]any `json:"parameters"`
	ApprovalStatus ApprovalStatus `json:"approval_status"`
	Result         string         `json:"result"`
}
