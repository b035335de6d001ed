// Package maintenance implements the scheduled housekeeping tasks of the risk
// service: snapshot retention and refresh of stale project data.
//
// Tasks are triggered by EventBridge rules that invoke cmd/maintenance with a
// Payload. Every service accepts a reference time so runs are deterministic
// and can be replayed.
package maintenance

import "time"

// TaskType identifies which maintenance service handles an invocation.
type TaskType string

const (
	TaskPurgeSnapshots   TaskType = "purge_snapshots"
	TaskRefreshSnapshots TaskType = "refresh_snapshots"
)

// Payload is the JSON body EventBridge sends to the maintenance Lambda:
//
//	{
//	  "task": "purge_snapshots",
//	  "reference_time": "2026-03-01T04:00:00Z"
//	}
type Payload struct {
	Task TaskType `json:"task"`
	// Overrides "now" for manual runs. Current UTC time when nil.
	ReferenceTime *time.Time `json:"reference_time,omitempty"`
}
