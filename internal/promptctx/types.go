// Package promptctx defines data structures used to enrich prompt templates.
package promptctx

import (
	"github.com/droid-action/droidprep/internal/ghcontext"
)

// EventData is the per-event part of a prompt context. Which fields are set
// depends on EventName and IsPR; values are only produced by NewEventData,
// which enforces the required fields of each variant.
type EventData struct {
	EventName   ghcontext.EventName
	EventAction string
	IsPR        bool
	// PRNumber is set when IsPR is true, IssueNumber otherwise.
	PRNumber    int
	IssueNumber int
	// CommentID is set for comment events.
	CommentID int64
	// CommentBody is the comment or review text that triggered the run.
	CommentBody string
	BaseBranch  string
	DroidBranch string
	// AssigneeTrigger is the assignee login of an issues/assigned event.
	AssigneeTrigger string
	// LabelTrigger is the label name of an issues/labeled event.
	LabelTrigger string
}

// Number returns the pull request or issue number.
func (e EventData) Number() int {
	if e.IsPR {
		return e.PRNumber
	}
	return e.IssueNumber
}

// Branch identifies the pull request head.
type Branch struct {
	HeadRefName string
	HeadRefOid  string
}

// Artifacts are the paths of files materialized for the agent.
type Artifacts struct {
	DiffPath     string
	CommentsPath string
}

// Security carries the security review settings.
type Security struct {
	SeverityThreshold string
	BlockOnCritical   bool
	BlockOnHigh       bool
	NotifyTeam        string
}

// ScanScope limits a repository scan. Zero Days means the whole repository.
type ScanScope struct {
	Days int
}

// Full reports whether the scan covers the whole repository.
func (s ScanScope) Full() bool {
	return s.Days <= 0
}

// Combine names the result files of a dual review. Empty paths mean the
// review produced nothing.
type Combine struct {
	CodeReviewResults string
	SecurityResults   string
}

// Prepared is the complete input of a prompt template.
type Prepared struct {
	Repository      string
	CommentID       int64
	TriggerPhrase   string
	TriggerUsername string
	DroidBranch     string
	Event           EventData

	// PRBranch is set for pull request modes that resolved branch data.
	PRBranch *Branch
	// Artifacts is set for modes that materialized a diff.
	Artifacts *Artifacts
	Security  Security
	Scan      ScanScope
	// Date is the UTC run date, YYYY-MM-DD.
	Date string
	// CandidatesPath and ValidatedPath are the validator hand-off files.
	CandidatesPath string
	ValidatedPath  string
	Combine        Combine
}
