package reporting

import "time"

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// ActivityRequest asks for one agent's dialing activity over a range.
// AgentID is required.
type ActivityRequest struct {
	AgentID string    `json:"agent_id"`
	Range   TimeRange `json:"range"`
}

// ActivitySummary aggregates an agent's audit trail.
type ActivitySummary struct {
	AgentID string    `json:"agent_id"`
	Range   TimeRange `json:"range"`

	CallsPlaced   int `json:"calls_placed"`
	CallsRejected int `json:"calls_rejected"`
	CallsEnded    int `json:"calls_ended"`
	InboundCalls  int `json:"inbound_calls"`
	Removed       int `json:"removed"`
	AutoDialRuns  int `json:"auto_dial_runs"`
	LineErrors    int `json:"line_errors"`

	TotalTalkSeconds   int    `json:"total_talk_seconds"`
	AverageTalkSeconds int    `json:"average_talk_seconds"`
	TotalTalk          string `json:"total_talk"`

	// AnswerRate is ended calls over placed calls.
	AnswerRate float64 `json:"answer_rate"`
}
