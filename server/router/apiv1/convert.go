package apiv1

import (
	"github.com/conductor-hq/conductor/server/service/execution"
	"github.com/conductor-hq/conductor/store"
)

// Wire types. Store models stay transport-agnostic; the router owns the
// JSON shape.

type proposalMessage struct {
	ID         string         `json:"id"`
	CreatedTs  int64          `json:"created_ts"`
	EpisodeID  string         `json:"episode_id"`
	ActionType string         `json:"action_type"`
	Title      string         `json:"title"`
	Summary    string         `json:"summary,omitempty"`
	Content    string         `json:"content"`
	Confidence int            `json:"confidence"`
	Risk       string         `json:"risk"`
	Status     string         `json:"status"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

func convertProposalFromStore(p *store.Proposal) *proposalMessage {
	return &proposalMessage{
		ID:         p.ID,
		CreatedTs:  p.CreatedTs,
		EpisodeID:  p.EpisodeID,
		ActionType: string(p.ActionType),
		Title:      p.Title,
		Summary:    p.Summary,
		Content:    p.Content,
		Confidence: p.Confidence,
		Risk:       string(p.Risk),
		Status:     string(p.Status),
		Metadata:   p.Metadata,
	}
}

func convertProposalListFromStore(list []*store.Proposal) []*proposalMessage {
	out := make([]*proposalMessage, 0, len(list))
	for _, p := range list {
		out = append(out, convertProposalFromStore(p))
	}
	return out
}

type playbookMessage struct {
	ID          string                 `json:"id"`
	Version     int32                  `json:"version"`
	CreatedTs   int64                  `json:"created_ts"`
	UpdatedTs   int64                  `json:"updated_ts"`
	Name        string                 `json:"name"`
	Description string                 `json:"description,omitempty"`
	Trigger     store.PlaybookTrigger  `json:"trigger"`
	Actions     []store.PlaybookAction `json:"actions"`
	Mode        string                 `json:"mode"`
	DailyCap    int                    `json:"daily_cap"`
	Stats       store.PlaybookStats    `json:"stats"`
}

func convertPlaybookFromStore(p *store.Playbook) *playbookMessage {
	return &playbookMessage{
		ID:          p.ID,
		Version:     p.Version,
		CreatedTs:   p.CreatedTs,
		UpdatedTs:   p.UpdatedTs,
		Name:        p.Name,
		Description: p.Description,
		Trigger:     p.Trigger,
		Actions:     p.Actions,
		Mode:        string(p.Mode),
		DailyCap:    p.DailyCap,
		Stats:       p.Stats,
	}
}

func convertPlaybookListFromStore(list []*store.Playbook) []*playbookMessage {
	out := make([]*playbookMessage, 0, len(list))
	for _, p := range list {
		out = append(out, convertPlaybookFromStore(p))
	}
	return out
}

type decisionMessage struct {
	ID               string   `json:"id"`
	CreatedTs        int64    `json:"created_ts"`
	ProposalID       string   `json:"proposal_id"`
	Verdict          string   `json:"verdict"`
	EditDistance     *float64 `json:"edit_distance,omitempty"`
	ExecutionSuccess *bool    `json:"execution_success,omitempty"`
	ErrorMessage     string   `json:"error_message,omitempty"`
}

func convertDecisionFromStore(d *store.Decision) *decisionMessage {
	return &decisionMessage{
		ID:               d.ID,
		CreatedTs:        d.CreatedTs,
		ProposalID:       d.ProposalID,
		Verdict:          string(d.Verdict),
		EditDistance:     d.EditDistance,
		ExecutionSuccess: d.ExecutionSuccess,
		ErrorMessage:     d.ErrorMessage,
	}
}

type executionMessage struct {
	Success    bool           `json:"success"`
	Output     map[string]any `json:"output,omitempty"`
	Error      string         `json:"error,omitempty"`
	ExecutedAt int64          `json:"executed_at"`
}

func convertExecutionResult(r execution.Result) executionMessage {
	return executionMessage{
		Success:    r.Success,
		Output:     r.Output,
		Error:      r.Error,
		ExecutedAt: r.ExecutedAt,
	}
}
