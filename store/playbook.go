package store

import "context"

// AutomationMode is a playbook's automation maturity level. Modes are
// strictly ordered; promotion is linear and demotion steps back toward
// suggest.
type AutomationMode string

const (
	ModeSuggest   AutomationMode = "suggest"
	ModeShadow    AutomationMode = "shadow"
	ModeApprove   AutomationMode = "approve"
	ModeAutopilot AutomationMode = "autopilot"
)

// Rank returns the maturity order of the mode, suggest being 0. Unknown
// modes rank below suggest.
func (m AutomationMode) Rank() int {
	switch m {
	case ModeSuggest:
		return 0
	case ModeShadow:
		return 1
	case ModeApprove:
		return 2
	case ModeAutopilot:
		return 3
	default:
		return -1
	}
}

// PlaybookTrigger specifies when a playbook applies.
type PlaybookTrigger struct {
	AppPattern string   `json:"app_pattern"`
	URLPattern string   `json:"url_pattern,omitempty"`
	Signals    []string `json:"signals,omitempty"`
}

// PlaybookAction is one parameterized action of a playbook.
type PlaybookAction struct {
	Type       ActionType        `json:"type"`
	Parameters map[string]string `json:"parameters,omitempty"`
}

// PlaybookStats is the rolling execution statistics of a playbook. The
// whole struct is written atomically with any mode/version change so
// promotion-gate reads never see a half-updated record.
type PlaybookStats struct {
	TotalExecutions      int     `json:"total_executions"`
	SuccessfulExecutions int     `json:"successful_executions"`
	Approvals            int     `json:"approvals"`
	AvgEditDistance      float64 `json:"avg_edit_distance"`
	LastExecutionTs      int64   `json:"last_execution_ts,omitempty"`
	DryRunCount          int     `json:"dry_run_count"`

	ShadowRuns       int `json:"shadow_runs"`
	ShadowAgreements int `json:"shadow_agreements"`

	ConsecutiveDeclines int `json:"consecutive_declines"`

	// TodayDate/TodayCount track the daily execution cap window
	// (TodayDate is the UTC date in YYYY-MM-DD form).
	TodayDate  string `json:"today_date,omitempty"`
	TodayCount int    `json:"today_count,omitempty"`
}

// Playbook is a codified, reusable automation rule mined from history.
type Playbook struct {
	ID      string
	Version int32
	// CreatedTs and UpdatedTs are unix milliseconds.
	CreatedTs int64
	UpdatedTs int64

	Name        string
	Description string
	Trigger     PlaybookTrigger
	Actions     []PlaybookAction
	Mode        AutomationMode
	DailyCap    int
	Stats       PlaybookStats
}

// FindPlaybook is the find condition for playbooks.
type FindPlaybook struct {
	ID   *string
	Mode *AutomationMode
	Name *string

	Limit  *int
	Offset *int
}

// UpdatePlaybook is the update request for a playbook. All requested fields
// are applied in a single statement so gate evaluation reads are atomic
// relative to stat updates.
type UpdatePlaybook struct {
	ID        string
	UpdatedTs int64

	Version     *int32
	Name        *string
	Description *string
	Trigger     *PlaybookTrigger
	Actions     *[]PlaybookAction
	Mode        *AutomationMode
	DailyCap    *int
	Stats       *PlaybookStats
}

// CreatePlaybook persists a new playbook.
func (s *Store) CreatePlaybook(ctx context.Context, create *Playbook) (*Playbook, error) {
	playbook, err := s.driver.CreatePlaybook(ctx, create)
	if err != nil {
		return nil, err
	}
	s.playbookCache.Delete(playbookListCacheKey)
	return playbook, nil
}

// ListPlaybooks lists playbooks with filter. Unfiltered listings are cached
// briefly since playbook matching runs on every processed episode.
func (s *Store) ListPlaybooks(ctx context.Context, find *FindPlaybook) ([]*Playbook, error) {
	unfiltered := find == nil || *find == (FindPlaybook{})
	if unfiltered {
		if v, ok := s.playbookCache.Get(playbookListCacheKey); ok {
			if list, ok := v.([]*Playbook); ok {
				return list, nil
			}
		}
	}
	list, err := s.driver.ListPlaybooks(ctx, find)
	if err != nil {
		return nil, err
	}
	if unfiltered {
		s.playbookCache.Set(playbookListCacheKey, list)
	}
	return list, nil
}

// GetPlaybook gets a single playbook or nil when not found.
func (s *Store) GetPlaybook(ctx context.Context, find *FindPlaybook) (*Playbook, error) {
	list, err := s.driver.ListPlaybooks(ctx, find)
	if err != nil {
		return nil, err
	}
	if len(list) == 0 {
		return nil, nil
	}
	return list[0], nil
}

// UpdatePlaybook updates a playbook.
func (s *Store) UpdatePlaybook(ctx context.Context, update *UpdatePlaybook) error {
	if err := s.driver.UpdatePlaybook(ctx, update); err != nil {
		return err
	}
	s.playbookCache.Delete(playbookListCacheKey)
	return nil
}

// DeletePlaybook removes a playbook (user command; mined suggestions can be
// dismissed outright).
func (s *Store) DeletePlaybook(ctx context.Context, id string) error {
	if err := s.driver.DeletePlaybook(ctx, id); err != nil {
		return err
	}
	s.playbookCache.Delete(playbookListCacheKey)
	return nil
}
