package postgres

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"

	"github.com/conductor-hq/conductor/store"
)

func (d *DB) CreateDecision(ctx context.Context, create *store.Decision) (*store.Decision, error) {
	fields := []string{
		"id", "created_ts", "proposal_id", "verdict",
		"edit_distance", "execution_success", "error_message",
	}
	args := []any{
		create.ID, create.CreatedTs, create.ProposalID, create.Verdict,
		create.EditDistance, create.ExecutionSuccess, create.ErrorMessage,
	}

	stmt := `INSERT INTO decision (` + strings.Join(fields, ", ") + `)
		VALUES (` + placeholders(len(args)) + `)`
	if _, err := d.db.ExecContext(ctx, stmt, args...); err != nil {
		return nil, errors.Wrap(err, "failed to create decision")
	}

	return create, nil
}

func (d *DB) ListDecisions(ctx context.Context, find *store.FindDecision) ([]*store.Decision, error) {
	where, args := []string{"1 = 1"}, []any{}

	if v := find.ID; v != nil {
		where, args = append(where, "decision.id = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.ProposalID; v != nil {
		where, args = append(where, "decision.proposal_id = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.Verdict; v != nil {
		where, args = append(where, "decision.verdict = "+placeholder(len(args)+1)), append(args, string(*v))
	}
	if v := find.SinceTs; v != nil {
		where, args = append(where, "decision.created_ts >= "+placeholder(len(args)+1)), append(args, *v)
	}

	query := `
		SELECT
			id, created_ts, proposal_id, verdict,
			edit_distance, execution_success, error_message
		FROM decision
		WHERE ` + strings.Join(where, " AND ") + ` ORDER BY decision.created_ts ASC`

	if find.Limit != nil {
		query += " LIMIT " + placeholder(len(args)+1)
		args = append(args, *find.Limit)
		if find.Offset != nil {
			query += " OFFSET " + placeholder(len(args)+1)
			args = append(args, *find.Offset)
		}
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query decisions")
	}
	defer rows.Close()

	list := make([]*store.Decision, 0)
	for rows.Next() {
		var decision store.Decision
		var editDistance sql.NullFloat64
		var executionSuccess sql.NullBool

		if err := rows.Scan(
			&decision.ID,
			&decision.CreatedTs,
			&decision.ProposalID,
			&decision.Verdict,
			&editDistance,
			&executionSuccess,
			&decision.ErrorMessage,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan decision")
		}

		if editDistance.Valid {
			decision.EditDistance = &editDistance.Float64
		}
		if executionSuccess.Valid {
			decision.ExecutionSuccess = &executionSuccess.Bool
		}

		list = append(list, &decision)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate decisions")
	}

	return list, nil
}
