package postgres

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"

	"github.com/conductor-hq/conductor/store"
)

func (d *DB) CreateProposal(ctx context.Context, create *store.Proposal) (*store.Proposal, error) {
	fields := []string{
		"id", "created_ts", "episode_id", "action_type", "title",
		"summary", "content", "confidence", "risk", "status", "metadata",
	}
	args := []any{
		create.ID, create.CreatedTs, create.EpisodeID, create.ActionType, create.Title,
		create.Summary, create.Content, create.Confidence, create.Risk, create.Status,
		marshalJSON(create.Metadata, "{}"),
	}

	stmt := `INSERT INTO proposal (` + strings.Join(fields, ", ") + `)
		VALUES (` + placeholders(len(args)) + `)`
	if _, err := d.db.ExecContext(ctx, stmt, args...); err != nil {
		return nil, errors.Wrap(err, "failed to create proposal")
	}

	return create, nil
}

func (d *DB) ListProposals(ctx context.Context, find *store.FindProposal) ([]*store.Proposal, error) {
	where, args := []string{"1 = 1"}, []any{}

	if v := find.ID; v != nil {
		where, args = append(where, "proposal.id = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.EpisodeID; v != nil {
		where, args = append(where, "proposal.episode_id = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.Status; v != nil {
		where, args = append(where, "proposal.status = "+placeholder(len(args)+1)), append(args, string(*v))
	}

	query := `
		SELECT
			id, created_ts, episode_id, action_type, title,
			summary, content, confidence, risk, status, metadata
		FROM proposal
		WHERE ` + strings.Join(where, " AND ") + ` ORDER BY proposal.created_ts DESC`

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
		return nil, errors.Wrap(err, "failed to query proposals")
	}
	defer rows.Close()

	list := make([]*store.Proposal, 0)
	for rows.Next() {
		var proposal store.Proposal
		var metadata string

		if err := rows.Scan(
			&proposal.ID,
			&proposal.CreatedTs,
			&proposal.EpisodeID,
			&proposal.ActionType,
			&proposal.Title,
			&proposal.Summary,
			&proposal.Content,
			&proposal.Confidence,
			&proposal.Risk,
			&proposal.Status,
			&metadata,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan proposal")
		}

		if err := json.Unmarshal([]byte(metadata), &proposal.Metadata); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal proposal metadata")
		}

		list = append(list, &proposal)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate proposals")
	}

	return list, nil
}

func (d *DB) UpdateProposal(ctx context.Context, update *store.UpdateProposal) error {
	set, args := []string{}, []any{}

	if v := update.Status; v != nil {
		set, args = append(set, "status = "+placeholder(len(args)+1)), append(args, string(*v))
	}
	if v := update.Content; v != nil {
		set, args = append(set, "content = "+placeholder(len(args)+1)), append(args, *v)
	}
	if len(set) == 0 {
		return nil
	}

	args = append(args, update.ID)
	stmt := `UPDATE proposal SET ` + strings.Join(set, ", ") + ` WHERE id = ` + placeholder(len(args))
	result, err := d.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return errors.Wrap(err, "failed to update proposal")
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return errors.Errorf("proposal %s not found", update.ID)
	}

	return nil
}
