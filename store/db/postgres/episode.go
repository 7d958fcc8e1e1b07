package postgres

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"

	"github.com/conductor-hq/conductor/store"
)

func (d *DB) CreateEpisode(ctx context.Context, create *store.Episode) (*store.Episode, error) {
	fields := []string{
		"id", "created_ts", "updated_ts", "observation_ids", "intent", "context", "status",
	}
	args := []any{
		create.ID, create.CreatedTs, create.UpdatedTs,
		marshalJSON(create.ObservationIDs, "[]"), create.Intent,
		marshalJSON(create.Context, "{}"), create.Status,
	}

	stmt := `INSERT INTO episode (` + strings.Join(fields, ", ") + `)
		VALUES (` + placeholders(len(args)) + `)`
	if _, err := d.db.ExecContext(ctx, stmt, args...); err != nil {
		return nil, errors.Wrap(err, "failed to create episode")
	}

	return create, nil
}

func (d *DB) ListEpisodes(ctx context.Context, find *store.FindEpisode) ([]*store.Episode, error) {
	where, args := []string{"1 = 1"}, []any{}

	if v := find.ID; v != nil {
		where, args = append(where, "episode.id = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.Status; v != nil {
		where, args = append(where, "episode.status = "+placeholder(len(args)+1)), append(args, string(*v))
	}
	if v := find.Intent; v != nil {
		where, args = append(where, "episode.intent = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.SinceTs; v != nil {
		where, args = append(where, "episode.created_ts >= "+placeholder(len(args)+1)), append(args, *v)
	}

	query := `
		SELECT
			id, created_ts, updated_ts, observation_ids, intent, context, status
		FROM episode
		WHERE ` + strings.Join(where, " AND ") + ` ORDER BY episode.created_ts ASC`

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
		return nil, errors.Wrap(err, "failed to query episodes")
	}
	defer rows.Close()

	list := make([]*store.Episode, 0)
	for rows.Next() {
		var episode store.Episode
		var observationIDs, context string

		if err := rows.Scan(
			&episode.ID,
			&episode.CreatedTs,
			&episode.UpdatedTs,
			&observationIDs,
			&episode.Intent,
			&context,
			&episode.Status,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan episode")
		}

		if err := json.Unmarshal([]byte(observationIDs), &episode.ObservationIDs); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal observation ids")
		}
		if err := json.Unmarshal([]byte(context), &episode.Context); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal episode context")
		}

		list = append(list, &episode)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate episodes")
	}

	return list, nil
}

func (d *DB) UpdateEpisode(ctx context.Context, update *store.UpdateEpisode) error {
	set, args := []string{}, []any{}

	if v := update.Status; v != nil {
		set, args = append(set, "status = "+placeholder(len(args)+1)), append(args, string(*v))
	}
	if len(set) == 0 {
		return nil
	}
	set, args = append(set, "updated_ts = "+placeholder(len(args)+1)), append(args, update.UpdatedTs)

	args = append(args, update.ID)
	stmt := `UPDATE episode SET ` + strings.Join(set, ", ") + ` WHERE id = ` + placeholder(len(args))
	if _, err := d.db.ExecContext(ctx, stmt, args...); err != nil {
		return errors.Wrap(err, "failed to update episode")
	}

	return nil
}
