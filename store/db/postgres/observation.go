package postgres

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"

	"github.com/conductor-hq/conductor/store"
)

func (d *DB) CreateObservation(ctx context.Context, create *store.Observation) (*store.Observation, error) {
	fields := []string{
		"id", "session_id", "ts", "bundle_id", "app_name",
		"window_title", "window_id", "url", "kind",
		"payload", "redactions", "confidence",
	}
	args := []any{
		create.ID, create.SessionID, create.Timestamp, create.BundleID, create.AppName,
		create.WindowTitle, create.WindowID, create.URL, create.Kind,
		create.Payload, marshalJSON(create.Redactions, "[]"), create.Confidence,
	}

	stmt := `INSERT INTO observation (` + strings.Join(fields, ", ") + `)
		VALUES (` + placeholders(len(args)) + `)`
	if _, err := d.db.ExecContext(ctx, stmt, args...); err != nil {
		return nil, errors.Wrap(err, "failed to create observation")
	}

	return create, nil
}

func (d *DB) ListObservations(ctx context.Context, find *store.FindObservation) ([]*store.Observation, error) {
	where, args := []string{"1 = 1"}, []any{}

	if v := find.ID; v != nil {
		where, args = append(where, "observation.id = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.SessionID; v != nil {
		where, args = append(where, "observation.session_id = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.Kind; v != nil {
		where, args = append(where, "observation.kind = "+placeholder(len(args)+1)), append(args, string(*v))
	}
	if v := find.SinceTs; v != nil {
		where, args = append(where, "observation.ts >= "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.UntilTs; v != nil {
		where, args = append(where, "observation.ts < "+placeholder(len(args)+1)), append(args, *v)
	}

	query := `
		SELECT
			id, session_id, ts, bundle_id, app_name,
			window_title, window_id, url, kind,
			payload, redactions, confidence
		FROM observation
		WHERE ` + strings.Join(where, " AND ") + ` ORDER BY observation.ts ASC, observation.id ASC`

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
		return nil, errors.Wrap(err, "failed to query observations")
	}
	defer rows.Close()

	list := make([]*store.Observation, 0)
	for rows.Next() {
		var observation store.Observation
		var redactions string

		if err := rows.Scan(
			&observation.ID,
			&observation.SessionID,
			&observation.Timestamp,
			&observation.BundleID,
			&observation.AppName,
			&observation.WindowTitle,
			&observation.WindowID,
			&observation.URL,
			&observation.Kind,
			&observation.Payload,
			&redactions,
			&observation.Confidence,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan observation")
		}

		if err := json.Unmarshal([]byte(redactions), &observation.Redactions); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal redactions")
		}

		list = append(list, &observation)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate observations")
	}

	return list, nil
}
