package sqlite

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"

	"github.com/conductor-hq/conductor/store"
)

func (d *DB) CreatePlaybook(ctx context.Context, create *store.Playbook) (*store.Playbook, error) {
	fields := []string{
		"id", "version", "created_ts", "updated_ts", "name", "description",
		"trigger_spec", "actions", "mode", "daily_cap", "stats",
	}
	args := []any{
		create.ID, create.Version, create.CreatedTs, create.UpdatedTs, create.Name, create.Description,
		marshalJSON(create.Trigger, "{}"), marshalJSON(create.Actions, "[]"),
		create.Mode, create.DailyCap, marshalJSON(create.Stats, "{}"),
	}

	stmt := `INSERT INTO playbook (` + strings.Join(fields, ", ") + `)
		VALUES (` + placeholders(len(args)) + `)`
	if _, err := d.db.ExecContext(ctx, stmt, args...); err != nil {
		return nil, errors.Wrap(err, "failed to create playbook")
	}

	return create, nil
}

func (d *DB) ListPlaybooks(ctx context.Context, find *store.FindPlaybook) ([]*store.Playbook, error) {
	where, args := []string{"1 = 1"}, []any{}

	if v := find.ID; v != nil {
		where, args = append(where, "playbook.id = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := find.Mode; v != nil {
		where, args = append(where, "playbook.mode = "+placeholder(len(args)+1)), append(args, string(*v))
	}
	if v := find.Name; v != nil {
		where, args = append(where, "playbook.name = "+placeholder(len(args)+1)), append(args, *v)
	}

	query := `
		SELECT
			id, version, created_ts, updated_ts, name, description,
			trigger_spec, actions, mode, daily_cap, stats
		FROM playbook
		WHERE ` + strings.Join(where, " AND ") + ` ORDER BY playbook.created_ts ASC`

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
		return nil, errors.Wrap(err, "failed to query playbooks")
	}
	defer rows.Close()

	list := make([]*store.Playbook, 0)
	for rows.Next() {
		var playbook store.Playbook
		var trigger, actions, stats string

		if err := rows.Scan(
			&playbook.ID,
			&playbook.Version,
			&playbook.CreatedTs,
			&playbook.UpdatedTs,
			&playbook.Name,
			&playbook.Description,
			&trigger,
			&actions,
			&playbook.Mode,
			&playbook.DailyCap,
			&stats,
		); err != nil {
			return nil, errors.Wrap(err, "failed to scan playbook")
		}

		if err := json.Unmarshal([]byte(trigger), &playbook.Trigger); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal playbook trigger")
		}
		if err := json.Unmarshal([]byte(actions), &playbook.Actions); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal playbook actions")
		}
		if err := json.Unmarshal([]byte(stats), &playbook.Stats); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal playbook stats")
		}

		list = append(list, &playbook)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate playbooks")
	}

	return list, nil
}

func (d *DB) UpdatePlaybook(ctx context.Context, update *store.UpdatePlaybook) error {
	set, args := []string{}, []any{}

	if v := update.Version; v != nil {
		set, args = append(set, "version = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.Name; v != nil {
		set, args = append(set, "name = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.Description; v != nil {
		set, args = append(set, "description = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.Trigger; v != nil {
		set, args = append(set, "trigger_spec = "+placeholder(len(args)+1)), append(args, marshalJSON(*v, "{}"))
	}
	if v := update.Actions; v != nil {
		set, args = append(set, "actions = "+placeholder(len(args)+1)), append(args, marshalJSON(*v, "[]"))
	}
	if v := update.Mode; v != nil {
		set, args = append(set, "mode = "+placeholder(len(args)+1)), append(args, string(*v))
	}
	if v := update.DailyCap; v != nil {
		set, args = append(set, "daily_cap = "+placeholder(len(args)+1)), append(args, *v)
	}
	if v := update.Stats; v != nil {
		set, args = append(set, "stats = "+placeholder(len(args)+1)), append(args, marshalJSON(*v, "{}"))
	}
	if len(set) == 0 {
		return nil
	}
	set, args = append(set, "updated_ts = "+placeholder(len(args)+1)), append(args, update.UpdatedTs)

	args = append(args, update.ID)
	stmt := `UPDATE playbook SET ` + strings.Join(set, ", ") + ` WHERE id = ` + placeholder(len(args))
	result, err := d.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return errors.Wrap(err, "failed to update playbook")
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return errors.Errorf("playbook %s not found", update.ID)
	}

	return nil
}

func (d *DB) DeletePlaybook(ctx context.Context, id string) error {
	stmt := `DELETE FROM playbook WHERE id = ` + placeholder(1)
	result, err := d.db.ExecContext(ctx, stmt, id)
	if err != nil {
		return errors.Wrap(err, "failed to delete playbook")
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return errors.New("playbook not found")
	}

	return nil
}
