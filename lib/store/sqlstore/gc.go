package sqlstore

import (
	"context"
	"database/sql"
	"errors"

	"github.com/ValentinKolb/hashserv/lib/store"
)

// activeMark returns the mark of the running collection or "" if none runs
func activeMark(ctx context.Context, q interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}) (string, error) {
	var mark string
	err := q.QueryRowContext(ctx, `SELECT value FROM config WHERE name = ?`, gcMarkKey).Scan(&mark)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return mark, err
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store.ITaskStore)
// --------------------------------------------------------------------------

func (s *Store) GCMark(ctx context.Context, mark string, where map[string]string) (int64, error) {
	if mark == "" {
		return 0, store.NewError(store.RetCInvalidOperation, "gc mark must not be empty")
	}

	cond, args, err := buildWhere(where)
	if err != nil {
		return 0, err
	}

	var tagged int64
	err = s.withTx(ctx, "gc mark", func(tx *sql.Tx) error {
		current, err := activeMark(ctx, tx)
		if err != nil {
			return err
		}

		// a new mark abandons the previous collection
		if current != mark {
			if _, err := tx.ExecContext(ctx, `DELETE FROM gc_marks`); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO config (name, value) VALUES (?, ?)
				 ON CONFLICT (name) DO UPDATE SET value = excluded.value`, gcMarkKey, mark); err != nil {
				return err
			}
			if current != "" {
				Logger.Warningf("gc mark %q replaces unfinished collection %q", mark, current)
			}
		}

		res, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO gc_marks (task_id, mark)
			 SELECT id, ? FROM tasks
			 WHERE unihash IN (SELECT unihash FROM tasks WHERE `+cond+`)`,
			append([]any{mark}, args...)...)
		if err != nil {
			return err
		}
		tagged, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, err
	}

	Logger.Infof("gc mark %q tagged %d records", mark, tagged)
	return tagged, nil
}

func (s *Store) GCSweep(ctx context.Context, mark string) (int64, error) {
	var removed int64
	err := s.withTx(ctx, "gc sweep", func(tx *sql.Tx) error {
		current, err := activeMark(ctx, tx)
		if err != nil {
			return err
		}
		if current == "" || current != mark {
			return store.Errorf(store.RetCInvalidOperation, "%q is not the active gc mark", mark)
		}

		res, err := tx.ExecContext(ctx,
			`DELETE FROM tasks WHERE id NOT IN (SELECT task_id FROM gc_marks WHERE mark = ?)`, mark)
		if err != nil {
			return err
		}
		if removed, err = res.RowsAffected(); err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM gc_marks`); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `DELETE FROM config WHERE name = ?`, gcMarkKey)
		return err
	})
	if err != nil {
		return 0, err
	}

	Logger.Infof("gc sweep %q removed %d records", mark, removed)
	return removed, nil
}

func (s *Store) GCStatus(ctx context.Context) (store.GCStatus, error) {
	mark, err := activeMark(ctx, s.db)
	if err != nil {
		return store.GCStatus{}, wrapErr("gc status", err)
	}
	if mark == "" {
		return store.GCStatus{}, nil
	}

	status := store.GCStatus{Mark: mark}
	err = s.db.QueryRowContext(ctx,
		`SELECT
			(SELECT COUNT(*) FROM gc_marks WHERE mark = ?),
			(SELECT COUNT(*) FROM tasks WHERE id NOT IN (SELECT task_id FROM gc_marks WHERE mark = ?))`,
		mark, mark).Scan(&status.Keep, &status.Remove)
	if err != nil {
		return store.GCStatus{}, wrapErr("gc status", err)
	}
	return status, nil
}
