package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ValentinKolb/hashserv/lib/store"
)

const taskColumns = "id, method, outhash, taskhash, unihash, created, owner, PN, PV, PR, task, outhash_siginfo"

// queryColumns may appear in where conditions of remove and gc-mark
var queryColumns = []string{"method", "outhash", "taskhash", "unihash", "owner", "PN", "PV", "PR", "task"}

// rowScanner is implemented by *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*store.TaskRecord, error) {
	var rec store.TaskRecord
	var owner, pn, pv, pr, task, siginfo sql.NullString
	err := row.Scan(&rec.ID, &rec.Method, &rec.Outhash, &rec.Taskhash, &rec.Unihash, &rec.Created,
		&owner, &pn, &pv, &pr, &task, &siginfo)
	if err != nil {
		return nil, err
	}
	rec.Owner = owner.String
	rec.PN = pn.String
	rec.PV = pv.String
	rec.PR = pr.String
	rec.Task = task.String
	rec.OuthashSiginfo = siginfo.String
	rec.Created = rec.Created.UTC()
	return &rec, nil
}

// queryTask runs a query returning at most one task, nil if there is none
func queryTask(ctx context.Context, q interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}, query string, args ...any) (*store.TaskRecord, error) {
	rec, err := scanTask(q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

// buildWhere turns column=value conditions into a SQL condition.
// Columns are checked against queryColumns and emitted in sorted order.
func buildWhere(where map[string]string) (string, []any, error) {
	if len(where) == 0 {
		return "1", nil, nil
	}

	keys := make([]string, 0, len(where))
	for k := range where {
		if !isQueryColumn(k) {
			return "", nil, store.Errorf(store.RetCInvalidOperation, "invalid query column %q", k)
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	conds := make([]string, len(keys))
	args := make([]any, len(keys))
	for i, k := range keys {
		conds[i] = k + " = ?"
		args[i] = where[k]
	}
	return strings.Join(conds, " AND "), args, nil
}

func isQueryColumn(name string) bool {
	for _, c := range queryColumns {
		if c == name {
			return true
		}
	}
	return false
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store.ITaskStore)
// --------------------------------------------------------------------------

func (s *Store) Lookup(ctx context.Context, method, taskhash string) (*store.TaskRecord, error) {
	rec, err := queryTask(ctx, s.db,
		`SELECT `+taskColumns+` FROM tasks
		 WHERE method = ? AND taskhash = ?
		 ORDER BY created ASC, id ASC
		 LIMIT 1`,
		method, taskhash)
	return rec, wrapErr("lookup", err)
}

func (s *Store) LookupOuthash(ctx context.Context, method, outhash, taskhash string) (*store.TaskRecord, error) {
	rec, err := queryTask(ctx, s.db, outhashQuery, method, outhash, taskhash)
	return rec, wrapErr("lookup outhash", err)
}

// outhashQuery finds the record for (method, outhash), the one with the given taskhash first
const outhashQuery = `SELECT ` + taskColumns + ` FROM tasks
	WHERE method = ? AND outhash = ?
	ORDER BY CASE WHEN taskhash = ? THEN 1 ELSE 2 END, created ASC, id ASC
	LIMIT 1`

func (s *Store) Report(ctx context.Context, rec store.TaskRecord) (store.TaskRecord, bool, error) {
	if rec.Method == "" || rec.Taskhash == "" || rec.Outhash == "" || rec.Unihash == "" {
		return store.TaskRecord{}, false, store.NewError(store.RetCInvalidOperation,
			"method, taskhash, outhash and unihash are required")
	}

	var (
		result   store.TaskRecord
		inserted bool
	)

	err := s.withTx(ctx, "report", func(tx *sql.Tx) error {
		found, err := queryTask(ctx, tx, outhashQuery, rec.Method, rec.Outhash, rec.Taskhash)
		if err != nil {
			return err
		}

		if found != nil && found.Taskhash == rec.Taskhash {
			result = *found
			return nil
		}

		// An outhash seen before makes this taskhash equivalent to the earliest
		// record producing it.
		unihash := rec.Unihash
		if found != nil {
			unihash = found.Unihash
		}

		created := s.now().UTC()
		res, err := tx.ExecContext(ctx,
			`INSERT INTO tasks (method, outhash, taskhash, unihash, created, owner, PN, PV, PR, task, outhash_siginfo)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.Method, rec.Outhash, rec.Taskhash, unihash, created,
			nullString(rec.Owner), nullString(rec.PN), nullString(rec.PV), nullString(rec.PR),
			nullString(rec.Task), nullString(rec.OuthashSiginfo))
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}

		// records created while a collection runs are kept by it
		mark, err := activeMark(ctx, tx)
		if err != nil {
			return err
		}
		if mark != "" {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO gc_marks (task_id, mark) VALUES (?, ?)`, id, mark); err != nil {
				return err
			}
		}

		result = rec
		result.ID = id
		result.Unihash = unihash
		result.Created = created
		inserted = true
		return nil
	})
	if err != nil {
		return store.TaskRecord{}, false, err
	}

	if inserted {
		Logger.Debugf("inserted %s:%s -> %s", rec.Method, rec.Taskhash, result.Unihash)
	}
	return result, inserted, nil
}

func (s *Store) UnihashExists(ctx context.Context, unihash string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM tasks WHERE unihash = ? LIMIT 1)`, unihash).Scan(&exists)
	return exists, wrapErr("unihash exists", err)
}

func (s *Store) Remove(ctx context.Context, where map[string]string) (int64, error) {
	if len(where) == 0 {
		return 0, store.NewError(store.RetCInvalidOperation, "remove needs at least one condition")
	}

	cond, args, err := buildWhere(where)
	if err != nil {
		return 0, err
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE `+cond, args...)
	if err != nil {
		return 0, wrapErr("remove", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, wrapErr("remove", err)
	}

	Logger.Infof("removed %d records matching %v", n, where)
	return n, nil
}

func (s *Store) Usage(ctx context.Context) (map[string]int64, error) {
	usage := make(map[string]int64)
	for _, table := range []string{"tasks", "gc_marks", "config", "users"} {
		var n int64
		if err := s.db.QueryRowContext(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", table)).Scan(&n); err != nil {
			return nil, wrapErr("usage", err)
		}
		usage[table] = n
	}
	return usage, nil
}

func (s *Store) QueryColumns() []string {
	out := make([]string, len(queryColumns))
	copy(out, queryColumns)
	return out
}
