package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/ValentinKolb/hashserv/lib/store"
)

func joinPerms(perms []string) string {
	return strings.Join(perms, ",")
}

func splitPerms(s string) []string {
	if s == "" {
		return []string{}
	}
	return strings.Split(s, ",")
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store.IUserStore)
// --------------------------------------------------------------------------

func (s *Store) NewUser(ctx context.Context, user store.User) error {
	if user.Username == "" {
		return store.NewError(store.RetCInvalidOperation, "username must not be empty")
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (username, token, permissions) VALUES (?, ?, ?)`,
		user.Username, user.TokenHash, joinPerms(user.Permissions))

	var storeErr *store.Error
	if err = wrapErr("new user", err); errors.As(err, &storeErr) && storeErr.Code == store.RetCConstraint {
		return store.Errorf(store.RetCConstraint, "user %q already exists", user.Username)
	}
	return err
}

func (s *Store) GetUser(ctx context.Context, username string) (*store.User, error) {
	var u store.User
	var perms string
	err := s.db.QueryRowContext(ctx,
		`SELECT username, token, permissions FROM users WHERE username = ?`, username).
		Scan(&u.Username, &u.TokenHash, &perms)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr("get user", err)
	}
	u.Permissions = splitPerms(perms)
	return &u, nil
}

func (s *Store) GetAllUsers(ctx context.Context) ([]store.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT username, token, permissions FROM users ORDER BY username`)
	if err != nil {
		return nil, wrapErr("get all users", err)
	}
	defer rows.Close()

	users := make([]store.User, 0)
	for rows.Next() {
		var u store.User
		var perms string
		if err := rows.Scan(&u.Username, &u.TokenHash, &perms); err != nil {
			return nil, wrapErr("get all users", err)
		}
		u.Permissions = splitPerms(perms)
		users = append(users, u)
	}
	return users, wrapErr("get all users", rows.Err())
}

func (s *Store) SetUserPerms(ctx context.Context, username string, perms []string) error {
	return s.updateUser(ctx, "set user perms", username,
		`UPDATE users SET permissions = ? WHERE username = ?`, joinPerms(perms))
}

func (s *Store) SetUserToken(ctx context.Context, username, tokenHash string) error {
	return s.updateUser(ctx, "set user token", username,
		`UPDATE users SET token = ? WHERE username = ?`, tokenHash)
}

func (s *Store) DeleteUser(ctx context.Context, username string) error {
	return s.updateUser(ctx, "delete user", username,
		`DELETE FROM users WHERE username = ?`)
}

// updateUser runs a statement taking (args..., username) and fails with
// NotFound if no row was touched
func (s *Store) updateUser(ctx context.Context, op, username, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, append(args, username)...)
	if err != nil {
		return wrapErr(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapErr(op, err)
	}
	if n == 0 {
		return store.Errorf(store.RetCNotFound, "user %q does not exist", username)
	}
	return nil
}
