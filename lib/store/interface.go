package store

import (
	"context"
	"fmt"
	"time"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// Factory is a function type that creates the store used by the server.
// This is used to abstract the creation of the store from the server implementation.
type Factory func() (IStore, error)

// IStore is the complete storage interface of the server.
// All methods return a *Error (nil on success) when the operation fails.
type IStore interface {
	ITaskStore
	IUserStore
	// Close releases the underlying database
	Close() error
}

// ITaskStore stores the equivalence records.
// Records are append-only: they are never updated, only removed by Remove or GCSweep.
type ITaskStore interface {
	// Lookup returns the earliest created record for (method, taskhash).
	// A nil record without error means the taskhash was never reported.
	Lookup(ctx context.Context, method, taskhash string) (*TaskRecord, error)
	// LookupOuthash returns the record for (method, outhash), preferring one with the given
	// taskhash and otherwise the earliest created one. Nil if the outhash is unknown.
	LookupOuthash(ctx context.Context, method, outhash, taskhash string) (*TaskRecord, error)
	// Report runs the equivalence algorithm for a new record and returns the stored record
	// the caller should use. inserted is false if an identical record already existed.
	Report(ctx context.Context, rec TaskRecord) (stored TaskRecord, inserted bool, err error)
	// UnihashExists returns whether any record has the given unihash
	UnihashExists(ctx context.Context, unihash string) (bool, error)
	// Remove deletes all records matching every column=value condition in where.
	// An empty where is rejected.
	Remove(ctx context.Context, where map[string]string) (int64, error)
	// GCMark makes mark the active gc mark and tags every record sharing a unihash with a
	// record matching where. It returns the number of newly tagged records.
	GCMark(ctx context.Context, mark string, where map[string]string) (int64, error)
	// GCSweep deletes every record not tagged with the active mark and ends the collection.
	GCSweep(ctx context.Context, mark string) (int64, error)
	// GCStatus reports the active mark and how many records a sweep would keep and remove
	GCStatus(ctx context.Context) (GCStatus, error)
	// Usage returns the number of rows per table
	Usage(ctx context.Context) (map[string]int64, error)
	// QueryColumns returns the columns accepted in where conditions
	QueryColumns() []string
}

// IUserStore stores the users of the server together with their token hashes
type IUserStore interface {
	// NewUser creates a user. A Constraint error is returned if the user already exists.
	NewUser(ctx context.Context, user User) error
	// GetUser returns the user or nil if it does not exist
	GetUser(ctx context.Context, username string) (*User, error)
	// GetAllUsers returns all users ordered by name
	GetAllUsers(ctx context.Context) ([]User, error)
	// SetUserPerms replaces the permissions of a user
	SetUserPerms(ctx context.Context, username string, perms []string) error
	// SetUserToken replaces the token hash of a user
	SetUserToken(ctx context.Context, username, tokenHash string) error
	// DeleteUser removes a user. A NotFound error is returned if the user does not exist.
	DeleteUser(ctx context.Context, username string) error
}

// --------------------------------------------------------------------------
// Records
// --------------------------------------------------------------------------

// TaskRecord is one row of the equivalence table
type TaskRecord struct {
	ID             int64     `json:"id,omitempty"`
	Method         string    `json:"method"`
	Outhash        string    `json:"outhash,omitempty"`
	Taskhash       string    `json:"taskhash"`
	Unihash        string    `json:"unihash"`
	Created        time.Time `json:"created,omitzero"`
	Owner          string    `json:"owner,omitempty"`
	PN             string    `json:"PN,omitempty"`
	PV             string    `json:"PV,omitempty"`
	PR             string    `json:"PR,omitempty"`
	Task           string    `json:"task,omitempty"`
	OuthashSiginfo string    `json:"outhash_siginfo,omitempty"`
}

// Short returns the record reduced to the fields a normal lookup reply carries
func (r *TaskRecord) Short() *TaskRecord {
	if r == nil {
		return nil
	}
	return &TaskRecord{Method: r.Method, Taskhash: r.Taskhash, Unihash: r.Unihash}
}

// User is a stored user. TokenHash never leaves the server.
type User struct {
	Username    string   `json:"username"`
	TokenHash   string   `json:"-"`
	Permissions []string `json:"permissions"`
}

// Public returns a copy without the token hash
func (u *User) Public() *User {
	if u == nil {
		return nil
	}
	perms := make([]string, len(u.Permissions))
	copy(perms, u.Permissions)
	return &User{Username: u.Username, Permissions: perms}
}

// GCStatus describes the state of the running garbage collection
type GCStatus struct {
	Mark   string `json:"mark"`
	Keep   int64  `json:"keep"`
	Remove int64  `json:"remove"`
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a return code (of type RetCode)
// and an error message.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message.
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("StoreError (code %s): %s", e.Code, e.Msg)
}

// Is matches errors with the same code, so errors.Is(err, &Error{Code: RetCNotFound}) works
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// NewError creates a new store Error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// Errorf creates a new store Error with a formatted message.
func Errorf(code RetCode, format string, args ...any) *Error {
	return NewError(code, fmt.Sprintf(format, args...))
}

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess              RetCode = iota // 0: Command executed successfully.
	RetCInternalError                       // 1: Command failed due to an internal error.
	RetCUnsupportedOperation                // 2: Operation is not supported by the store.
	RetCInvalidOperation                    // 3: Invalid operation or arguments.
	RetCConstraint                          // 4: A uniqueness constraint was violated.
	RetCNotFound                            // 5: The addressed entity does not exist.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCInternalError:
		return "InternalError"
	case RetCUnsupportedOperation:
		return "UnsupportedOperation"
	case RetCInvalidOperation:
		return "InvalidOperation"
	case RetCConstraint:
		return "Constraint"
	case RetCNotFound:
		return "NotFound"
	default:
		return "Unknown"
	}
}
