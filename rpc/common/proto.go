package common

import (
	"encoding/json"
	"fmt"

	"github.com/ValentinKolb/hashserv/lib/stats"
	"github.com/ValentinKolb/hashserv/lib/store"
)

// --------------------------------------------------------------------------
// Protocol Constants
// --------------------------------------------------------------------------

const (
	// ProtocolName and ProtocolVersion form the hello line a client sends first
	ProtocolName    = "OEHASHEQUIV"
	ProtocolVersion = "1.1"

	// StreamEnd is the line that ends a stream and returns to normal mode
	StreamEnd = "END"

	// AckOK acknowledges the hello, a mode switch and the end of a stream
	AckOK = "ok"

	// ExistsTrue and ExistsFalse are the replies of the exists stream
	ExistsTrue  = "true"
	ExistsFalse = "false"
)

// Hello returns the hello line of this protocol version
func Hello() string {
	return ProtocolName + " " + ProtocolVersion
}

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// Message represents a single message used for both requests and responses
// in normal mode. Which fields are used depends on the type of message.
type Message struct {
	// Type of message
	MsgType MessageType `json:"msg_type"`

	// Request fields
	Method      string            `json:"method,omitempty"`      // Used for: Get, GetOuthash
	Taskhash    string            `json:"taskhash,omitempty"`    // Used for: Get, GetOuthash
	Outhash     string            `json:"outhash,omitempty"`     // Used for: GetOuthash
	All         bool              `json:"all,omitempty"`         // Used for: Get, GetOuthash (return every column)
	Username    string            `json:"username,omitempty"`    // Used for: Auth, BecomeUser, user management (also responses)
	Token       string            `json:"token,omitempty"`       // Used for: Auth (request), NewUser, RefreshToken (response)
	Permissions []string          `json:"permissions,omitempty"` // Used for: NewUser, SetUserPerms (also responses)
	Mark        string            `json:"mark,omitempty"`        // Used for: GCMark, GCSweep
	Where       map[string]string `json:"where,omitempty"`       // Used for: Remove, GCMark

	// Request and response fields
	Record *store.TaskRecord `json:"record,omitempty"` // Used for: Report (request), Get, GetOuthash, Report (response)

	// Response only fields
	Stats   *stats.PairReport `json:"stats,omitempty"`   // Used for: GetStats
	User    *store.User       `json:"user,omitempty"`    // Used for: GetUser, NewUser, SetUserPerms, BecomeUser
	Users   []store.User      `json:"users,omitempty"`   // Used for: GetAllUsers
	GC      *store.GCStatus   `json:"gc,omitempty"`      // Used for: GCStatus
	Count   int64             `json:"count,omitempty"`   // Used for: Remove, GCMark, GCSweep
	Usage   map[string]int64  `json:"usage,omitempty"`   // Used for: GetDBUsage
	Columns []string          `json:"columns,omitempty"` // Used for: GetDBQueryColumns
	Ack     string            `json:"ack,omitempty"`     // Used for: GetStream, ExistsStream, ResetStats, DeleteUser
	Err     string            `json:"err,omitempty"`     // Empty if no error, otherwise contains the error message
	ErrKind ErrorKind         `json:"err_kind,omitempty"`
}

// --------------------------------------------------------------------------
// Message Factory Functions
// --------------------------------------------------------------------------

// NewGetRequest creates a new Get request
func NewGetRequest(method, taskhash string, all bool) *Message {
	return &Message{
		MsgType:  MsgTGet,
		Method:   method,
		Taskhash: taskhash,
		All:      all,
	}
}

// NewGetOuthashRequest creates a new GetOuthash request
func NewGetOuthashRequest(method, outhash, taskhash string, all bool) *Message {
	return &Message{
		MsgType:  MsgTGetOuthash,
		Method:   method,
		Outhash:  outhash,
		Taskhash: taskhash,
		All:      all,
	}
}

// NewReportRequest creates a new Report request
func NewReportRequest(rec store.TaskRecord) *Message {
	return &Message{
		MsgType: MsgTReport,
		Record:  &rec,
	}
}

// NewRecordResponse creates the response of Get, GetOuthash and Report.
// A nil record means the lookup missed.
func NewRecordResponse(t MessageType, rec *store.TaskRecord) *Message {
	return &Message{
		MsgType: t,
		Record:  rec,
	}
}

// NewStreamRequest creates the control request switching to a stream mode
func NewStreamRequest(t MessageType) *Message {
	return &Message{MsgType: t}
}

// NewAckResponse creates a response carrying only the acknowledgement
func NewAckResponse(t MessageType) *Message {
	return &Message{
		MsgType: t,
		Ack:     AckOK,
	}
}

// NewCountResponse creates a response carrying a row count
func NewCountResponse(t MessageType, n int64) *Message {
	return &Message{
		MsgType: t,
		Count:   n,
	}
}

// NewWhereRequest creates a Remove or GCMark request
func NewWhereRequest(t MessageType, mark string, where map[string]string) *Message {
	return &Message{
		MsgType: t,
		Mark:    mark,
		Where:   where,
	}
}

// NewAuthRequest creates a new Auth request
func NewAuthRequest(username, token string) *Message {
	return &Message{
		MsgType:  MsgTAuth,
		Username: username,
		Token:    token,
	}
}

// NewUserRequest creates a request addressing a single user
func NewUserRequest(t MessageType, username string, perms []string) *Message {
	return &Message{
		MsgType:     t,
		Username:    username,
		Permissions: perms,
	}
}

// NewUserResponse creates a response carrying a user
func NewUserResponse(t MessageType, user *store.User) *Message {
	return &Message{
		MsgType: t,
		User:    user.Public(),
	}
}

// NewErrorResponse creates a new Error response
func NewErrorResponse(err *Error) *Message {
	return &Message{
		MsgType: MsgTError,
		Err:     err.Msg,
		ErrKind: err.Kind,
	}
}

// AsError returns the error carried by an error response, nil otherwise
func (m *Message) AsError() error {
	if m == nil || m.MsgType != MsgTError {
		return nil
	}
	return &Error{Kind: m.ErrKind, Msg: m.Err}
}

// --------------------------------------------------------------------------
// Message Type Definition
// --------------------------------------------------------------------------

// MessageType defines the type of message used in RPC communication.
type MessageType uint8

const (
	// General message types

	MsgTUnknown MessageType = iota
	MsgTSuccess             // Indicates a successful operation
	MsgTError               // Indicates an error occurred

	// Equivalence operations

	MsgTGet          // Look up the unihash of a taskhash
	MsgTGetOuthash   // Look up the record of an outhash
	MsgTReport       // Report a new task result
	MsgTGetStream    // Switch to the unihash lookup stream
	MsgTExistsStream // Switch to the unihash exists stream
	MsgTGetStats     // Read the server statistics
	MsgTResetStats   // Reset the server statistics

	// Database administration

	MsgTRemove            // Remove records
	MsgTGCMark            // Start or continue a garbage collection
	MsgTGCSweep           // Finish a garbage collection
	MsgTGCStatus          // State of the garbage collection
	MsgTGetDBUsage        // Row count per table
	MsgTGetDBQueryColumns // Columns usable in where conditions

	// Users

	MsgTAuth          // Authenticate the connection
	MsgTRefreshToken  // Issue a new token
	MsgTBecomeUser    // Impersonate another user
	MsgTNewUser       // Create a user
	MsgTGetUser       // Read a user
	MsgTGetAllUsers   // List all users
	MsgTSetUserPerms  // Change the permissions of a user
	MsgTDeleteUser    // Delete a user
	msgTypeSentinel   // Must stay last
)

// messageTypeNames are the wire names of the message types
var messageTypeNames = [...]string{
	MsgTUnknown:           "unknown",
	MsgTSuccess:           "success",
	MsgTError:             "error",
	MsgTGet:               "get",
	MsgTGetOuthash:        "get-outhash",
	MsgTReport:            "report",
	MsgTGetStream:         "get-stream",
	MsgTExistsStream:      "exists-stream",
	MsgTGetStats:          "get-stats",
	MsgTResetStats:        "reset-stats",
	MsgTRemove:            "remove",
	MsgTGCMark:            "gc-mark",
	MsgTGCSweep:           "gc-sweep",
	MsgTGCStatus:          "gc-status",
	MsgTGetDBUsage:        "get-db-usage",
	MsgTGetDBQueryColumns: "get-db-query-columns",
	MsgTAuth:              "auth",
	MsgTRefreshToken:      "refresh-token",
	MsgTBecomeUser:        "become-user",
	MsgTNewUser:           "new-user",
	MsgTGetUser:           "get-user",
	MsgTGetAllUsers:       "get-all-users",
	MsgTSetUserPerms:      "set-user-perms",
	MsgTDeleteUser:        "delete-user",
}

// String returns the string representation of a MessageType.
func (t MessageType) String() string {
	if t >= msgTypeSentinel {
		return "unknown"
	}
	return messageTypeNames[t]
}

// ParseMessageType converts a wire name back to a MessageType
func ParseMessageType(s string) (MessageType, error) {
	for i, name := range messageTypeNames {
		if name == s {
			return MessageType(i), nil
		}
	}
	return MsgTUnknown, fmt.Errorf("unknown message type: %s", s)
}

// MessageTypes returns all valid message types, excluding unknown
func MessageTypes() []MessageType {
	out := make([]MessageType, 0, int(msgTypeSentinel)-1)
	for t := MsgTSuccess; t < msgTypeSentinel; t++ {
		out = append(out, t)
	}
	return out
}

// MarshalJSON implements the json.Marshaller interface for MessageType.
// This allows MessageType to be serialized as a string in JSON.
func (t MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for MessageType.
// This allows MessageType to be deserialized from a string in JSON.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	parsed, err := ParseMessageType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
