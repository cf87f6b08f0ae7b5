package client

import (
	"github.com/ValentinKolb/hashserv/lib/stats"
	"github.com/ValentinKolb/hashserv/lib/store"
	"github.com/ValentinKolb/hashserv/rpc/common"
)

// UnihashQuery identifies a task whose unihash is looked up
type UnihashQuery struct {
	Method   string
	Taskhash string
}

func (q UnihashQuery) line() string {
	return q.Method + " " + q.Taskhash
}

// --------------------------------------------------------------------------
// Stream operations
// --------------------------------------------------------------------------

// GetUnihash returns the unihash of a task, "" if the server doesn't know it
func (c *Client) GetUnihash(method, taskhash string) (string, error) {
	r, err := c.GetUnihashBatch([]UnihashQuery{{Method: method, Taskhash: taskhash}})
	if err != nil {
		return "", err
	}
	return r[0], nil
}

// GetUnihashBatch looks up many unihashes with pipelined requests.
// The result has one entry per query, "" for unknown tasks.
func (c *Client) GetUnihashBatch(queries []UnihashQuery) ([]string, error) {
	i := 0
	return c.GetUnihashesFrom(func() (UnihashQuery, bool) {
		if i >= len(queries) {
			return UnihashQuery{}, false
		}
		i++
		return queries[i-1], true
	})
}

// GetUnihashesFrom looks up the unihashes of all queries next yields until it returns false
func (c *Client) GetUnihashesFrom(next func() (UnihashQuery, bool)) ([]string, error) {
	return c.streamBatch(ModeGetStream, func() (string, bool) {
		q, ok := next()
		return q.line(), ok
	})
}

// UnihashExists reports whether the server knows a unihash
func (c *Client) UnihashExists(unihash string) (bool, error) {
	r, err := c.UnihashExistsBatch([]string{unihash})
	if err != nil {
		return false, err
	}
	return r[0], nil
}

// UnihashExistsBatch checks many unihashes with pipelined requests
func (c *Client) UnihashExistsBatch(unihashes []string) ([]bool, error) {
	i := 0
	return c.UnihashesExistFrom(func() (string, bool) {
		if i >= len(unihashes) {
			return "", false
		}
		i++
		return unihashes[i-1], true
	})
}

// UnihashesExistFrom checks all unihashes next yields until it returns false
func (c *Client) UnihashesExistFrom(next func() (string, bool)) ([]bool, error) {
	replies, err := c.streamBatch(ModeExistStream, next)
	if err != nil {
		return nil, err
	}
	exists := make([]bool, len(replies))
	for i, r := range replies {
		exists[i] = r == common.ExistsTrue
	}
	return exists, nil
}

// --------------------------------------------------------------------------
// Equivalence operations
// --------------------------------------------------------------------------

// Report reports the output of a task and returns the unihash the server
// assigned, which is the unihash of an equivalent earlier output if there is one
func (c *Client) Report(rec store.TaskRecord) (*store.TaskRecord, error) {
	resp, err := c.invoke(common.NewReportRequest(rec))
	if err != nil {
		return nil, err
	}
	return resp.Record, nil
}

// GetTaskhash returns the earliest record of a task, nil if there is none.
// Without all only method, taskhash and unihash are set.
func (c *Client) GetTaskhash(method, taskhash string, all bool) (*store.TaskRecord, error) {
	resp, err := c.invoke(common.NewGetRequest(method, taskhash, all))
	if err != nil {
		return nil, err
	}
	return resp.Record, nil
}

// GetOuthash returns the record of an output, preferring the one of taskhash
func (c *Client) GetOuthash(method, outhash, taskhash string, all bool) (*store.TaskRecord, error) {
	resp, err := c.invoke(common.NewGetOuthashRequest(method, outhash, taskhash, all))
	if err != nil {
		return nil, err
	}
	return resp.Record, nil
}

// GetStats returns the request and connection statistics of the server
func (c *Client) GetStats() (stats.PairReport, error) {
	resp, err := c.invoke(&common.Message{MsgType: common.MsgTGetStats})
	if err != nil {
		return stats.PairReport{}, err
	}
	if resp.Stats == nil {
		return stats.PairReport{}, common.NewProtocolError("get-stats response without stats")
	}
	return *resp.Stats, nil
}

// ResetStats resets the statistics and returns them as they were before
func (c *Client) ResetStats() (stats.PairReport, error) {
	resp, err := c.invoke(&common.Message{MsgType: common.MsgTResetStats})
	if err != nil {
		return stats.PairReport{}, err
	}
	if resp.Stats == nil {
		return stats.PairReport{}, nil
	}
	return *resp.Stats, nil
}

// --------------------------------------------------------------------------
// Database administration
// --------------------------------------------------------------------------

// Remove deletes all records matching every column=value condition of where
func (c *Client) Remove(where map[string]string) (int64, error) {
	resp, err := c.invoke(common.NewWhereRequest(common.MsgTRemove, "", where))
	if err != nil {
		return 0, err
	}
	return resp.Count, nil
}

// GCMark starts or continues the garbage collection named mark. Records that
// share a unihash with a record matching where are kept by the next sweep, as
// are records reported while the collection is running.
func (c *Client) GCMark(mark string, where map[string]string) (int64, error) {
	resp, err := c.invoke(common.NewWhereRequest(common.MsgTGCMark, mark, where))
	if err != nil {
		return 0, err
	}
	return resp.Count, nil
}

// GCSweep finishes the garbage collection named mark and deletes all records
// it didn't mark. It returns the number of deleted records.
func (c *Client) GCSweep(mark string) (int64, error) {
	resp, err := c.invoke(common.NewWhereRequest(common.MsgTGCSweep, mark, nil))
	if err != nil {
		return 0, err
	}
	return resp.Count, nil
}

// GCStatus returns the state of the running garbage collection
func (c *Client) GCStatus() (store.GCStatus, error) {
	resp, err := c.invoke(&common.Message{MsgType: common.MsgTGCStatus})
	if err != nil {
		return store.GCStatus{}, err
	}
	if resp.GC == nil {
		return store.GCStatus{}, nil
	}
	return *resp.GC, nil
}

// GetDBUsage returns the number of rows per table
func (c *Client) GetDBUsage() (map[string]int64, error) {
	resp, err := c.invoke(&common.Message{MsgType: common.MsgTGetDBUsage})
	if err != nil {
		return nil, err
	}
	return resp.Usage, nil
}

// GetDBQueryColumns returns the columns usable in where conditions
func (c *Client) GetDBQueryColumns() ([]string, error) {
	resp, err := c.invoke(&common.Message{MsgType: common.MsgTGetDBQueryColumns})
	if err != nil {
		return nil, err
	}
	return resp.Columns, nil
}

// --------------------------------------------------------------------------
// Users
// --------------------------------------------------------------------------

// Auth authenticates the connection. The identity is kept and restored on
// every reconnect, an active impersonation ends.
func (c *Client) Auth(username, token string) (*store.User, error) {
	resp, err := c.invoke(common.NewAuthRequest(username, token))
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.username = username
	c.token = token
	c.become = ""
	c.mu.Unlock()

	return resp.User, nil
}

// RefreshToken issues a new token for username, or for the own user if
// username is empty. The stored token is replaced if the new one belongs
// to the identity the client authenticates as.
func (c *Client) RefreshToken(username string) (user, token string, err error) {
	resp, err := c.invoke(&common.Message{MsgType: common.MsgTRefreshToken, Username: username})
	if err != nil {
		return "", "", err
	}

	c.mu.Lock()
	if c.username != "" && c.become == "" && resp.Username == c.username {
		c.token = resp.Token
	}
	c.mu.Unlock()

	return resp.Username, resp.Token, nil
}

// BecomeUser makes the session act as another user. The impersonation is
// restored on every reconnect.
func (c *Client) BecomeUser(username string) (*store.User, error) {
	resp, err := c.invoke(common.NewUserRequest(common.MsgTBecomeUser, username, nil))
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if username == c.username {
		c.become = ""
	} else {
		c.become = username
	}
	c.mu.Unlock()

	return resp.User, nil
}

// NewUser creates a user and returns it together with its token
func (c *Client) NewUser(username string, permissions []string) (*store.User, string, error) {
	resp, err := c.invoke(common.NewUserRequest(common.MsgTNewUser, username, permissions))
	if err != nil {
		return nil, "", err
	}
	return resp.User, resp.Token, nil
}

// GetUser returns a user, or the own user if username is empty. It returns
// nil if the user doesn't exist.
func (c *Client) GetUser(username string) (*store.User, error) {
	resp, err := c.invoke(common.NewUserRequest(common.MsgTGetUser, username, nil))
	if err != nil {
		return nil, err
	}
	return resp.User, nil
}

// GetAllUsers returns all users
func (c *Client) GetAllUsers() ([]store.User, error) {
	resp, err := c.invoke(&common.Message{MsgType: common.MsgTGetAllUsers})
	if err != nil {
		return nil, err
	}
	return resp.Users, nil
}

// SetUserPerms replaces the permissions of a user
func (c *Client) SetUserPerms(username string, permissions []string) (*store.User, error) {
	resp, err := c.invoke(common.NewUserRequest(common.MsgTSetUserPerms, username, permissions))
	if err != nil {
		return nil, err
	}
	return resp.User, nil
}

// DeleteUser deletes a user
func (c *Client) DeleteUser(username string) error {
	_, err := c.invoke(common.NewUserRequest(common.MsgTDeleteUser, username, nil))
	return err
}
