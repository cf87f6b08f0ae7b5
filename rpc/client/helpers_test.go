package client

import (
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ValentinKolb/hashserv/lib/auth"
	"github.com/ValentinKolb/hashserv/lib/store"
	"github.com/ValentinKolb/hashserv/lib/store/sqlstore"
	"github.com/ValentinKolb/hashserv/rpc/common"
	"github.com/ValentinKolb/hashserv/rpc/serializer"
	"github.com/ValentinKolb/hashserv/rpc/server"
	"github.com/ValentinKolb/hashserv/rpc/transport/base"
	"github.com/ValentinKolb/hashserv/rpc/transport/tcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

const (
	testAdmin      = "admin"
	testAdminToken = "admin-secret"
)

func TestMain(m *testing.M) {
	auth.SetHashCost(bcrypt.MinCost)
	os.Exit(m.Run())
}

// startServer starts a real server and returns its address
func startServer(t *testing.T, mutate func(*common.ServerConfig)) string {
	t.Helper()

	config := common.ServerConfig{
		Transport:  "tcp",
		Endpoint:   "127.0.0.1:0",
		Serializer: "json",
		DBPath:     filepath.Join(t.TempDir(), "hashserv.db"),
		AdminUser:  testAdmin,
		AdminToken: testAdminToken,
		LogLevel:   "error",
	}
	if mutate != nil {
		mutate(&config)
	}

	s := server.NewRPCServer(config, sqlstore.NewFactory(config.DBPath), tcp.NewTCPServerTransport(), serializer.NewJSONSerializer())
	require.NoError(t, s.Start())
	t.Cleanup(func() { assert.NoError(t, s.Shutdown()) })
	return s.Addr()
}

// testConfig is the client configuration used by the tests
func testConfig(endpoint string) common.ClientConfig {
	return common.ClientConfig{
		Transport:     "tcp",
		Endpoint:      endpoint,
		Serializer:    "json",
		TimeoutSecond: 5,
		RetryCount:    3,
		PoolSize:      4,
	}
}

func newTestClient(t *testing.T, config common.ClientConfig) *Client {
	t.Helper()
	c, err := NewClientFromConfig(config)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

// dropConnection closes the connection under the client as a network failure would
func dropConnection(c *Client) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		c.conn.Close()
	}
}

func mustReport(t *testing.T, c *Client, method, taskhash, outhash, unihash string) string {
	t.Helper()
	rec, err := c.Report(store.TaskRecord{Method: method, Taskhash: taskhash, Outhash: outhash, Unihash: unihash})
	require.NoError(t, err)
	require.NotNil(t, rec)
	return rec.Unihash
}

// --------------------------------------------------------------------------
// Scripted server
// --------------------------------------------------------------------------

// fakeServer accepts connections and hands each one to a script. The script
// gets the index of the connection and records every frame it receives.
type fakeServer struct {
	t      *testing.T
	ln     net.Listener
	ser    serializer.IRPCSerializer
	script func(f *fakeServer, conn *base.Conn, index int)

	mu     sync.Mutex
	frames [][]string // received frames per connection
	wg     sync.WaitGroup
}

func startFakeServer(t *testing.T, script func(f *fakeServer, conn *base.Conn, index int)) *fakeServer {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	f := &fakeServer{t: t, ln: ln, ser: serializer.NewJSONSerializer(), script: script}
	f.wg.Add(1)
	go f.accept()

	t.Cleanup(func() {
		ln.Close()
		f.wg.Wait()
	})
	return f
}

func (f *fakeServer) addr() string {
	return f.ln.Addr().String()
}

func (f *fakeServer) accept() {
	defer f.wg.Done()
	for index := 0; ; index++ {
		nc, err := f.ln.Accept()
		if err != nil {
			return
		}

		f.mu.Lock()
		f.frames = append(f.frames, nil)
		f.mu.Unlock()

		f.wg.Add(1)
		go func(index int) {
			defer f.wg.Done()
			conn := base.NewConn(nc, 5*time.Second)
			defer conn.Close()
			f.script(f, conn, index)
		}(index)
	}
}

// recv reads one frame and records it
func (f *fakeServer) recv(conn *base.Conn, index int) (string, bool) {
	s, err := conn.RecvString()
	if err != nil {
		return "", false
	}
	f.mu.Lock()
	f.frames[index] = append(f.frames[index], s)
	f.mu.Unlock()
	return s, true
}

// received returns the frames of one connection
func (f *fakeServer) received(index int) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if index >= len(f.frames) {
		return nil
	}
	return append([]string(nil), f.frames[index]...)
}

func (f *fakeServer) connections() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

// hello answers the hello of a connection
func (f *fakeServer) hello(conn *base.Conn, index int) bool {
	if _, ok := f.recv(conn, index); !ok {
		return false
	}
	return conn.SendString(common.AckOK) == nil
}

// request reads one normal mode request
func (f *fakeServer) request(conn *base.Conn, index int) (*common.Message, bool) {
	s, ok := f.recv(conn, index)
	if !ok {
		return nil, false
	}
	var msg common.Message
	if err := f.ser.Deserialize([]byte(s), &msg); err != nil {
		return nil, false
	}
	return &msg, true
}

// respond writes a normal mode response
func (f *fakeServer) respond(conn *base.Conn, msg *common.Message) bool {
	data, err := f.ser.Serialize(*msg)
	if err != nil {
		return false
	}
	return conn.Send(data) == nil
}

// streamAnswers answers stream lines "<method> t<N>" with "u<N>" until END,
// at most limit lines (negative for no limit). It returns false if the
// connection ended before END.
func (f *fakeServer) streamAnswers(conn *base.Conn, index int, limit int) bool {
	for n := 0; limit < 0 || n < limit; n++ {
		line, ok := f.recv(conn, index)
		if !ok {
			return false
		}
		if line == common.StreamEnd {
			return conn.SendString(common.AckOK) == nil
		}
		if err := conn.SendString(answerFor(line)); err != nil {
			return false
		}
	}
	return false
}

// answerFor maps "m t<N>" to "u<N>"
func answerFor(line string) string {
	for i := len(line) - 1; i >= 0; i-- {
		if line[i] == 't' {
			return "u" + line[i+1:]
		}
	}
	return ""
}
