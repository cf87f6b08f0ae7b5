package serializer

import (
	"testing"
	"time"

	"github.com/ValentinKolb/hashserv/lib/stats"
	"github.com/ValentinKolb/hashserv/lib/store"
	"github.com/ValentinKolb/hashserv/rpc/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testSerializers is a map of serializer name to factory function
var testSerializers = map[string]func() IRPCSerializer{
	"JSON": NewJSONSerializer,
	"GOB":  NewGOBSerializer,
	"CBOR": NewCBORSerializer,
}

// testMessages creates a set of test messages with different fields filled
func testMessages() []common.Message {
	created := time.Date(2024, 5, 17, 12, 30, 45, 123456789, time.UTC)

	return []common.Message{
		// Basic message with just a type
		{MsgType: common.MsgTSuccess},

		// Get request
		*common.NewGetRequest("do_compile", "0123abcd", true),

		// Full record response
		{
			MsgType: common.MsgTGet,
			Record: &store.TaskRecord{
				ID:       42,
				Method:   "do_compile",
				Outhash:  "ffee",
				Taskhash: "0123abcd",
				Unihash:  "cafe",
				Created:  created,
				Owner:    "alice",
				PN:       "busybox",
				PV:       "1.36.1",
				PR:       "r0",
				Task:     "do_compile",
			},
		},

		// Stats response
		{
			MsgType: common.MsgTGetStats,
			Stats: &stats.PairReport{
				Requests:    stats.Report{Num: 3, TotalTime: 0.75, MaxTime: 0.5, Average: 0.25, Stdev: 0.2},
				Connections: stats.Report{Num: 1, TotalTime: 2, MaxTime: 2, Average: 2},
			},
		},

		// Gc mark request
		*common.NewWhereRequest(common.MsgTGCMark, "ABC", map[string]string{"PN": "busybox"}),

		// User response
		{
			MsgType: common.MsgTGetAllUsers,
			Users: []store.User{
				{Username: "alice", Permissions: []string{"@read"}},
				{Username: "bob", Permissions: []string{"@all"}},
			},
		},

		// Usage response
		{
			MsgType: common.MsgTGetDBUsage,
			Usage:   map[string]int64{"tasks": 12, "users": 2},
		},

		// Error response
		*common.NewErrorResponse(common.NewPermissionError("user alice lacks @db-admin")),
	}
}

// TestSerializerRoundTrip tests that messages can be serialized and deserialized correctly
func TestSerializerRoundTrip(t *testing.T) {
	messages := testMessages()

	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			for i, msg := range messages {
				data, err := serializer.Serialize(msg)
				require.NoError(t, err, "serialize message %d", i)

				var result common.Message
				require.NoError(t, serializer.Deserialize(data, &result), "deserialize message %d", i)

				// timestamps may come back with a different location pointer
				if msg.Record != nil && result.Record != nil {
					assert.True(t, msg.Record.Created.Equal(result.Record.Created), "message %d: created", i)
					result.Record.Created = msg.Record.Created
				}
				assert.Equal(t, msg, result, "message %d doesn't match after round trip", i)
			}
		})
	}
}

// TestMessageTypes tests each message type with each serializer
func TestMessageTypes(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			for _, msgType := range common.MessageTypes() {
				data, err := serializer.Serialize(common.Message{MsgType: msgType})
				require.NoError(t, err, "serialize %s", msgType)

				var result common.Message
				require.NoError(t, serializer.Deserialize(data, &result), "deserialize %s", msgType)
				assert.Equal(t, msgType, result.MsgType)
			}
		})
	}
}

// TestTokenHashNeverSerialized verifies the json and cbor encodings skip the token hash
func TestTokenHashNeverSerialized(t *testing.T) {
	msg := common.Message{
		MsgType: common.MsgTGetUser,
		User:    &store.User{Username: "alice", TokenHash: "$2a$10$secret"},
	}

	for _, name := range []string{"JSON", "CBOR"} {
		data, err := testSerializers[name]().Serialize(msg)
		require.NoError(t, err)
		assert.NotContains(t, string(data), "secret", name)
	}
}

// TestJSONWireNames checks the readable names of the json encoding
func TestJSONWireNames(t *testing.T) {
	data, err := NewJSONSerializer().Serialize(*common.NewErrorResponse(common.NewInputError("bad")))
	require.NoError(t, err)
	assert.JSONEq(t, `{"msg_type":"error","err":"bad","err_kind":"input"}`, string(data))

	var msg common.Message
	err = NewJSONSerializer().Deserialize([]byte(`{"msg_type":"no-such-type"}`), &msg)
	assert.Error(t, err)
}

// TestCBORDeterministic verifies equal messages encode to equal bytes
func TestCBORDeterministic(t *testing.T) {
	msg := *common.NewWhereRequest(common.MsgTRemove, "", map[string]string{
		"method": "m", "taskhash": "t", "PN": "p", "owner": "o",
	})

	s := NewCBORSerializer()
	first, err := s.Serialize(msg)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := s.Serialize(msg)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestByName(t *testing.T) {
	for _, name := range Names {
		s, err := ByName(name)
		require.NoError(t, err)
		assert.NotNil(t, s)
	}

	_, err := ByName("binary")
	assert.Error(t, err)
}

func TestJSONFraming(t *testing.T) {
	s := NewJSONSerializer()

	data, err := s.Serialize(common.Message{
		MsgType: common.MsgTReport,
		Record:  &store.TaskRecord{Method: "m", Taskhash: "t", OuthashSiginfo: "<a & b>"},
	})
	require.NoError(t, err)
	assert.Contains(t, string(data), "<a & b>")
	assert.NotContains(t, string(data), "\n")

	var msg common.Message
	assert.Error(t, s.Deserialize([]byte(`{"msg_type":"get"} {"msg_type":"get"}`), &msg))
	assert.Error(t, s.Deserialize(nil, &msg))
}

func TestGOBRejectsBrokenFrames(t *testing.T) {
	s := NewGOBSerializer()

	var msg common.Message
	assert.Error(t, s.Deserialize(nil, &msg))

	data, err := s.Serialize(*common.NewGetRequest("m", "t", false))
	require.NoError(t, err)
	assert.Error(t, s.Deserialize(data[:len(data)/2], &msg))
	assert.Error(t, s.Deserialize(append(data, 0x01), &msg))
}
