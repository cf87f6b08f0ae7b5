package serializer

import (
	"testing"

	"github.com/ValentinKolb/hashserv/lib/store"
	"github.com/ValentinKolb/hashserv/rpc/common"
)

// benchmarkMessages returns a set of messages for targeted benchmarking
func benchmarkMessages() map[string]common.Message {
	return map[string]common.Message{
		"Empty": {
			MsgType: common.MsgTSuccess,
		},
		"GetRequest": *common.NewGetRequest("do_compile",
			"c0ffee0123456789c0ffee0123456789c0ffee0123456789c0ffee0123456789", false),
		"ShortRecord": {
			MsgType: common.MsgTGet,
			Record: &store.TaskRecord{
				Method:   "do_compile",
				Taskhash: "c0ffee0123456789c0ffee0123456789c0ffee0123456789c0ffee0123456789",
				Unihash:  "deadbeef0123456789deadbeef0123456789deadbeef0123456789deadbeef01",
			},
		},
		"ReportRequest": *common.NewReportRequest(store.TaskRecord{
			Method:   "do_compile",
			Taskhash: "c0ffee0123456789c0ffee0123456789c0ffee0123456789c0ffee0123456789",
			Outhash:  "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef",
			Unihash:  "deadbeef0123456789deadbeef0123456789deadbeef0123456789deadbeef01",
			Owner:    "builder",
			PN:       "busybox",
			PV:       "1.36.1",
			PR:       "r0",
			Task:     "do_compile",
		}),
		"ErrorMessage": *common.NewErrorResponse(common.NewInputError(
			"Lorem ipsum dolor sit amet, consectetur adipiscing elit. Sed do eiusmod tempor incididunt ut labore.")),
	}
}

// BenchmarkSerialize benchmarks serialization for all implementations with various message types
func BenchmarkSerialize(b *testing.B) {
	messages := benchmarkMessages()

	for name, factory := range testSerializers {
		for msgName, msg := range messages {
			b.Run(name+"_"+msgName, func(b *testing.B) {
				serializer := factory()
				b.ResetTimer()

				for i := 0; i < b.N; i++ {
					if _, err := serializer.Serialize(msg); err != nil {
						b.Fatalf("Failed to serialize: %v", err)
					}
				}
			})
		}
	}
}

// BenchmarkDeserialize benchmarks deserialization for all implementations with various message types
func BenchmarkDeserialize(b *testing.B) {
	messages := benchmarkMessages()

	for name, factory := range testSerializers {
		for msgName, msg := range messages {
			b.Run(name+"_"+msgName, func(b *testing.B) {
				serializer := factory()
				data, err := serializer.Serialize(msg)
				if err != nil {
					b.Fatalf("Failed to serialize: %v", err)
				}
				b.ReportMetric(float64(len(data)), "bytes")
				b.ResetTimer()

				for i := 0; i < b.N; i++ {
					var out common.Message
					if err := serializer.Deserialize(data, &out); err != nil {
						b.Fatalf("Failed to deserialize: %v", err)
					}
				}
			})
		}
	}
}
