package server

import (
	"github.com/ValentinKolb/hashserv/lib/store"
	"github.com/ValentinKolb/hashserv/rpc/common"
)

// NewIStoreServerAdapter creates the adapter for the equivalence operations
func NewIStoreServerAdapter() IRPCServerAdapter {
	return &iStoreServerAdapterImpl{}
}

type iStoreServerAdapterImpl struct{}

func (adapter *iStoreServerAdapterImpl) Types() []common.MessageType {
	return []common.MessageType{
		common.MsgTGet,
		common.MsgTGetOuthash,
		common.MsgTReport,
		common.MsgTGetStream,
		common.MsgTExistsStream,
		common.MsgTGetStats,
		common.MsgTResetStats,
	}
}

func (adapter *iStoreServerAdapterImpl) Handle(env *requestEnv, req *common.Message) (*common.Message, error) {
	switch req.MsgType {
	case common.MsgTGet:
		if req.Method == "" || req.Taskhash == "" {
			return nil, common.NewInputError("method and taskhash are required")
		}
		rec, err := env.store.Lookup(env.ctx, req.Method, req.Taskhash)
		if err != nil {
			return nil, err
		}
		return common.NewRecordResponse(req.MsgType, project(rec, req.All)), nil

	case common.MsgTGetOuthash:
		if req.Method == "" || req.Outhash == "" {
			return nil, common.NewInputError("method and outhash are required")
		}
		rec, err := env.store.LookupOuthash(env.ctx, req.Method, req.Outhash, req.Taskhash)
		if err != nil {
			return nil, err
		}
		return common.NewRecordResponse(req.MsgType, project(rec, req.All)), nil

	case common.MsgTReport:
		return adapter.report(env, req)

	case common.MsgTGetStream, common.MsgTExistsStream:
		if !env.session.framed {
			return nil, common.NewInputError("%s requires a framed connection", req.MsgType)
		}
		if req.MsgType == common.MsgTGetStream {
			env.session.mode = modeGetStream
		} else {
			env.session.mode = modeExistsStream
		}
		return common.NewAckResponse(req.MsgType), nil

	case common.MsgTGetStats:
		report := env.server.stats.Snapshot()
		return &common.Message{MsgType: req.MsgType, Stats: &report}, nil

	case common.MsgTResetStats:
		// the statistics before the reset are part of the answer
		report := env.server.stats.SnapshotAndReset()
		resp := common.NewAckResponse(req.MsgType)
		resp.Stats = &report
		return resp, nil

	default:
		return nil, common.NewInputError("unsupported message type: %s", req.MsgType)
	}
}

func (adapter *iStoreServerAdapterImpl) report(env *requestEnv, req *common.Message) (*common.Message, error) {
	if req.Record == nil {
		return nil, common.NewInputError("report without record")
	}
	rec := *req.Record
	rec.ID = 0
	if u := env.session.username(); u != "" && rec.Owner == "" {
		rec.Owner = u
	}

	// a read-only server answers with the unihash it would have assigned
	if env.server.config.ReadOnly {
		if rec.Method == "" || rec.Taskhash == "" || rec.Outhash == "" || rec.Unihash == "" {
			return nil, common.NewInputError("method, taskhash, outhash and unihash are required")
		}
		found, err := env.store.LookupOuthash(env.ctx, rec.Method, rec.Outhash, rec.Taskhash)
		if err != nil {
			return nil, err
		}
		if found != nil {
			rec.Unihash = found.Unihash
		}
		return common.NewRecordResponse(req.MsgType, rec.Short()), nil
	}

	stored, inserted, err := env.store.Report(env.ctx, rec)
	if err != nil {
		return nil, err
	}
	if inserted {
		env.server.metrics.inserted.Inc()
		Logger.Debugf("Added %s %s -> %s", stored.Method, stored.Taskhash, stored.Unihash)
	}
	return common.NewRecordResponse(req.MsgType, stored.Short()), nil
}

// project returns the full record or only its identifying columns
func project(rec *store.TaskRecord, all bool) *store.TaskRecord {
	if rec == nil || all {
		return rec
	}
	return rec.Short()
}
