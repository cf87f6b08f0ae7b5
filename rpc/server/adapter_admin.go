package server

import (
	"github.com/ValentinKolb/hashserv/rpc/common"
)

// NewAdminServerAdapter creates the adapter for the database administration
func NewAdminServerAdapter() IRPCServerAdapter {
	return &adminServerAdapterImpl{}
}

type adminServerAdapterImpl struct{}

func (adapter *adminServerAdapterImpl) Types() []common.MessageType {
	return []common.MessageType{
		common.MsgTRemove,
		common.MsgTGCMark,
		common.MsgTGCSweep,
		common.MsgTGCStatus,
		common.MsgTGetDBUsage,
		common.MsgTGetDBQueryColumns,
	}
}

func (adapter *adminServerAdapterImpl) Handle(env *requestEnv, req *common.Message) (*common.Message, error) {
	switch req.MsgType {
	case common.MsgTRemove:
		n, err := env.store.Remove(env.ctx, req.Where)
		if err != nil {
			return nil, err
		}
		Logger.Infof("%s removed %d rows where %v", describe(env.session), n, req.Where)
		return common.NewCountResponse(req.MsgType, n), nil

	case common.MsgTGCMark:
		n, err := env.store.GCMark(env.ctx, req.Mark, req.Where)
		if err != nil {
			return nil, err
		}
		Logger.Infof("GC mark %q: %d rows tagged", req.Mark, n)
		return common.NewCountResponse(req.MsgType, n), nil

	case common.MsgTGCSweep:
		n, err := env.store.GCSweep(env.ctx, req.Mark)
		if err != nil {
			return nil, err
		}
		Logger.Infof("GC sweep %q: %d rows removed", req.Mark, n)
		return common.NewCountResponse(req.MsgType, n), nil

	case common.MsgTGCStatus:
		status, err := env.store.GCStatus(env.ctx)
		if err != nil {
			return nil, err
		}
		return &common.Message{MsgType: req.MsgType, GC: &status}, nil

	case common.MsgTGetDBUsage:
		usage, err := env.store.Usage(env.ctx)
		if err != nil {
			return nil, err
		}
		return &common.Message{MsgType: req.MsgType, Usage: usage}, nil

	case common.MsgTGetDBQueryColumns:
		return &common.Message{MsgType: req.MsgType, Columns: env.store.QueryColumns()}, nil

	default:
		return nil, common.NewInputError("unsupported message type: %s", req.MsgType)
	}
}
