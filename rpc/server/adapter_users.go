package server

import (
	"github.com/ValentinKolb/hashserv/lib/auth"
	"github.com/ValentinKolb/hashserv/lib/store"
	"github.com/ValentinKolb/hashserv/rpc/common"
)

// NewUserServerAdapter creates the adapter for authentication and user management
func NewUserServerAdapter() IRPCServerAdapter {
	return &userServerAdapterImpl{}
}

type userServerAdapterImpl struct{}

func (adapter *userServerAdapterImpl) Types() []common.MessageType {
	return []common.MessageType{
		common.MsgTAuth,
		common.MsgTRefreshToken,
		common.MsgTBecomeUser,
		common.MsgTNewUser,
		common.MsgTGetUser,
		common.MsgTGetAllUsers,
		common.MsgTSetUserPerms,
		common.MsgTDeleteUser,
	}
}

func (adapter *userServerAdapterImpl) Handle(env *requestEnv, req *common.Message) (*common.Message, error) {
	switch req.MsgType {
	case common.MsgTAuth:
		return adapter.auth(env, req)

	case common.MsgTRefreshToken:
		target, err := adapter.target(env, req.Username)
		if err != nil {
			return nil, err
		}
		token := auth.NewToken()
		hash, err := auth.HashToken(token)
		if err != nil {
			return nil, err
		}
		if err := env.store.SetUserToken(env.ctx, target, hash); err != nil {
			return nil, err
		}
		if target == env.session.username() {
			env.session.user.TokenHash = hash
		}
		Logger.Infof("%s refreshed the token of %s", describe(env.session), target)
		return &common.Message{MsgType: req.MsgType, Username: target, Token: token}, nil

	case common.MsgTBecomeUser:
		user, err := adapter.load(env, req.Username)
		if err != nil {
			return nil, err
		}
		Logger.Infof("%s became user %s", describe(env.session), user.Username)
		if err := env.session.setUser(user); err != nil {
			return nil, err
		}
		return common.NewUserResponse(req.MsgType, user), nil

	case common.MsgTNewUser:
		perms, err := auth.ParsePermissions(req.Permissions)
		if err != nil {
			return nil, common.NewInputError("%v", err)
		}
		token := auth.NewToken()
		hash, err := auth.HashToken(token)
		if err != nil {
			return nil, err
		}
		user := store.User{Username: req.Username, TokenHash: hash, Permissions: perms.List()}
		if err := env.store.NewUser(env.ctx, user); err != nil {
			return nil, err
		}
		Logger.Infof("%s created user %s with permissions %s", describe(env.session), user.Username, perms)
		resp := common.NewUserResponse(req.MsgType, &user)
		resp.Token = token
		return resp, nil

	case common.MsgTGetUser:
		target, err := adapter.target(env, req.Username)
		if err != nil {
			return nil, err
		}
		user, err := env.store.GetUser(env.ctx, target)
		if err != nil {
			return nil, err
		}
		if user == nil {
			return &common.Message{MsgType: req.MsgType}, nil
		}
		return common.NewUserResponse(req.MsgType, user), nil

	case common.MsgTGetAllUsers:
		users, err := env.store.GetAllUsers(env.ctx)
		if err != nil {
			return nil, err
		}
		public := make([]store.User, 0, len(users))
		for i := range users {
			public = append(public, *users[i].Public())
		}
		return &common.Message{MsgType: req.MsgType, Users: public}, nil

	case common.MsgTSetUserPerms:
		perms, err := auth.ParsePermissions(req.Permissions)
		if err != nil {
			return nil, common.NewInputError("%v", err)
		}
		if err := env.store.SetUserPerms(env.ctx, req.Username, perms.List()); err != nil {
			return nil, err
		}
		user, err := adapter.load(env, req.Username)
		if err != nil {
			return nil, err
		}
		if user.Username == env.session.username() {
			if err := env.session.setUser(user); err != nil {
				return nil, err
			}
		}
		Logger.Infof("%s set the permissions of %s to %s", describe(env.session), user.Username, perms)
		return common.NewUserResponse(req.MsgType, user), nil

	case common.MsgTDeleteUser:
		if err := env.store.DeleteUser(env.ctx, req.Username); err != nil {
			return nil, err
		}
		Logger.Infof("%s deleted user %s", describe(env.session), req.Username)
		resp := common.NewAckResponse(req.MsgType)
		resp.Username = req.Username
		return resp, nil

	default:
		return nil, common.NewInputError("unsupported message type: %s", req.MsgType)
	}
}

func (adapter *userServerAdapterImpl) auth(env *requestEnv, req *common.Message) (*common.Message, error) {
	user, err := env.store.GetUser(env.ctx, req.Username)
	if err != nil {
		return nil, err
	}
	if user == nil || !auth.CheckToken(user.TokenHash, req.Token) {
		Logger.Warningf("Failed login of %q on connection %d", req.Username, env.session.connID)
		return nil, common.NewPermissionError("invalid username or token")
	}
	if err := env.session.setUser(user); err != nil {
		return nil, err
	}
	Logger.Debugf("Connection %d authenticated as %s", env.session.connID, user.Username)
	return common.NewUserResponse(req.MsgType, user), nil
}

// target resolves the user a self-service request addresses. Other users
// than the session user need the user admin permission.
func (adapter *userServerAdapterImpl) target(env *requestEnv, username string) (string, error) {
	own := env.session.username()
	if username == "" {
		username = own
	}
	if username == "" {
		return "", common.NewPermissionError("not authenticated")
	}
	if username != own && !env.session.permissions(env.server.anonPerms).Has(auth.PermUserAdmin) {
		return "", common.NewPermissionError("%s is required to access other users", auth.PermUserAdmin)
	}
	return username, nil
}

// load reads a user that must exist
func (adapter *userServerAdapterImpl) load(env *requestEnv, username string) (*store.User, error) {
	user, err := env.store.GetUser(env.ctx, username)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, common.NewInputError("user %q does not exist", username)
	}
	return user, nil
}
