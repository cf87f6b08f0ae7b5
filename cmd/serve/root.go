package serve

import (
	"fmt"

	cmdUtil "github.com/ValentinKolb/hashserv/cmd/util"
	"github.com/ValentinKolb/hashserv/lib/store/sqlstore"
	"github.com/ValentinKolb/hashserv/rpc/common"
	"github.com/ValentinKolb/hashserv/rpc/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	serveCmdConfig = &common.ServerConfig{}
	ServeCmd       = &cobra.Command{
		Use:   "serve",
		Short: "Start the hash equivalence server",
		Long: `Start the hash equivalence server with the specified configuration. The configuration can be set via command line flags or environment variables.
The format of the environment variables is HASHSERV_<flag> (e.g. HASHSERV_ADMIN_TOKEN=secret)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(cmdUtil.InitConfig)

	// add flags
	key := "endpoint"
	ServeCmd.PersistentFlags().String(key, "localhost:8686", cmdUtil.WrapString("The address on which the server will listen (host:port for tcp and http, a socket path for unix)"))

	key = "database"
	ServeCmd.PersistentFlags().String(key, "hashserv.db", cmdUtil.WrapString("Path of the SQLite database (:memory: for a throwaway database)"))

	key = "read-only"
	ServeCmd.PersistentFlags().Bool(key, false, cmdUtil.WrapString("Reject all writes. Reports are answered without being stored"))

	key = "anon-perms"
	ServeCmd.PersistentFlags().String(key, "@read,@report", cmdUtil.WrapString("Comma-separated permissions of unauthenticated clients (@none, @read, @report, @db-admin, @user-admin, @all)"))

	key = "admin-user"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Name of a user created with @all on startup"))

	key = "admin-token"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Token of the admin user (prefer the HASHSERV_ADMIN_TOKEN environment variable)"))

	key = "http-prefix"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Path prefix of the json api (only for the http transport)"))

	key = "metrics-endpoint"
	ServeCmd.PersistentFlags().String(key, "", cmdUtil.WrapString("Address of a separate http endpoint serving /metrics (e.g. localhost:9090)"))

	key = "fast-exit"
	ServeCmd.PersistentFlags().Bool(key, false, cmdUtil.WrapString("Exit at once on SIGTERM instead of finishing queued requests"))

	key = "log-level"
	ServeCmd.PersistentFlags().String(key, "info", cmdUtil.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// processConfig reads the configuration from the command line flags and environment variables and converts them to the server configuration
func processConfig(cmd *cobra.Command, _ []string) error {
	// bind the flags to viper
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	if err := cmdUtil.InitLogging(); err != nil {
		return err
	}

	serveCmdConfig.Transport = viper.GetString("transport")
	serveCmdConfig.Serializer = viper.GetString("serializer")
	serveCmdConfig.Endpoint = viper.GetString("endpoint")
	serveCmdConfig.DBPath = viper.GetString("database")
	serveCmdConfig.ReadOnly = viper.GetBool("read-only")
	serveCmdConfig.AnonPerms = cmdUtil.SplitList(viper.GetString("anon-perms"))
	serveCmdConfig.AdminUser = viper.GetString("admin-user")
	serveCmdConfig.AdminToken = viper.GetString("admin-token")
	serveCmdConfig.HTTPPrefix = viper.GetString("http-prefix")
	serveCmdConfig.MetricsEndpoint = viper.GetString("metrics-endpoint")
	serveCmdConfig.FastExit = viper.GetBool("fast-exit")
	serveCmdConfig.LogLevel = viper.GetString("log-level")

	// an empty list would fall back to the defaults
	if serveCmdConfig.AnonPerms == nil {
		serveCmdConfig.AnonPerms = []string{}
	}

	if serveCmdConfig.AdminUser != "" && serveCmdConfig.AdminToken == "" {
		return fmt.Errorf("admin-user %s needs an admin-token", serveCmdConfig.AdminUser)
	}

	return nil
}

// run starts the server and blocks until it is stopped
func run(_ *cobra.Command, _ []string) error {
	s, err := cmdUtil.GetSerializer()
	if err != nil {
		return err
	}

	t, err := cmdUtil.GetServerTransport()
	if err != nil {
		return err
	}

	serv := server.NewRPCServer(
		*serveCmdConfig,
		sqlstore.NewFactory(serveCmdConfig.DBPath),
		t,
		s,
	)

	return serv.Serve()
}
