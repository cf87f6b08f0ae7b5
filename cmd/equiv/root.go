package equiv

import (
	"github.com/ValentinKolb/hashserv/cmd/util"
	"github.com/ValentinKolb/hashserv/rpc/client"
	"github.com/spf13/cobra"
)

var (
	rpcClient *client.Client

	// ClientCommands represents the equivalence command group
	ClientCommands = &cobra.Command{
		Use:                "client",
		Aliases:            []string{"equiv"},
		Short:              "Query and administrate a hash equivalence server",
		PersistentPreRunE:  setupClient,
		PersistentPostRunE: closeClient,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add common RPC flags to the client command
	util.SetupRPCClientFlags(ClientCommands)

	// Add subcommands
	ClientCommands.AddCommand(getCmd)
	ClientCommands.AddCommand(getTaskhashCmd)
	ClientCommands.AddCommand(getOuthashCmd)
	ClientCommands.AddCommand(existsCmd)
	ClientCommands.AddCommand(reportCmd)
	ClientCommands.AddCommand(statsCmd)
	ClientCommands.AddCommand(resetStatsCmd)
	ClientCommands.AddCommand(removeCmd)
	ClientCommands.AddCommand(gcMarkCmd)
	ClientCommands.AddCommand(gcSweepCmd)
	ClientCommands.AddCommand(gcStatusCmd)
	ClientCommands.AddCommand(usageCmd)
	ClientCommands.AddCommand(columnsCmd)
	ClientCommands.AddCommand(perfTestCmd)
}

// setupClient initializes the client of the command
func setupClient(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	if err := util.InitLogging(); err != nil {
		return err
	}

	var err error
	rpcClient, err = client.NewClientFromConfig(*util.GetClientConfig())
	return err
}

func closeClient(_ *cobra.Command, _ []string) error {
	if rpcClient == nil {
		return nil
	}
	return rpcClient.Close()
}
