package cmd

import (
	"fmt"
	"os"

	"github.com/ValentinKolb/hashserv/cmd/equiv"
	"github.com/ValentinKolb/hashserv/cmd/serve"
	"github.com/ValentinKolb/hashserv/cmd/user"
	"github.com/ValentinKolb/hashserv/cmd/util"
	"github.com/ValentinKolb/hashserv/rpc/common"
	"github.com/spf13/cobra"
)

const (
	Version = "1.0.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "hashserv",
		Short: "hash equivalence server",
		Long: fmt.Sprintf(`hashserv (v%s)

A hash equivalence server and client. Build tasks whose inputs differ but
whose outputs are identical are mapped to one unihash, so everything that
depends on them can be reused.

Protocol: %s`, Version, common.Hello()),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of hashserv",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("hashserv v%s (protocol %s)\n", Version, common.Hello())
		},
	}
)

func init() {
	// Add Commands
	RootCmd.AddCommand(serve.ServeCmd)
	RootCmd.AddCommand(equiv.ClientCommands)
	RootCmd.AddCommand(user.UserCommands)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "serializer"
	RootCmd.PersistentFlags().String(key, "json", util.WrapString("serializer of the normal mode messages (json, gob, cbor)"))
	key = "transport"
	RootCmd.PersistentFlags().String(key, "tcp", util.WrapString("transport to use (tcp, unix; http for the json api of the server)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
