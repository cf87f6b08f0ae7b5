package user

import (
	"fmt"
	"strings"

	"github.com/ValentinKolb/hashserv/cmd/util"
	"github.com/ValentinKolb/hashserv/lib/store"
	"github.com/ValentinKolb/hashserv/rpc/client"
	"github.com/spf13/cobra"
)

var (
	rpcClient *client.Client

	// UserCommands represents the user management command group
	UserCommands = &cobra.Command{
		Use:                "user",
		Short:              "Manage the users of a hash equivalence server",
		PersistentPreRunE:  setupUserClient,
		PersistentPostRunE: closeUserClient,
	}

	whoamiCmd = &cobra.Command{
		Use:   "whoami",
		Short: "Prints the user the session acts as",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return printUser(rpcClient.GetUser(""))
		},
	}
	getCmd = &cobra.Command{
		Use:   "get [username]",
		Short: "Prints a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return printUser(rpcClient.GetUser(args[0]))
		},
	}
	listCmd = &cobra.Command{
		Use:   "list",
		Short: "Lists all users",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			users, err := rpcClient.GetAllUsers()
			if err != nil {
				return err
			}
			for _, u := range users {
				fmt.Printf("%s %s\n", u.Username, strings.Join(u.Permissions, ","))
			}
			return nil
		},
	}
	newCmd = &cobra.Command{
		Use:   "new [username] [permission...]",
		Short: "Creates a user and prints its token",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			u, token, err := rpcClient.NewUser(args[0], args[1:])
			if err != nil {
				return err
			}
			fmt.Printf("username=%s permissions=%s\ntoken=%s\n", u.Username, strings.Join(u.Permissions, ","), token)
			return nil
		},
	}
	setPermsCmd = &cobra.Command{
		Use:   "set-perms [username] [permission...]",
		Short: "Replaces the permissions of a user",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return printUser(rpcClient.SetUserPerms(args[0], args[1:]))
		},
	}
	refreshTokenCmd = &cobra.Command{
		Use:   "refresh-token [username]",
		Short: "Issues a new token, for the own user if no username is given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var username string
			if len(args) == 1 {
				username = args[0]
			}
			u, token, err := rpcClient.RefreshToken(username)
			if err != nil {
				return err
			}
			fmt.Printf("username=%s\ntoken=%s\n", u, token)
			return nil
		},
	}
	deleteCmd = &cobra.Command{
		Use:   "delete [username]",
		Short: "Deletes a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rpcClient.DeleteUser(args[0]); err != nil {
				return err
			}
			fmt.Println("deleted successfully")
			return nil
		},
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add common RPC flags to the user command
	util.SetupRPCClientFlags(UserCommands)

	// Add subcommands
	UserCommands.AddCommand(whoamiCmd)
	UserCommands.AddCommand(getCmd)
	UserCommands.AddCommand(listCmd)
	UserCommands.AddCommand(newCmd)
	UserCommands.AddCommand(setPermsCmd)
	UserCommands.AddCommand(refreshTokenCmd)
	UserCommands.AddCommand(deleteCmd)
}

// setupUserClient initializes the client of the command
func setupUserClient(cmd *cobra.Command, _ []string) error {
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

func closeUserClient(_ *cobra.Command, _ []string) error {
	if rpcClient == nil {
		return nil
	}
	return rpcClient.Close()
}

func printUser(u *store.User, err error) error {
	if err != nil {
		return err
	}
	if u == nil {
		fmt.Println("not found")
		return nil
	}
	fmt.Printf("username=%s permissions=%s\n", u.Username, strings.Join(u.Permissions, ","))
	return nil
}
