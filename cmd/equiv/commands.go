package equiv

import (
	"fmt"
	"strings"

	"github.com/ValentinKolb/hashserv/cmd/util"
	"github.com/ValentinKolb/hashserv/lib/store"
	"github.com/ValentinKolb/hashserv/rpc/client"
	"github.com/spf13/cobra"
)

var (
	getCmd = &cobra.Command{
		Use:   "get [method] [taskhash...]",
		Short: "Prints the unihash of each taskhash (empty if unknown)",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			method := args[0]
			queries := make([]client.UnihashQuery, 0, len(args)-1)
			for _, taskhash := range args[1:] {
				queries = append(queries, client.UnihashQuery{Method: method, Taskhash: taskhash})
			}
			unihashes, err := rpcClient.GetUnihashBatch(queries)
			if err != nil {
				return err
			}
			for i, unihash := range unihashes {
				fmt.Printf("%s %s\n", queries[i].Taskhash, unihash)
			}
			return nil
		},
	}
	getTaskhashCmd = &cobra.Command{
		Use:   "get-taskhash [method] [taskhash]",
		Short: "Prints the record of a taskhash",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			all, _ := cmd.Flags().GetBool("all")
			rec, err := rpcClient.GetTaskhash(args[0], args[1], all)
			if err != nil {
				return err
			}
			return printRecord(rec)
		},
	}
	getOuthashCmd = &cobra.Command{
		Use:   "get-outhash [method] [outhash] [taskhash]",
		Short: "Prints the record of an outhash, preferring the one of taskhash",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			all, _ := cmd.Flags().GetBool("all")
			rec, err := rpcClient.GetOuthash(args[0], args[1], args[2], all)
			if err != nil {
				return err
			}
			return printRecord(rec)
		},
	}
	existsCmd = &cobra.Command{
		Use:   "exists [unihash...]",
		Short: "Checks if unihashes are known",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			exists, err := rpcClient.UnihashExistsBatch(args)
			if err != nil {
				return err
			}
			for i, ok := range exists {
				fmt.Printf("%s %t\n", args[i], ok)
			}
			return nil
		},
	}
	reportCmd = &cobra.Command{
		Use:   "report [method] [taskhash] [outhash] [unihash]",
		Short: "Reports a task output and prints the unihash to use",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			rec := store.TaskRecord{
				Method:   args[0],
				Taskhash: args[1],
				Outhash:  args[2],
				Unihash:  args[3],
			}
			rec.Owner, _ = cmd.Flags().GetString("owner")
			rec.PN, _ = cmd.Flags().GetString("pn")
			rec.PV, _ = cmd.Flags().GetString("pv")
			rec.PR, _ = cmd.Flags().GetString("pr")
			rec.Task, _ = cmd.Flags().GetString("task")

			stored, err := rpcClient.Report(rec)
			if err != nil {
				return err
			}
			return printRecord(stored)
		},
	}
	statsCmd = &cobra.Command{
		Use:   "stats",
		Short: "Prints the request and connection statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := rpcClient.GetStats()
			if err != nil {
				return err
			}
			return util.PrintJSON(report)
		},
	}
	resetStatsCmd = &cobra.Command{
		Use:   "reset-stats",
		Short: "Resets the statistics and prints them as they were before",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			report, err := rpcClient.ResetStats()
			if err != nil {
				return err
			}
			return util.PrintJSON(report)
		},
	}
	removeCmd = &cobra.Command{
		Use:   "remove [column=value...]",
		Short: "Removes all records matching every condition",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			where, err := util.ParseConditions(args)
			if err != nil {
				return err
			}
			n, err := rpcClient.Remove(where)
			if err != nil {
				return err
			}
			fmt.Printf("removed %d records\n", n)
			return nil
		},
	}
	gcMarkCmd = &cobra.Command{
		Use:   "gc-mark [mark] [column=value...]",
		Short: "Marks the records to keep in the garbage collection named mark",
		Long:  "Marks every record sharing a unihash with a record matching all conditions. Without conditions every record is kept.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			where, err := util.ParseConditions(args[1:])
			if err != nil {
				return err
			}
			n, err := rpcClient.GCMark(args[0], where)
			if err != nil {
				return err
			}
			fmt.Printf("marked %d records\n", n)
			return nil
		},
	}
	gcSweepCmd = &cobra.Command{
		Use:   "gc-sweep [mark]",
		Short: "Removes all records not marked by the garbage collection named mark",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := rpcClient.GCSweep(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("removed %d records\n", n)
			return nil
		},
	}
	gcStatusCmd = &cobra.Command{
		Use:   "gc-status",
		Short: "Prints the state of the running garbage collection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := rpcClient.GCStatus()
			if err != nil {
				return err
			}
			return util.PrintJSON(status)
		},
	}
	usageCmd = &cobra.Command{
		Use:   "usage",
		Short: "Prints the number of rows per table",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			usage, err := rpcClient.GetDBUsage()
			if err != nil {
				return err
			}
			return util.PrintJSON(usage)
		},
	}
	columnsCmd = &cobra.Command{
		Use:   "columns",
		Short: "Prints the columns usable in conditions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			columns, err := rpcClient.GetDBQueryColumns()
			if err != nil {
				return err
			}
			fmt.Println(strings.Join(columns, "\n"))
			return nil
		},
	}
)

func init() {
	getTaskhashCmd.Flags().Bool("all", false, util.WrapString("Print every column of the record"))
	getOuthashCmd.Flags().Bool("all", false, util.WrapString("Print every column of the record"))

	reportCmd.Flags().String("owner", "", util.WrapString("Owner of the record (defaults to the authenticated user)"))
	reportCmd.Flags().String("pn", "", "Package name")
	reportCmd.Flags().String("pv", "", "Package version")
	reportCmd.Flags().String("pr", "", "Package revision")
	reportCmd.Flags().String("task", "", "Task name")
}

func printRecord(rec *store.TaskRecord) error {
	if rec == nil {
		fmt.Println("not found")
		return nil
	}
	return util.PrintJSON(rec)
}
