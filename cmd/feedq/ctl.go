package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/pders01/feedq/internal/admin"
)

var ctlCmd = &cobra.Command{
	Use:   "ctl <command> [args...]",
	Short: "Send a command to a running feedq",
	Long: `Send an operator command to the admin API of a running feedq and print
the reply. The leading slash is optional.

Commands:
  help                           list commands
  queue                          show the publication queue
  queue_get <guid>               show one queued item
  queue_del <guid>               remove an item from the queue
  queue_delay <guid> <minutes>   publish an item <minutes> from now
  delay [minutes]                show or set the delay between items`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		client := admin.NewClient(cfg.Admin.Listen, cfg.Admin.User)
		reply, ok, err := client.Command(cmd.Context(), commandLine(args))
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if !ok {
			fmt.Fprintln(out, color.YellowString("no reply (unknown command or user %q not allowed)", cfg.Admin.User))
			return nil
		}
		fmt.Fprintln(out, reply)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(ctlCmd)
}

func commandLine(args []string) string {
	name := args[0]
	if !strings.HasPrefix(name, "/") {
		name = "/" + name
	}
	return strings.Join(append([]string{name}, args[1:]...), " ")
}
