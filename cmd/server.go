package cmd

import (
	"assembly-worker/config"
	server2 "assembly-worker/server"
	"github.com/spf13/cobra"
)

func server(config *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "server",
		Short: "start http server",
		Run: func(cmd *cobra.Command, args []string) {
			server2.RunHttp(config)
		},
	}
}
