package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	os.Exit(execute())
}

func execute() int {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	var (
		host  string
		token string
	)

	client := newAPIClient()

	rootCmd := &cobra.Command{
		Use:           "jengabiz",
		Short:         "Jenga Biz hub administration CLI",
		Long:          "Command-line interface for invites, signup, impersonation and roles on the Jenga Biz API.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// flag > env > token file
			if cmd.Flags().Changed("host") {
				client.BaseURL = host
			}
			switch {
			case cmd.Flags().Changed("token"):
				client.Token = token
			case os.Getenv("JENGABIZ_TOKEN") != "":
				client.Token = os.Getenv("JENGABIZ_TOKEN")
			default:
				client.Token = loadToken()
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&host, "host", getAPIURL(), "API base URL")
	rootCmd.PersistentFlags().StringVar(&token, "token", "", "bearer token (defaults to the saved login)")

	rootCmd.AddCommand(newAuthCmd(client))
	rootCmd.AddCommand(newInviteCmd(client))
	rootCmd.AddCommand(newSignupCmd(client))
	rootCmd.AddCommand(newImpersonateCmd(client))
	rootCmd.AddCommand(newMeCmd(client))
	rootCmd.AddCommand(newScopeCmd(client))
	rootCmd.AddCommand(newRoleCmd(client))
	rootCmd.AddCommand(newUserCmd(client))

	return rootCmd
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
