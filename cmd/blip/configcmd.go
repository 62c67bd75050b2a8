package main

import (
	"fmt"

	"github.com/casualjim/blip/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration, flags applied",
	RunE: func(cmd *cobra.Command, _ []string) error {
		shown := *settings
		if shown.TLS.Password != "" {
			shown.TLS.Password = "********"
		}
		out, err := yaml.Marshal(&shown)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(out)
		return err
	},
}

var configSchemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the JSON schema of the configuration file",
	RunE: func(cmd *cobra.Command, _ []string) error {
		out, err := config.SchemaJSON()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return err
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSchemaCmd)
}
