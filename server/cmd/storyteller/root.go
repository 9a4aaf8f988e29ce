package main

import (
	"github.com/spf13/cobra"
)

var version = "dev"

type rootOptions struct {
	configPath string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "storyteller",
		Short: "Interactive children's storytelling server",
		Long: `StoryTeller runs guided story sessions for children with a remote
conversational avatar, a child-safety classifier and a milestone-driven
story engine.

Quick Start:
  storyteller serve --config server/configs/storyteller.yaml
  storyteller templates --age 5
  storyteller classify "he told me to keep it a secret"`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (defaults only when empty)")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")
	cmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	cmd.AddCommand(newServeCmd(opts), newTemplatesCmd(opts), newClassifyCmd(opts))
	return cmd
}
