package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"storyteller/server/internal/config"
	"storyteller/server/internal/safety"
)

// classifyOutput classify 命令的 YAML 输出。
type classifyOutput struct {
	Text     string   `yaml:"text"`
	Level    string   `yaml:"level"`
	Keywords []string `yaml:"keywords,omitempty"`
	Context  string   `yaml:"context,omitempty"`
}

func newClassifyCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "classify <text>",
		Short: "Run the safety classifier on a sentence",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")

			var extra, extraHigh []string
			if opts.configPath != "" {
				cfg, err := config.Load(opts.configPath)
				if err != nil {
					return err
				}
				extra, extraHigh = cfg.Safety.ExtraKeywords, cfg.Safety.ExtraHighRisk
			}
			classifier := safety.NewClassifier(
				safety.WithExtraKeywords(extra...),
				safety.WithExtraHighRisk(extraHigh...),
			)

			out := classifyOutput{Text: text, Level: "none"}
			if alert := classifier.Classify(text); alert != nil {
				out.Level = string(alert.Level)
				out.Keywords = alert.Keywords
				out.Context = string(alert.Context)
			}

			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(out); err != nil {
				return fmt.Errorf("encode result: %w", err)
			}
			return enc.Close()
		},
	}
}
