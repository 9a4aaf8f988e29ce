package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"storyteller/server/internal/catalog"
	"storyteller/server/internal/config"
	"storyteller/server/internal/model"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62")).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	idStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")).
		Italic(true)

	metaStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	countStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)
)

func newTemplatesCmd(opts *rootOptions) *cobra.Command {
	var (
		age       int
		category  string
		storyType string
	)
	cmd := &cobra.Command{
		Use:   "templates",
		Short: "List the builtin story templates",
		RunE: func(cmd *cobra.Command, args []string) error {
			switch model.StoryType(storyType) {
			case "", model.StoryTypeStatic, model.StoryTypeDynamic:
			default:
				return fmt.Errorf("--type must be static or dynamic, got %q", storyType)
			}
			cat := catalog.NewBuiltin()
			if opts.configPath != "" {
				cfg, err := config.Load(opts.configPath)
				if err != nil {
					return err
				}
				if cat, err = catalog.Open(cfg.Catalog.TemplatesFile); err != nil {
					return err
				}
			}
			templates := cat.Find(catalog.Query{
				Age:       age,
				Category:  category,
				StoryType: model.StoryType(storyType),
			})
			renderTemplates(cmd.OutOrStdout(), templates)
			return nil
		},
	}
	cmd.Flags().IntVar(&age, "age", 0, "only templates suitable for this age")
	cmd.Flags().StringVar(&category, "category", "", "adventure | educational | moral | bedtime | all")
	cmd.Flags().StringVar(&storyType, "type", "", "static | dynamic")
	return cmd
}

func renderTemplates(w io.Writer, templates []model.StoryTemplate) {
	if len(templates) == 0 {
		fmt.Fprintln(w, metaStyle.Render("No templates match."))
		return
	}

	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("Story templates (%s)", countStyle.Render(fmt.Sprint(len(templates))))))
	fmt.Fprintln(w)
	for _, t := range templates {
		fmt.Fprintf(w, "%s  %s\n", titleStyle.Render(t.Title), idStyle.Render(t.ID))
		meta := []string{
			string(t.Category),
			string(t.StoryType),
			fmt.Sprintf("ages %d-%d", t.AgeRange.Min, t.AgeRange.Max),
			fmt.Sprintf("~%d min", t.EstimatedMinutes),
			fmt.Sprintf("%d milestones", len(t.Milestones)),
		}
		fmt.Fprintf(w, "  %s\n", metaStyle.Render(strings.Join(meta, " · ")))
		if t.Description != "" {
			fmt.Fprintf(w, "  %s\n", t.Description)
		}
		fmt.Fprintln(w)
	}
}
