package main

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"github.com/joelkehle/ddr-generator/internal/store"
)

func newHistoryCmd(a *app) *cobra.Command {
	var (
		limit    int
		markdown bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List previously generated reports, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := a.openStore()
			if err != nil {
				return err
			}
			defer s.Close()
			if limit <= 0 {
				limit = a.cfg.HistoryLimit
			}
			runs, err := s.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), historyTable(runs, markdown))
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of runs (defaults to history_limit)")
	cmd.Flags().BoolVar(&markdown, "markdown", false, "Render the table as markdown")
	return cmd
}

func historyTable(runs []store.Run, markdown bool) string {
	w := table.NewWriter()
	w.AppendHeader(table.Row{"ID", "Created", "Severity", "Conflicts", "Lines", "Rules"})
	for _, r := range runs {
		w.AppendRow(table.Row{
			r.ID,
			r.CreatedAt.Local().Format("2006-01-02 15:04"),
			r.Severity,
			r.ConflictsCount,
			r.ExtractionCount,
			r.RulesVersion,
		})
	}
	w.AppendFooter(table.Row{"", "", "", "", "Total", len(runs)})
	w.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
	})
	if markdown {
		return w.RenderMarkdown()
	}
	w.SetStyle(table.StyleLight)
	return w.Render()
}
