package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/listeria.report/internal/api"
	"github.com/banshee-data/listeria.report/internal/samples"
	"github.com/banshee-data/listeria.report/internal/security"
	"github.com/banshee-data/listeria.report/internal/stats"
)

func exportTrendCommand(a *app) *cobra.Command {
	var (
		group        string
		output       string
		title        string
		beforeDuring string
		freshSmoked  string
	)
	cmd := &cobra.Command{
		Use:   "export-trend",
		Short: "Render the detection-rate trend to an image file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := stats.ParseGroupKey(group)
			if err != nil {
				return err
			}
			switch strings.ToLower(filepath.Ext(output)) {
			case ".png", ".svg", ".pdf":
			default:
				return fmt.Errorf("output must end in .png, .svg or .pdf, got %q", output)
			}
			if err := security.ValidateExportPath(output); err != nil {
				return err
			}

			database, err := a.openDB()
			if err != nil {
				return err
			}
			defer database.Close()
			store, closeStore, err := a.openStore(cmd.Context(), database)
			if err != nil {
				return err
			}
			defer closeStore()

			filter := samples.Filter{BeforeDuring: strings.ToUpper(beforeDuring), FreshSmoked: freshSmoked}
			if dept, ok := samples.FreshSmokedForSlug(freshSmoked); ok {
				filter.FreshSmoked = dept
			}
			records, err := store.Query(cmd.Context(), filter)
			if err != nil {
				return err
			}

			ts, err := api.BuildTrend(records, key)
			if err != nil {
				return err
			}
			p, err := api.TrendPlot(ts, title)
			if err != nil {
				return err
			}
			if err := p.Save(10*vg.Inch, 5*vg.Inch, output); err != nil {
				return fmt.Errorf("failed to write %s: %w", output, err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote %d %s points to %s\n", len(ts.Points), ts.Group, output)
			if ts.Note != "" {
				fmt.Fprintf(out, "Trend line omitted: %s\n", ts.Note)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&group, "group", "week", "Group by week or date")
	f.StringVarP(&output, "output", "o", "", "Output file (.png, .svg or .pdf)")
	f.StringVar(&title, "title", "Listeria detection rate", "Plot title")
	f.StringVar(&beforeDuring, "before-during", "", "Only BP or DP samples")
	f.StringVar(&freshSmoked, "fresh-smoked", "", "Only one department: fresh, smoked or a raw fresh_smoked value")
	_ = cmd.MarkFlagRequired("output")
	return cmd
}
