package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/banshee-data/listeria.report/internal/monitoring"
	"github.com/banshee-data/listeria.report/internal/samples"
)

func importCommand(a *app) *cobra.Command {
	var replace bool
	cmd := &cobra.Command{
		Use:   "import FILE...",
		Short: "Load lab results from CSV, JSON or YAML files into the database",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			database, err := a.openDB()
			if err != nil {
				return err
			}
			defer database.Close()

			// Parse everything first so a bad file leaves the table untouched.
			batches := make([][]samples.Record, len(args))
			for i, path := range args {
				records, err := samples.LoadFile(path)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				batches[i] = records
			}

			out := cmd.OutOrStdout()
			if replace {
				n, err := database.DeleteAllRecords(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(out, "Removed %d existing records\n", n)
			}
			for i, records := range batches {
				undated := 0
				for _, r := range records {
					if !r.SampleDate.Valid() {
						undated++
					}
				}
				if undated > 0 {
					monitoring.Logf("%s: %d records have no usable sample date and are left out of date summaries", args[i], undated)
				}
				n, err := database.InsertRecords(ctx, records)
				if err != nil {
					return fmt.Errorf("%s: %w", args[i], err)
				}
				fmt.Fprintf(out, "Imported %d records from %s\n", n, args[i])
			}
			total, err := database.CountRecords(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Database now holds %d records\n", total)
			return nil
		},
	}
	cmd.Flags().BoolVar(&replace, "replace", false, "Delete all existing records before importing")
	return cmd
}
