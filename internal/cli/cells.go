package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lvonguyen/cdrforge/internal/celllookup"
)

func newCellsCommand(info BuildInfo) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cells",
		Short: "Manage the stored cell tower table",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "import [files or globs...]",
		Short: "Import cell coordinates (cell id, latitude, longitude) into the store",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			paths, err := expandPatterns(args)
			if err != nil {
				return err
			}
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, info)
			if err != nil {
				return err
			}
			defer a.Close()

			total := 0
			for _, path := range paths {
				cells, err := celllookup.ReadCells(path)
				if err != nil {
					return err
				}
				n, err := a.store.UpsertCells(cmd.Context(), cells)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				a.logger.Info("Cell table imported", zap.String("path", path), zap.Int("cells", n))
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s: %d cell(s)\n", styleOK.Render("imported"), path, n)
				total += n
			}
			count, err := a.store.CellCount(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), styleSummary.Render(fmt.Sprintf("%d imported, %d cell(s) stored", total, count)))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "count",
		Short: "Print the number of stored cells",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := loadConfig()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, info)
			if err != nil {
				return err
			}
			defer a.Close()
			n, err := a.store.CellCount(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	})
	return cmd
}
