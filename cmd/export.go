package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/e1-cli/internal/export"
	"github.com/sells-group/e1-cli/internal/model"
	"github.com/sells-group/e1-cli/internal/pipeline"
	"github.com/sells-group/e1-cli/internal/store"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export zonal summaries and scored records",
	Long: "Writes the zonal summaries of a run (the latest by default) as CSV or as an " +
		"XLSX workbook with one sheet per layer and level, and optionally the scored " +
		"records of a layer as CSV.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		runID, _ := cmd.Flags().GetString("run")
		xlsxPath, _ := cmd.Flags().GetString("xlsx")
		csvPath, _ := cmd.Flags().GetString("csv")
		recordsPath, _ := cmd.Flags().GetString("records-csv")
		layerFlag, _ := cmd.Flags().GetString("layer")

		if xlsxPath == "" && csvPath == "" && recordsPath == "" {
			return eris.New("export: one of --xlsx, --csv or --records-csv is required")
		}

		p, b, err := newPipeline(ctx, true, "")
		if err != nil {
			return err
		}
		defer b.Close()

		layers := recordLayers(layerFlag)

		if xlsxPath != "" || csvPath != "" {
			run, err := selectRun(cmd, b.st, runID)
			if err != nil {
				return err
			}
			byLevel, err := zoneStats(cmd, b.st, run.ID, layers)
			if err != nil {
				return err
			}
			if xlsxPath != "" {
				if err := export.ZoneStatsXLSX(xlsxPath, byLevel); err != nil {
					return err
				}
				zap.L().Info("zonal summaries exported", zap.String("run_id", run.ID), zap.String("path", xlsxPath))
			}
			if csvPath != "" {
				if err := writeFile(csvPath, func(f *os.File) error {
					return export.ZoneStatsCSV(f, flatten(byLevel, layers))
				}); err != nil {
					return err
				}
				zap.L().Info("zonal summaries exported", zap.String("run_id", run.ID), zap.String("path", csvPath))
			}
		}

		if recordsPath != "" {
			if len(layers) != 1 {
				return eris.New("export: --records-csv needs a single --layer")
			}
			records, err := p.Records(ctx, layers[0])
			if err != nil {
				return err
			}
			if err := writeFile(recordsPath, func(f *os.File) error {
				return export.RecordsCSV(f, records)
			}); err != nil {
				return err
			}
			zap.L().Info("records exported",
				zap.String("layer", layers[0]),
				zap.Int("records", len(records)),
				zap.String("path", recordsPath),
			)
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().String("run", "", "run id (defaults to the latest run)")
	exportCmd.Flags().String("xlsx", "", "write zonal summaries to an XLSX workbook")
	exportCmd.Flags().String("csv", "", "write zonal summaries to a CSV file")
	exportCmd.Flags().String("records-csv", "", "write the scored records of --layer to a CSV file")
	exportCmd.Flags().String("layer", "", "record layer (defaults to every configured record layer)")
	rootCmd.AddCommand(exportCmd)
}

func selectRun(cmd *cobra.Command, st store.Store, runID string) (*model.Run, error) {
	if runID != "" {
		run, err := st.GetRun(cmd.Context(), runID)
		return run, eris.Wrapf(err, "export: run %s", runID)
	}
	run, err := st.LatestRun(cmd.Context())
	if eris.Is(err, store.ErrNotFound) {
		return nil, eris.New("export: no runs recorded, run `e1-cli run` or `e1-cli zones` first")
	}
	return run, eris.Wrap(err, "export: latest run")
}

// zoneStats loads every level of every layer, keyed by pipeline.LevelKey.
// Levels without rows are left out.
func zoneStats(cmd *cobra.Command, st store.Store, runID string, layers []string) (map[string][]model.ZoneStats, error) {
	out := make(map[string][]model.ZoneStats)
	for _, name := range layers {
		for _, level := range []string{model.LevelAdmin, model.LevelHydro} {
			key := pipeline.LevelKey(name, level)
			stats, err := st.ListZoneStats(cmd.Context(), runID, key)
			if err != nil {
				return nil, eris.Wrapf(err, "export: list %s", key)
			}
			if len(stats) > 0 {
				out[key] = stats
			}
		}
	}
	if len(out) == 0 {
		return nil, eris.Errorf("export: run %s has no zonal summaries", runID)
	}
	return out, nil
}

// flatten orders levels by layer, comuna before shac.
func flatten(byLevel map[string][]model.ZoneStats, layers []string) []model.ZoneStats {
	var out []model.ZoneStats
	for _, name := range layers {
		for _, level := range []string{model.LevelAdmin, model.LevelHydro} {
			out = append(out, byLevel[pipeline.LevelKey(name, level)]...)
		}
	}
	return out
}

func writeFile(path string, fn func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "create %s", path)
	}
	if err := fn(f); err != nil {
		f.Close() //nolint:errcheck
		return err
	}
	return eris.Wrapf(f.Close(), "close %s", path)
}
