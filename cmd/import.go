package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/e1-cli/internal/ingest"
)

var importCmd = &cobra.Command{
	Use:   "import <file>...",
	Short: "Import shapefiles or point tables into the workspace",
	Long: "Loads .shp, .csv or .xlsx files as workspace layers. Shapefile attributes are " +
		"decoded with the .cpg code page; point tables need x/y coordinate columns.",
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("import"); err != nil {
			return err
		}

		layerName, _ := cmd.Flags().GetString("layer")
		if layerName != "" && len(args) > 1 {
			return eris.New("--layer can only be used with a single file")
		}
		opts := ingest.Options{
			Layer:    layerName,
			SRID:     cfg.Ingest.SRID,
			Encoding: cfg.Ingest.Encoding,
			XField:   cfg.Ingest.XField,
			YField:   cfg.Ingest.YField,
		}
		if v, _ := cmd.Flags().GetString("encoding"); v != "" {
			opts.Encoding = v
		}
		if v, _ := cmd.Flags().GetString("x"); v != "" {
			opts.XField = v
		}
		if v, _ := cmd.Flags().GetString("y"); v != "" {
			opts.YField = v
		}
		opts.Sheet, _ = cmd.Flags().GetString("sheet")

		b, err := openBackends(ctx, false)
		if err != nil {
			return err
		}
		defer b.Close()

		for _, path := range args {
			res, err := ingest.File(ctx, b.ws, path, opts)
			if err != nil {
				return eris.Wrapf(err, "import %s", path)
			}
			zap.L().Info("import complete",
				zap.String("file", path),
				zap.String("layer", res.Layer),
				zap.Int("features", res.Features),
				zap.Int("skipped", res.Skipped),
				zap.Int("fields", len(res.Fields)),
			)
		}
		return nil
	},
}

func init() {
	importCmd.Flags().String("layer", "", "target layer name (defaults to the file name)")
	importCmd.Flags().String("encoding", "", "attribute code page, overrides .cpg (e.g. windows-1252)")
	importCmd.Flags().String("x", "", "x coordinate column for point tables")
	importCmd.Flags().String("y", "", "y coordinate column for point tables")
	importCmd.Flags().String("sheet", "", "XLSX sheet name (first sheet when empty)")
	rootCmd.AddCommand(importCmd)
}
