package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Assign riesgo_E1 and peso_E1 to every facility",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		p, b, err := newPipeline(ctx, false, "")
		if err != nil {
			return err
		}
		defer b.Close()

		sum, err := p.Classify(ctx)
		if err != nil {
			return eris.Wrap(err, "classify")
		}
		return printJSON(cmd.OutOrStdout(), sum)
	},
}

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Compute proximity features and the E1 score of record layers",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		p, b, err := newPipeline(ctx, false, "")
		if err != nil {
			return err
		}
		defer b.Close()

		layerFlag, _ := cmd.Flags().GetString("layer")
		for _, name := range recordLayers(layerFlag) {
			lr, err := p.Metrics(ctx, name)
			if err != nil {
				return eris.Wrapf(err, "metrics %s", name)
			}
			if lr.Score != nil {
				zap.L().Info("Máximo E1_raw observado",
					zap.String("layer", name),
					zap.Float64("max_raw", lr.Score.MaxRaw),
					zap.Bool("degenerate", lr.Score.Degenerate),
				)
			}
			if err := printJSON(cmd.OutOrStdout(), lr); err != nil {
				return err
			}
		}
		return nil
	},
}

var densityCmd = &cobra.Command{
	Use:   "density",
	Short: "Sample the facility kernel density surface and set E1_high",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		gridOut, _ := cmd.Flags().GetString("grid-out")
		p, b, err := newPipeline(ctx, false, gridOut)
		if err != nil {
			return err
		}
		defer b.Close()

		layerFlag, _ := cmd.Flags().GetString("layer")
		for _, name := range recordLayers(layerFlag) {
			lr, err := p.Density(ctx, name)
			if err != nil {
				return eris.Wrapf(err, "density %s", name)
			}
			if err := printJSON(cmd.OutOrStdout(), lr); err != nil {
				return err
			}
		}
		return nil
	},
}

var zonesCmd = &cobra.Command{
	Use:   "zones",
	Short: "Assign zones and summarise E1 per comuna and SHAC",
	Long: "Overlays records with the configured zone polygon layers, aggregates E1_norm " +
		"and E1_high per zone and stores the summaries under a new run.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		p, b, err := newPipeline(ctx, true, "")
		if err != nil {
			return err
		}
		defer b.Close()

		run, err := b.st.CreateRun(ctx)
		if err != nil {
			return eris.Wrap(err, "zones: create run")
		}

		layerFlag, _ := cmd.Flags().GetString("layer")
		var reports []any
		var runErr error
		for _, name := range recordLayers(layerFlag) {
			lr, err := p.Zones(ctx, run.ID, name)
			if err != nil {
				runErr = eris.Wrapf(err, "zones %s", name)
				break
			}
			reports = append(reports, lr)
		}

		status := runStatus(runErr)
		if err := b.st.FinishRun(ctx, run.ID, status, reports, runErr); err != nil {
			zap.L().Warn("zones: failed to finish run", zap.Error(err))
		}
		if runErr != nil {
			return runErr
		}
		zap.L().Info("zonal summaries stored", zap.String("run_id", run.ID))
		return printJSON(cmd.OutOrStdout(), reports)
	},
}

var fixKernelCmd = &cobra.Command{
	Use:   "fix-kernel",
	Short: "Merge a duplicate kernel_val_1 field into kernel_val",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		p, b, err := newPipeline(ctx, false, "")
		if err != nil {
			return err
		}
		defer b.Close()

		layerFlag, _ := cmd.Flags().GetString("layer")
		for _, name := range recordLayers(layerFlag) {
			rep, err := p.FixKernel(ctx, name)
			if err != nil {
				return eris.Wrapf(err, "fix-kernel %s", name)
			}
			if err := printJSON(cmd.OutOrStdout(), rep); err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	for _, c := range []*cobra.Command{metricsCmd, densityCmd, zonesCmd, fixKernelCmd} {
		c.Flags().String("layer", "", "record layer (defaults to every configured record layer)")
	}
	densityCmd.Flags().String("grid-out", "", "write the kernel surface as an ESRI ASCII grid")
	rootCmd.AddCommand(classifyCmd, metricsCmd, densityCmd, zonesCmd, fixKernelCmd)
}
