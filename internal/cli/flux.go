package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"medialskel/pkg/pipeline"
	"medialskel/pkg/visualization"
	"medialskel/pkg/volio"
	"medialskel/pkg/volume"
)

func newFluxCmd() *cobra.Command {
	var (
		flags     thinningFlags
		output    string
		histogram string
	)

	cmd := &cobra.Command{
		Use:   "flux <input.mha|input.binvox>",
		Short: "Compute the average outward flux of a volume",
		Example: `  medialskel flux vessel.mha -o flux.mha --histogram flux.png
  medialskel flux part.binvox -o flux.mha --strategy spoke --margin 2`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := loggerFromContext(ctx)

			cfg, err := flags.apply(cmd, configFromContext(ctx))
			if err != nil {
				return err
			}

			prog := newProgress(logger)
			p, err := pipeline.New(&pipeline.Params{Input: args[0], Config: cfg, Logger: logger})
			if err != nil {
				return err
			}
			res, err := p.Flux(ctx)
			if err != nil {
				return err
			}
			if err := volio.SaveMetaImage(output, volume.Convert[float32](res.Flux), cfg.Output.Compress); err != nil {
				return err
			}
			prog.done(fmt.Sprintf("Wrote %s", output))

			s := res.Report.Flux
			fmt.Fprintf(cmd.OutOrStdout(), "evaluated: %d voxels\n", s.Count)
			fmt.Fprintf(cmd.OutOrStdout(), "flux:      min %.3f  mean %.3f  max %.3f\n", s.Min, s.Mean, s.Max)

			if histogram != "" {
				opts := visualization.HistogramOptions{Title: args[0], Threshold: cfg.Thinning.Threshold}
				if err := visualization.SaveHistogram(res.Flux.Data(), opts, histogram); err != nil {
					return err
				}
				logger.Info("histogram", "file", histogram)
			}
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "flux.mha", "output MetaImage")
	cmd.Flags().StringVar(&histogram, "histogram", "", "write a flux histogram PNG")
	return cmd
}
