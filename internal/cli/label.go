package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"medialskel/pkg/topology"
	"medialskel/pkg/volio"
)

func newLabelCmd() *cobra.Command {
	var (
		output string
		prune  bool
	)

	cmd := &cobra.Command{
		Use:   "label <skeleton.mha>",
		Short: "Classify skeleton voxels by their topological type",
		Long: `Label every voxel of a binary skeleton as isolated, curve, surface or one
of the junction classes, print the census and optionally write the label volume.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := loggerFromContext(cmd.Context())
			cfg := configFromContext(cmd.Context())

			im, err := volio.LoadMetaImage(args[0])
			if err != nil {
				return err
			}
			skel, err := im.Mask()
			if err != nil {
				return err
			}
			if prune {
				var removed int
				skel, removed = topology.Prune(skel)
				logger.Info("pruned", "voxels", removed)
			}

			census := topology.Census(skel)
			named := make(map[string]int, len(census))
			for l, n := range census {
				named[l.String()] = n
			}
			printCensus(cmd, named)

			if output != "" {
				if err := volio.SaveMetaImage(output, topology.LabelGrid(skel), cfg.Output.Compress); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "labels:    %s\n", output)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write the label volume to this MetaImage")
	cmd.Flags().BoolVar(&prune, "prune", false, "prune curve-like voxels before labelling")
	return cmd
}
