package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"medialskel/pkg/config"
	"medialskel/pkg/pipeline"
)

// thinningFlags are the command-line overrides shared by skeletonize and
// flux. Only flags the user actually set replace configuration values.
type thinningFlags struct {
	mode, test, strategy, endpoints string
	threshold, margin               float64
	directions, workers             int
	prune, medialSurface            bool
}

func (f *thinningFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.mode, "mode", "", "thinning mode: curve, surface or anchored")
	fl.StringVar(&f.test, "simple-test", "", "simple point test: delta or components")
	fl.StringVar(&f.strategy, "strategy", "", "flux strategy: full, spoke or low-memory")
	fl.StringVar(&f.endpoints, "endpoints", "", "CSV of x,y,z endpoints for anchored mode")
	fl.Float64Var(&f.threshold, "threshold", 0, "flux threshold for keeping end points")
	fl.Float64Var(&f.margin, "margin", 0, "depth below which flux is not evaluated")
	fl.IntVar(&f.directions, "directions", 0, "number of sphere directions")
	fl.IntVarP(&f.workers, "workers", "j", 0, "parallel workers")
	fl.BoolVar(&f.prune, "prune", false, "prune curve-like voxels after thinning")
	fl.BoolVar(&f.medialSurface, "medial-surface", false, "threshold flux instead of thinning")
}

// apply copies every changed flag onto a copy of cfg.
func (f *thinningFlags) apply(cmd *cobra.Command, base *config.Config) (*config.Config, error) {
	cfg := *base
	changed := cmd.Flags().Changed
	if changed("mode") {
		cfg.Thinning.Mode = f.mode
	}
	if changed("simple-test") {
		cfg.Thinning.SimpleTest = f.test
	}
	if changed("strategy") {
		cfg.Flux.Strategy = f.strategy
	}
	if changed("endpoints") {
		cfg.Thinning.Endpoints = f.endpoints
		if !changed("mode") {
			cfg.Thinning.Mode = "anchored"
		}
	}
	if changed("threshold") {
		cfg.Thinning.Threshold = f.threshold
	}
	if changed("margin") {
		cfg.Flux.Margin = f.margin
	}
	if changed("directions") {
		cfg.Flux.Directions = f.directions
	}
	if changed("workers") {
		cfg.Processing.Workers = f.workers
	}
	if changed("prune") {
		cfg.Thinning.Prune = f.prune
	}
	if changed("medial-surface") {
		cfg.Thinning.MedialSurface = f.medialSurface
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func newSkeletonizeCmd() *cobra.Command {
	var (
		flags     thinningFlags
		outputDir string
		slices    string
		labels    bool
		boundary  bool
		keep      bool
		mesh      bool
	)

	cmd := &cobra.Command{
		Use:   "skeletonize <input.mha|input.binvox>",
		Short: "Compute the skeleton of a volume",
		Long: `Compute a topology-preserving skeleton of a binary or signed distance volume.

Binary inputs (binvox, MET_UCHAR) are converted to a signed distance first.
Outputs are written to the output directory together with report.yaml.`,
		Example: `  # Curve skeleton with defaults
  medialskel skeletonize vessel.mha -o out

  # Surface skeleton, pruned, with label volume and z slices
  medialskel skeletonize part.binvox -o out --mode surface --prune --labels --slices z

  # Keep the given endpoints
  medialskel skeletonize tree.mha -o out --endpoints tips.csv`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := loggerFromContext(ctx)

			cfg, err := flags.apply(cmd, configFromContext(ctx))
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("slices") {
				cfg.Output.Slices = slices
			}
			if cmd.Flags().Changed("labels") {
				cfg.Output.Labels = labels
			}
			if cmd.Flags().Changed("boundary-map") {
				cfg.Output.BoundaryMap = boundary
			}
			if cmd.Flags().Changed("mesh") {
				cfg.Output.Mesh = mesh
			}
			if cmd.Flags().Changed("save-intermediate") {
				cfg.Output.SaveIntermediaryResults = keep
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			prog := newProgress(logger)
			p, err := pipeline.New(&pipeline.Params{
				Input:     args[0],
				OutputDir: outputDir,
				Config:    cfg,
				Logger:    logger,
			})
			if err != nil {
				return err
			}
			res, err := p.Process(ctx)
			if err != nil {
				return err
			}
			prog.done(fmt.Sprintf("Skeletonized %s", args[0]))

			r := res.Report
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "run:       %s\n", r.RunID)
			fmt.Fprintf(out, "object:    %d voxels\n", r.ObjectVoxels)
			fmt.Fprintf(out, "skeleton:  %d voxels\n", r.SkeletonVoxels)
			if r.PrunedVoxels > 0 {
				fmt.Fprintf(out, "pruned:    %d voxels\n", r.PrunedVoxels)
			}
			printCensus(cmd, r.Labels)
			fmt.Fprintf(out, "report:    %s\n", r.Outputs["report"])
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVarP(&outputDir, "output", "o", "skeleton_out", "output directory")
	cmd.Flags().StringVar(&slices, "slices", "", "write skeleton overlay PNGs along x, y or z")
	cmd.Flags().BoolVar(&labels, "labels", false, "write the label volume")
	cmd.Flags().BoolVar(&boundary, "boundary-map", false, "write thickness mapped onto the boundary")
	cmd.Flags().BoolVar(&keep, "save-intermediate", false, "write distance and flux volumes")
	cmd.Flags().BoolVar(&mesh, "mesh", false, "write STL surfaces of the object and skeleton")
	return cmd
}

// printCensus prints label counts in a stable order.
func printCensus(cmd *cobra.Command, census map[string]int) {
	names := make([]string, 0, len(census))
	for name := range census {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(cmd.OutOrStdout(), "  %-24s %d\n", name, census[name])
	}
}
