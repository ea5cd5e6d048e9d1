package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	charmlog "github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"medialskel/pkg/config"
)

var (
	version = "dev"
	commit  string
	date    string
)

// SetVersion sets the version information displayed by --version.
func SetVersion(v, c, d string) {
	version = v
	commit = c
	date = d
}

// DefaultConfigPath is read when --config is not given. A missing file
// means built-in defaults.
const DefaultConfigPath = "medialskel.yaml"

// NewRootCommand builds the command tree. Logs go to stderr.
func NewRootCommand(stderr io.Writer) *cobra.Command {
	var (
		verbose    bool
		configPath string
	)

	root := &cobra.Command{
		Use:   "medialskel",
		Short: "Flux-guided topological skeletonization of 3-D volumes",
		Long: `medialskel computes curve and surface skeletons of binary or signed distance
volumes by homotopy-preserving thinning guided by the average outward flux.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := charmlog.InfoLevel
			if verbose {
				level = charmlog.DebugLevel
			}
			logger := newLogger(stderr, level)

			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}
			if verbose {
				cfg.Output.Verbose = true
			} else if cfg.Output.Verbose {
				logger.SetLevel(charmlog.DebugLevel)
			}

			ctx := withLogger(cmd.Context(), logger)
			cmd.SetContext(withConfig(ctx, cfg))
			return nil
		},
	}

	root.SetVersionTemplate(fmt.Sprintf("medialskel %s\ncommit: %s\nbuilt: %s\n", version, commit, date))
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
	root.PersistentFlags().StringVarP(&configPath, "config", "c", DefaultConfigPath, "configuration file (.yaml or .toml)")

	root.AddCommand(newSkeletonizeCmd())
	root.AddCommand(newFluxCmd())
	root.AddCommand(newLabelCmd())
	root.AddCommand(newPhantomCmd())
	root.AddCommand(newInitConfigCmd())

	return root
}

// Execute runs the CLI with os.Args under ctx.
func Execute(ctx context.Context) error {
	return NewRootCommand(os.Stderr).ExecuteContext(ctx)
}
