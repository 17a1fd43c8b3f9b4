package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"psd2png/contracts"
	"psd2png/converter"
)

// version is set at build time via ldflags.
var version = "dev"

type InputFlags = contracts.InputFlags

// flagKeys maps command-line flag names to configuration keys.
var flagKeys = map[string]string{
	"path":             "path",
	"workers":          "workers",
	"format":           "format",
	"composite":        "composite",
	"png-compression":  "png_compression",
	"embed-resolution": "embed_resolution",
	"report":           "report",
}

func newRootCmd() *cobra.Command {
	v := viper.New()

	rootCmd := &cobra.Command{
		Use:   "psd2png [root]",
		Short: "Convert every .psd file under a directory into a PNG beside it",
		Long: `psd2png walks a directory tree, decodes every file whose extension is
exactly .psd and writes the flattened image next to it as a lossless PNG
(or TIFF with --format tiff). A file that fails to convert is reported and
the batch continues.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(cmd, v)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			flags, err := loadFlags(v, args)
			if err != nil {
				return err
			}
			return runConvert(cmd, flags)
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./psd2png.yaml or ~/.config/psd2png/psd2png.yaml)")

	defaults := contracts.DefaultInputFlags()
	f := rootCmd.Flags()
	f.StringP("path", "p", defaults.Path, "root directory to search for .psd files")
	f.Int("workers", defaults.Workers, "number of files converted concurrently")
	f.String("format", string(defaults.Format), "output format: png or tiff")
	f.String("composite", string(defaults.Composite), "pixel source: auto, merged or layers")
	f.String("png-compression", string(defaults.PNGCompression), "PNG compression: default, none, speed or best")
	f.Bool("embed-resolution", defaults.EmbedResolution, "store the document resolution in the PNG pHYs chunk")
	f.String("report", "", "write a YAML summary of the batch to this file")

	for name, key := range flagKeys {
		_ = v.BindPFlag(key, f.Lookup(name))
	}

	rootCmd.AddCommand(newIdentifyCmd(), newVersionCmd())
	return rootCmd
}

func initConfig(cmd *cobra.Command, v *viper.Viper) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("psd2png")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "psd2png"))
		}
	}

	v.SetEnvPrefix("PSD2PNG")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err == nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "Using config file:", v.ConfigFileUsed())
	} else if cfgFile != "" {
		return fmt.Errorf("reading config: %w", err)
	}
	return nil
}

// loadFlags resolves flags, environment and config file into InputFlags.
// A positional root argument takes precedence over --path.
func loadFlags(v *viper.Viper, args []string) (InputFlags, error) {
	flags := contracts.DefaultInputFlags()
	if err := v.Unmarshal(&flags); err != nil {
		return flags, fmt.Errorf("invalid configuration: %w", err)
	}
	if len(args) == 1 {
		flags.Path = args[0]
	}
	if err := flags.Validate(); err != nil {
		return flags, fmt.Errorf("invalid configuration: %w", err)
	}
	return flags, nil
}

func runConvert(cmd *cobra.Command, flags InputFlags) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pipeline, err := converter.NewPipeline(flags)
	if err != nil {
		return err
	}
	batch := converter.NewBatch(pipeline, flags.Workers, cmd.OutOrStdout())

	startTime := time.Now()
	summary, err := batch.Run(ctx, flags.Path)
	if err != nil {
		return fmt.Errorf("cannot start batch: %w", err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Total time taken: %s\n", time.Since(startTime).Round(time.Millisecond))

	if flags.Report != "" {
		if err := converter.WriteReport(flags.Report, flags.Path, summary); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "[ERROR]: %v\n", err)
		}
	}
	return nil
}

func main() {
	rootCmd := newRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "[ERROR]: %v\n", err)
		os.Exit(1)
	}
}
