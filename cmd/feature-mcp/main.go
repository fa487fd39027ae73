package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ironsheep/feature-tools-mcp/internal/detection"
	"github.com/ironsheep/feature-tools-mcp/internal/imaging"
	"github.com/ironsheep/feature-tools-mcp/internal/logging"
	"github.com/ironsheep/feature-tools-mcp/internal/pipeline"
	"github.com/ironsheep/feature-tools-mcp/internal/raster"
	"github.com/ironsheep/feature-tools-mcp/internal/server"
)

// Version information - set by ldflags during build
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var (
	rootCmd = &cobra.Command{
		Use:   "feature-mcp",
		Short: "MCP server for feature detection, matching and image registration",
		Long: `feature-mcp serves FAST/BRIEF feature tools over the MCP protocol on
stdin/stdout. Run without a subcommand to start the server; the detect and
align subcommands run the same operations from the command line.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			log, err = logging.New(os.Stderr, logging.ResolveLevel(logLevel))
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Serve MCP requests on stdin/stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}

	detectCmd = &cobra.Command{
		Use:   "detect <image>",
		Short: "Print the FAST keypoints of an image as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return detect(args[0])
		},
	}

	alignCmd = &cobra.Command{
		Use:   "align <reference> <moving>",
		Short: "Register the moving image onto the reference and save the result",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return align(cmd.Context(), args[0], args[1])
		},
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("feature-tools-mcp %s\n", Version)
			fmt.Printf("  Build time: %s\n", BuildTime)
			fmt.Printf("  Git commit: %s\n", GitCommit)
		},
	}

	log          *logrus.Logger
	logLevel     string
	threshold    float64
	maxKeypoints int
	outputPath   string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (default $"+logging.EnvLevel+" or "+logging.DefaultLevel+")")

	detectCmd.Flags().Float64VarP(&threshold, "threshold", "t", detection.DefaultConfig().Threshold, "FAST intensity threshold")
	detectCmd.Flags().IntVarP(&maxKeypoints, "max", "n", 0, "keep only the strongest N keypoints")

	alignCmd.Flags().StringVarP(&outputPath, "output", "o", "aligned.png", "where to save the aligned image")

	rootCmd.AddCommand(serveCmd, detectCmd, alignCmd, versionCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// serve runs the MCP server. Logging goes to stderr; stdout is the protocol.
func serve(ctx context.Context) error {
	log.WithFields(logrus.Fields{
		"version": Version,
		"built":   BuildTime,
		"commit":  GitCommit,
	}).Debug("starting feature-tools-mcp")

	srv := server.New(log, Version)
	if err := srv.Run(ctx); err != nil && ctx.Err() == nil {
		log.WithError(err).Error("server error")
		return err
	}
	return nil
}

func detect(path string) error {
	cache := imaging.NewImageCache()
	img, err := cache.Load(path)
	if err != nil {
		return err
	}
	gray, err := imaging.ToGray(img, imaging.Luma)
	if err != nil {
		return err
	}

	cfg := detection.DefaultConfig()
	cfg.Threshold = threshold
	cfg.MaxKeypoints = maxKeypoints
	kps, err := detection.Detect(gray, cfg)
	if err != nil {
		return err
	}
	log.WithFields(logrus.Fields{"path": path, "keypoints": len(kps)}).Info("detected")

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(kps)
}

func align(ctx context.Context, refPath, movingPath string) error {
	cache := imaging.NewImageCache()
	ref, err := loadGray(cache, refPath)
	if err != nil {
		return fmt.Errorf("reference: %w", err)
	}
	moving, err := loadGray(cache, movingPath)
	if err != nil {
		return fmt.Errorf("moving: %w", err)
	}

	cfg := pipeline.DefaultConfig()
	cfg.Warp.Workers = runtime.NumCPU()
	r, err := pipeline.New(cfg, log)
	if err != nil {
		return err
	}
	res, err := r.Register(ctx, ref, moving)
	if err != nil {
		return err
	}

	out, err := imaging.ToImage(res.Aligned)
	if err != nil {
		return err
	}
	if err := imaging.Save(outputPath, out); err != nil {
		return err
	}
	fmt.Printf("%+v\n", res.Transform)
	return nil
}

func loadGray(cache *imaging.ImageCache, path string) (*raster.Buffer[uint8], error) {
	img, err := cache.Load(path)
	if err != nil {
		return nil, err
	}
	return imaging.ToGray(img, imaging.Luma)
}
