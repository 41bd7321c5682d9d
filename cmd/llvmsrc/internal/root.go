package internal

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var (
	cacheDir string
	verbose  bool
	logger   = slog.Default()
)

var rootCmd = &cobra.Command{
	Use:   "llvmsrc",
	Short: "llvmsrc builds LLVM from source and reports its artifacts",
	Long: `llvmsrc fetches the LLVM monorepo at a revision, builds it with CMake and Ninja,
and prints where the libraries, headers and tools are installed. Sources and
builds are cached, so repeating a build with the same configuration is free.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cacheDir, "cache-dir", "", "Cache root (default: $LLVMSRC_CACHE_DIR, $OUT_DIR/llvm-build or the user cache dir)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging and tool output")
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
// SIGINT and SIGTERM cancel the running command and its child processes.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := rootCmd.ExecuteContext(ctx)
	if err != nil {
		stop()
		log.Fatal(err)
	}
}
