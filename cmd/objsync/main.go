package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/input-output-hk/catalyst-forge-libs/objsync/storage/s3"
)

const envPrefix = "OBJSYNC"

// app carries the settings shared by all subcommands.
type app struct {
	v      *viper.Viper
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New(), logger: slog.New(slog.DiscardHandler)}

	rootCmd := &cobra.Command{
		Use:   "objsync",
		Short: "One-way sync of a local directory to an object store",
		Long: "objsync uploads new and changed files from a local directory to an\n" +
			"S3-compatible bucket, using version markers and a file listing to\n" +
			"skip work when nothing changed.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := a.loadConfig(cmd); err != nil {
				return err
			}
			a.logger = newLogger(cmd.ErrOrStderr(), a.v.GetBool("verbose"))
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.SortFlags = false
	flags.StringP("root", "r", ".", "Local directory to synchronize")
	flags.StringP("prefix", "p", "", "Remote key prefix")
	flags.IntP("workers", "w", 8, "Files hashed or uploaded at once")
	flags.Int("hash-chunk-mib", 4, "Read size used while hashing, in MiB")
	flags.StringP("backend", "b", "s3", "Storage backend: s3, minio or dir")
	flags.String("bucket", "", "Bucket name (s3, minio)")
	flags.String("endpoint", "", "Custom endpoint URL (s3) or host:port (minio)")
	flags.String("region", "", "Bucket region")
	flags.Bool("path-style", false, "Use path-style addressing (s3)")
	flags.Int("part-concurrency", s3.DefaultConcurrency, "Multipart parts uploaded at once per file (s3)")
	flags.String("access-key", "", "Static access key (s3, minio)")
	flags.String("secret-key", "", "Static secret key (s3, minio)")
	flags.Bool("insecure", false, "Disable TLS (minio)")
	flags.String("dir", "", "Target directory (dir backend)")
	flags.Bool("delete-extra", false, "Delete remote objects missing from the listing")
	flags.Bool("allow-root-prune", false, "Let --delete-extra run with an empty prefix")
	flags.String("cache", "", "Fingerprint cache path")
	flags.String("lock", "", "Lock file guarding concurrent runs")
	flags.StringSlice("exclude", nil, "Additional gitignore-style exclude patterns")
	flags.BoolP("verbose", "v", false, "Enable debug logging")
	flags.StringP("config", "c", "", "Config file (yaml, json or toml)")

	rootCmd.AddCommand(
		newSyncCmd(a),
		newManifestCmd(a),
		newFoldersCmd(a),
		newVersionCheckCmd(a),
	)
	return rootCmd
}

func main() {
	// A missing .env is fine; only malformed files are reported.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// loadConfig layers flags over environment over the config file.
func (a *app) loadConfig(cmd *cobra.Command) error {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		a.v.SetConfigFile(path)
		if err := a.v.ReadInConfig(); err != nil {
			return fmt.Errorf("config read '%s': %w", path, err)
		}
	}

	if err := a.v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("failed to bind flags: %w", err)
	}

	a.v.SetEnvPrefix(envPrefix)
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()
	return nil
}

func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	noColor := true
	if f, ok := w.(*os.File); ok {
		noColor = !isatty.IsTerminal(f.Fd())
	}

	return slog.New(tint.NewHandler(w, &tint.Options{
		Level:      level,
		TimeFormat: "15:04:05.000",
		NoColor:    noColor,
	}))
}
