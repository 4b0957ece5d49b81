package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/spf13/cobra"

	"github.com/feedsync/feedsync/internal/config"
	"github.com/feedsync/feedsync/internal/mediapath"
	"github.com/feedsync/feedsync/internal/objectstore"
	"github.com/feedsync/feedsync/internal/prune"
	"github.com/feedsync/feedsync/internal/pull"
	"github.com/feedsync/feedsync/internal/push"
	"github.com/feedsync/feedsync/internal/remote"
	"github.com/feedsync/feedsync/internal/retry"
	"github.com/feedsync/feedsync/internal/scheduler"
	"github.com/feedsync/feedsync/internal/store"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in setupRootCmd().
var (
	flagConfigPath string
	flagDSN        string
	flagVerbose    bool
	flagDebug      bool
	flagQuiet      bool
)

// skipConfigAnnotation marks commands that handle config loading themselves.
const skipConfigAnnotation = "skipConfig"

// CLIContext bundles the resolved config, logger, and every collaborator a
// sync command needs. Built once in PersistentPreRunE and threaded through
// the command context so RunE handlers never re-resolve configuration.
type CLIContext struct {
	Cfg    *config.Config
	Logger *slog.Logger

	Store     *store.Store
	Remote    *remote.Client
	Uploader  *objectstore.Uploader
	Paths     *mediapath.Resolver
	RetryExec *retry.Executor

	Push  *push.Pipeline
	Pull  *pull.Pipeline
	Prune *prune.Pruner
	Sched *scheduler.Scheduler

	// closers are torn down in reverse order by Close().
	closers []func() error
}

// Close releases every collaborator acquired while building the context
// (database handle, connection pool), in reverse acquisition order.
func (cc *CLIContext) Close() {
	for i := len(cc.closers) - 1; i >= 0; i-- {
		if err := cc.closers[i](); err != nil {
			cc.Logger.Warn("error during shutdown", slog.String("error", err.Error()))
		}
	}
}

// cliContextKey is the context key for CLIContext.
type cliContextKey struct{}

// cliContextFrom extracts the CLIContext from the command's context. Returns
// nil if no config was loaded (commands annotated with skipConfigAnnotation).
func cliContextFrom(ctx context.Context) *CLIContext {
	cc, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok {
		return nil
	}

	return cc
}

// mustCLIContext extracts the CLIContext or panics with an actionable
// message. Panics are always programmer errors — the command tree guarantees
// the context is populated by PersistentPreRunE before RunE executes.
func mustCLIContext(ctx context.Context) *CLIContext {
	cc := cliContextFrom(ctx)
	if cc == nil {
		panic("BUG: CLIContext not found in context — ensure the command " +
			"does not skip config loading (no skipConfigAnnotation)")
	}

	return cc
}

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "feedsync",
		Short:   "Offline-first post/like/comment replication engine",
		Long:    "feedsync keeps a local SQLite store and a remote Postgres+S3 store in sync, bidirectionally and offline-first.",
		Version: version,
		// Silence Cobra's default error/usage printing — we handle it ourselves.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Reject conflicting flags before opening the store or dialing
			// the remote; Cobra's own check runs only after this hook.
			if err := cmd.ValidateFlagGroups(); err != nil {
				return err
			}

			if cmd.Annotations[skipConfigAnnotation] == "true" {
				return nil
			}

			return setupCLIContext(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if cc := cliContextFrom(cmd.Context()); cc != nil {
				cc.Close()
			}

			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().StringVar(&flagDSN, "dsn", "", "remote Postgres DSN")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "show detailed output")
	cmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	cmd.MarkFlagsMutuallyExclusive("verbose", "debug", "quiet")

	cmd.AddCommand(newPushCmd())
	cmd.AddCommand(newPullCmd())
	cmd.AddCommand(newPruneCmd())
	cmd.AddCommand(newTickCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newConflictsCmd())

	return cmd
}

// setupCLIContext resolves configuration, constructs every collaborator
// (local store, remote client, object store uploader, pipelines), and stores
// the result in the command's context for use by subcommands.
func setupCLIContext(cmd *cobra.Command) error {
	logger := buildLogger(nil)

	cli := config.CLIOverrides{ConfigPath: flagConfigPath, DSN: flagDSN}
	env := config.ReadEnvOverrides()

	logger.Debug("resolving config",
		slog.String("config_path", cli.ConfigPath),
		slog.String("env_config", env.ConfigPath),
	)

	cfg, err := config.Resolve(env, cli, logger)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	finalLogger := buildLogger(cfg)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cc, err := buildCollaborators(ctx, cfg, finalLogger)
	if err != nil {
		return err
	}

	cmd.SetContext(context.WithValue(ctx, cliContextKey{}, cc))

	return nil
}

// buildCollaborators wires the local store, remote client, S3 uploader, and
// the push/pull/prune/scheduler pipelines that operate on them.
func buildCollaborators(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*CLIContext, error) {
	cc := &CLIContext{Cfg: cfg, Logger: logger}

	st, err := store.Open(ctx, cfg.Storage.DatabasePath, logger)
	if err != nil {
		return nil, fmt.Errorf("opening local store: %w", err)
	}

	cc.Store = st
	cc.closers = append(cc.closers, st.Close)

	rc, err := remote.Connect(ctx, cfg.Remote.DSN, logger)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("connecting to remote: %w", err)
	}

	cc.Remote = rc
	cc.closers = append(cc.closers, func() error {
		rc.Close()
		return nil
	})

	s3Client, err := newS3Client(ctx, cfg.Remote)
	if err != nil {
		return nil, fmt.Errorf("configuring object storage: %w", err)
	}

	publicURLFn := objectstore.PublicURLFunc(func(bucket, key string) string {
		return renderPublicURL(cfg.Remote.PublicURLTemplate, cfg.Remote.S3Endpoint, bucket, key)
	})

	cc.Uploader = objectstore.New(s3Client, publicURLFn, logger)
	cc.Paths = mediapath.New(cfg.Storage.DocumentsDir)
	cc.RetryExec = retry.New(logger)

	cc.Push = push.New(st, cc.Uploader, cc.Paths, rc, cc.RetryExec, logger)
	cc.Pull = pull.New(st, rc, cc.RetryExec, logger)
	cc.Prune = prune.New(st, logger)
	cc.Sched = scheduler.New(st, cc.Push, cc.Pull, cc.Prune, logger)

	return cc, nil
}

// newS3Client builds an S3 client from the resolved remote config. Static
// credentials are used when provided; otherwise the default AWS credential
// chain applies, matching how MinIO/S3-compatible deployments are usually run.
func newS3Client(ctx context.Context, rcfg config.RemoteConfig) (*s3.Client, error) {
	var optFns []func(*awsconfig.LoadOptions) error

	optFns = append(optFns, awsconfig.WithRegion(rcfg.S3Region))

	if rcfg.S3AccessKeyID != "" {
		optFns = append(optFns, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(rcfg.S3AccessKeyID, rcfg.S3SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, optFns...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if rcfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(rcfg.S3Endpoint)
		}

		o.UsePathStyle = rcfg.S3UsePathStyle
	}), nil
}

// buildLogger creates an slog.Logger configured by the resolved config and
// CLI flags. Pass nil for pre-config bootstrap (no config-file log level).
// Config-file log level is the baseline; --verbose, --debug, and --quiet
// override it since CLI flags always win (enforced mutually exclusive by Cobra).
func buildLogger(cfg *config.Config) *slog.Logger {
	level := slog.LevelWarn

	if cfg != nil {
		switch cfg.Logging.Level {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "error":
			level = slog.LevelError
		}
	}

	if flagVerbose {
		level = slog.LevelInfo
	}

	if flagDebug {
		level = slog.LevelDebug
	}

	if flagQuiet {
		level = slog.LevelError
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
