package main

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/feedsync/feedsync/internal/config"
)

func TestBuildLogger_Default(t *testing.T) {
	logger := buildLogger(nil)

	assert.True(t, logger.Handler().Enabled(context.Background(), slog.LevelWarn))
	assert.False(t, logger.Handler().Enabled(context.Background(), slog.LevelInfo))
}

func TestBuildLogger_ConfigDebug(t *testing.T) {
	cfg := &config.Config{Logging: config.LoggingConfig{Level: "debug"}}

	logger := buildLogger(cfg)

	assert.True(t, logger.Handler().Enabled(context.Background(), slog.LevelDebug))
}

func TestBuildLogger_FlagsOverrideConfig(t *testing.T) {
	defer func() {
		flagVerbose, flagDebug, flagQuiet = false, false, false
	}()

	cfg := &config.Config{Logging: config.LoggingConfig{Level: "error"}}

	flagVerbose = true
	logger := buildLogger(cfg)
	assert.True(t, logger.Handler().Enabled(context.Background(), slog.LevelInfo))
	assert.False(t, logger.Handler().Enabled(context.Background(), slog.LevelDebug))
	flagVerbose = false

	flagDebug = true
	logger = buildLogger(cfg)
	assert.True(t, logger.Handler().Enabled(context.Background(), slog.LevelDebug))
	flagDebug = false

	flagQuiet = true
	logger = buildLogger(cfg)
	assert.True(t, logger.Handler().Enabled(context.Background(), slog.LevelError))
	assert.False(t, logger.Handler().Enabled(context.Background(), slog.LevelWarn))
}

func TestCliContextFrom_NilContext(t *testing.T) {
	cc := cliContextFrom(context.Background())
	assert.Nil(t, cc)
}

func TestCliContextFrom_WithCLIContext(t *testing.T) {
	expected := &CLIContext{
		Cfg:    &config.Config{Storage: config.StorageConfig{DatabasePath: "/test.db"}},
		Logger: slog.New(slog.NewTextHandler(os.Stderr, nil)),
	}
	ctx := context.WithValue(context.Background(), cliContextKey{}, expected)

	cc := cliContextFrom(ctx)
	assert.Equal(t, expected, cc)
	assert.Equal(t, "/test.db", cc.Cfg.Storage.DatabasePath)
}

func TestMustCLIContext_Panics(t *testing.T) {
	assert.PanicsWithValue(t,
		"BUG: CLIContext not found in context — ensure the command "+
			"does not skip config loading (no skipConfigAnnotation)",
		func() { mustCLIContext(context.Background()) },
	)
}

func TestMustCLIContext_Returns(t *testing.T) {
	expected := &CLIContext{Cfg: &config.Config{}, Logger: slog.Default()}
	ctx := context.WithValue(context.Background(), cliContextKey{}, expected)

	assert.Equal(t, expected, mustCLIContext(ctx))
}

func TestNewRootCmd_Subcommands(t *testing.T) {
	cmd := newRootCmd()

	expected := []string{"push", "pull", "prune", "tick", "watch", "status"}
	for _, name := range expected {
		found := false

		for _, sub := range cmd.Commands() {
			if sub.Name() == name {
				found = true
				break
			}
		}

		assert.True(t, found, "expected subcommand %q not found", name)
	}
}

func TestNewRootCmd_PersistentFlags(t *testing.T) {
	cmd := newRootCmd()

	for _, name := range []string{"config", "dsn", "verbose", "debug", "quiet"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), "expected persistent flag %q not found", name)
	}
}

func TestNewRootCmd_MutualExclusivity(t *testing.T) {
	pairs := [][]string{
		{"--verbose", "--debug"},
		{"--verbose", "--quiet"},
		{"--debug", "--quiet"},
	}

	for _, flags := range pairs {
		t.Run(flags[0]+"_"+flags[1], func(t *testing.T) {
			cmd := newRootCmd()
			cmd.SetArgs(append(append([]string{}, flags...), "status"))

			err := cmd.Execute()
			assert.Error(t, err)
			assert.Contains(t, err.Error(), "none of the others can be")
		})
	}
}

func TestRenderPublicURL(t *testing.T) {
	got := renderPublicURL("{endpoint}/{bucket}/{key}", "http://localhost:9000", "media", "abc.jpg")
	assert.Equal(t, "http://localhost:9000/media/abc.jpg", got)
}
