// Package config implements TOML configuration loading, defaulting, and the
// four-layer override chain (defaults -> file -> env -> CLI flags) for
// feedsync, following the same shape the teacher uses for its own
// configuration, scaled down to feedsync's single sync target (no
// multi-drive/profile concept applies here).
package config

// Config is the top-level configuration structure.
type Config struct {
	Storage StorageConfig `toml:"storage"`
	Remote  RemoteConfig  `toml:"remote"`
	Sync    SyncConfig    `toml:"sync"`
	Logging LoggingConfig `toml:"logging"`
}

// StorageConfig controls the local embedded store and media directory.
type StorageConfig struct {
	DatabasePath string `toml:"database_path"`
	DocumentsDir string `toml:"documents_dir"`
}

// RemoteConfig controls the remote relational store and object bucket.
type RemoteConfig struct {
	DSN               string `toml:"dsn"`
	S3Endpoint        string `toml:"s3_endpoint"`
	S3Region          string `toml:"s3_region"`
	S3AccessKeyID     string `toml:"s3_access_key_id"`
	S3SecretAccessKey string `toml:"s3_secret_access_key"`
	S3UsePathStyle    bool   `toml:"s3_use_path_style"`
	PublicURLTemplate string `toml:"public_url_template"`
}

// SyncConfig tunes the scheduler's connectivity probe target.
type SyncConfig struct {
	ConnectivityTarget string `toml:"connectivity_target"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}
