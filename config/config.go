// Package config loads omeconvert settings from an optional config file,
// OMECONVERT_* environment variables and command-line flags, in increasing
// order of precedence.
package config

import (
	"errors"
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/carbocation/pfx"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	EnvPrefix  = "OMECONVERT"
	ConfigName = "omeconvert"
)

// Config holds every setting the commands read.
type Config struct {
	// ConfigPath is the file the settings came from, if any.
	ConfigPath string `mapstructure:"-"`

	DataDirs   []string `mapstructure:"data_dirs"`
	Workers    int      `mapstructure:"workers"`
	Strict     bool     `mapstructure:"strict"`
	CSV        bool     `mapstructure:"csv"`
	Progress   bool     `mapstructure:"progress"`
	OutputDir  string   `mapstructure:"output_dir"`
	ArchiveDir string   `mapstructure:"archive_dir"`

	// GCSAnonymous reads gs:// inputs without credentials, for public buckets.
	GCSAnonymous bool `mapstructure:"gcs_anonymous"`
}

// flagKeys maps flag names to config keys.
var flagKeys = map[string]string{
	"data-dir":      "data_dirs",
	"workers":       "workers",
	"strict":        "strict",
	"csv":           "csv",
	"progress":      "progress",
	"output-dir":    "output_dir",
	"archive-dir":   "archive_dir",
	"gcs-anonymous": "gcs_anonymous",
}

func defaults(v *viper.Viper) {
	v.SetDefault("data_dirs", []string{})
	v.SetDefault("workers", 0)
	v.SetDefault("strict", false)
	v.SetDefault("csv", false)
	v.SetDefault("progress", false)
	v.SetDefault("output_dir", ".")
	v.SetDefault("archive_dir", "")
	v.SetDefault("gcs_anonymous", false)
}

// Load reads settings. If path is empty, omeconvert.{yaml,json,toml} is looked
// for in ~/.config/omeconvert and the working directory, and a missing file is
// not an error. Flags in fs that were set on the command line override
// everything else; fs may be nil.
func Load(path string, fs *pflag.FlagSet) (Config, error) {
	var cfg Config

	v := viper.New()
	defaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(ExpandHomeDir(path))
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", ConfigName))
		}
		v.AddConfigPath(".")
		v.SetConfigName(ConfigName)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return cfg, pfx.Err(err)
		}
	}

	if fs != nil {
		for name, key := range flagKeys {
			if flag := fs.Lookup(name); flag != nil {
				if err := v.BindPFlag(key, flag); err != nil {
					return cfg, pfx.Err(err)
				}
			}
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, pfx.Err(err)
	}

	cfg.ConfigPath = v.ConfigFileUsed()
	cfg.OutputDir = ExpandHomeDir(cfg.OutputDir)
	cfg.ArchiveDir = ExpandHomeDir(cfg.ArchiveDir)
	for i, dir := range cfg.DataDirs {
		cfg.DataDirs[i] = ExpandHomeDir(dir)
	}

	return cfg, nil
}

// ExpandHomeDir replaces a leading ~ with the current user's home directory.
// Via https://stackoverflow.com/a/17617721/199475
func ExpandHomeDir(path string) string {
	usr, err := user.Current()
	if err != nil {
		return path
	}

	dir := usr.HomeDir

	if path == "~" {
		// In case of "~", which won't be caught by the "else if"
		path = dir
	} else if strings.HasPrefix(path, "~/") {
		// Use strings.HasPrefix so we don't match paths like
		// "/something/~/something/"
		path = filepath.Join(dir, path[2:])
	}

	return path
}
