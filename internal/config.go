package internal

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/tuannm99/novacsv/internal/engine"
	"github.com/tuannm99/novacsv/internal/rowstore"
)

// EnvPrefix namespaces environment overrides: storage.workdir is read from
// NOVACSV_STORAGE_WORKDIR.
const EnvPrefix = "NOVACSV"

type NovaCsvConfig struct {
	AppName string `mapstructure:"app_name"`

	Storage struct {
		Workdir   string `mapstructure:"workdir"`
		RowFormat string `mapstructure:"row_format"`
	} `mapstructure:"storage"`

	Index struct {
		PageSize   int `mapstructure:"page_size"`
		MaxOpen    int `mapstructure:"max_open"`
		CachePages int `mapstructure:"cache_pages"`
	} `mapstructure:"index"`

	Server struct {
		Addr  string `mapstructure:"addr"`
		Debug bool   `mapstructure:"debug"`
	} `mapstructure:"server"`

	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app_name", "novacsv")
	v.SetDefault("storage.workdir", "./data")
	v.SetDefault("storage.row_format", string(rowstore.FormatCSV))
	v.SetDefault("index.page_size", engine.DefaultPageSize)
	v.SetDefault("index.max_open", engine.DefaultMaxOpen)
	v.SetDefault("index.cache_pages", engine.DefaultCachePages)
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.debug", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// LoadConfig reads the YAML file at path (optional when empty) on top of the
// defaults, then applies NOVACSV_* environment overrides. A .env file in the
// working directory is loaded first when present.
func LoadConfig(path string) (*NovaCsvConfig, error) {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, errors.Wrap(err, "load .env")
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrap(err, "read config")
		}
	}

	var cfg NovaCsvConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, errors.Wrap(err, "unmarshal config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *NovaCsvConfig) Validate() error {
	if c.Storage.Workdir == "" {
		return errors.New("config: storage.workdir is empty")
	}
	if _, err := rowstore.ParseFormat(c.Storage.RowFormat); err != nil {
		return errors.Wrap(err, "config: storage.row_format")
	}
	if c.Index.PageSize < 2 {
		return errors.Errorf("config: index.page_size must be at least 2, got %d", c.Index.PageSize)
	}
	if c.Index.MaxOpen < 1 {
		return errors.Errorf("config: index.max_open must be positive, got %d", c.Index.MaxOpen)
	}
	return nil
}

// EngineOptions maps the config onto engine options.
func (c *NovaCsvConfig) EngineOptions() engine.Options {
	format, _ := rowstore.ParseFormat(c.Storage.RowFormat)
	return engine.Options{
		PageSize:   c.Index.PageSize,
		MaxOpen:    c.Index.MaxOpen,
		CachePages: c.Index.CachePages,
		RowFormat:  format,
	}
}
