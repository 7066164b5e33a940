package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/aweris/layerpack"
	"github.com/aweris/layerpack/internal/archive"
	"github.com/aweris/layerpack/internal/backend"
	"github.com/aweris/layerpack/internal/logging"
	s3store "github.com/aweris/layerpack/internal/store/s3"
)

var rootCmd = &cobra.Command{
	Use:          "layerpack",
	Short:        "Turn stored assets into zip archives of PNG layers",
	Long:         "CLI for decoding assets from object storage into PNG layers and storing them back as one zip archive.",
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (default: ~/.config/layerpack/config.yaml)")
	flags.String("backend", "", "storage backend: memory, local, s3, minio, badger, oci")
	flags.String("bucket", "", "bucket holding source objects and archives")
	flags.String("log-level", "", "log level: debug, info, warn, error")
	flags.String("log-format", "", "log format: text, json")

	viper.BindPFlag("backend", flags.Lookup("backend"))
	viper.BindPFlag("bucket", flags.Lookup("bucket"))
	viper.BindPFlag("log.level", flags.Lookup("log-level"))
	viper.BindPFlag("log.format", flags.Lookup("log-format"))
}

func initConfig() {
	if cfg := rootCmd.PersistentFlags().Lookup("config").Value.String(); cfg != "" {
		viper.SetConfigFile(cfg)
	} else {
		viper.AddConfigPath(configDir())
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("LAYERPACK")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	setDefaults()

	viper.ReadInConfig()
}

func setDefaults() {
	dataDir := layerpack.DefaultDataDir()

	viper.SetDefault("backend", backend.Local)
	viper.SetDefault("bucket", "")
	viper.SetDefault("prefix", "")
	viper.SetDefault("region", s3store.DefaultRegion)
	viper.SetDefault("local.root", dataDir)
	viper.SetDefault("local.codec", "none")
	viper.SetDefault("minio.endpoint", "localhost:9000")
	viper.SetDefault("minio.access_key", "")
	viper.SetDefault("minio.secret_key", "")
	viper.SetDefault("minio.secure", false)
	viper.SetDefault("badger.path", filepath.Join(dataDir, "badger"))
	viper.SetDefault("oci.repository", "")
	viper.SetDefault("oci.insecure", false)
	viper.SetDefault("oci.retries", 1)
	viper.SetDefault("cache.max_bytes", 0)
	viper.SetDefault("concurrency", 0)
	viper.SetDefault("archive.name", layerpack.DefaultArchiveName)
	viper.SetDefault("archive.method", string(archive.MethodDeflate))
	viper.SetDefault("archive.level", archive.DefaultLevel)
	viper.SetDefault("png.compression", "default")
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")
	viper.SetDefault("serve.addr", ":8080")
	viper.SetDefault("serve.max_inflight", 4)
	viper.SetDefault("serve.rps", 0)
}

func configDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "layerpack")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "layerpack")
	}
	return ".layerpack"
}

func newLogger() *slog.Logger {
	return logging.New(viper.GetString("log.level"), viper.GetString("log.format"))
}

func newProvider() (*backend.Provider, error) {
	var cfg backend.Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return backend.NewProvider(cfg)
}

func pipelineOptions(logger *slog.Logger) ([]layerpack.Option, error) {
	method, err := archive.ParseMethod(viper.GetString("archive.method"))
	if err != nil {
		return nil, err
	}
	level, err := layerpack.ParsePNGCompression(viper.GetString("png.compression"))
	if err != nil {
		return nil, err
	}

	return []layerpack.Option{
		layerpack.WithConcurrency(viper.GetInt("concurrency")),
		layerpack.WithEncoder(layerpack.PNGEncoder{Level: level}),
		layerpack.WithArchive(method, viper.GetInt("archive.level")),
		layerpack.WithLogger(logger),
	}, nil
}
