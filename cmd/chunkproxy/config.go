package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ajitpratap0/chunkstream-go/pkg/logging"
	"github.com/ajitpratap0/chunkstream-go/pkg/observability"
	"github.com/ajitpratap0/chunkstream-go/pkg/provider"
	"github.com/ajitpratap0/chunkstream-go/pkg/proxy"
)

const envPrefix = "CHUNKPROXY"

// serveConfig holds everything the serve command needs.
type serveConfig struct {
	Addr            string        `mapstructure:"addr"`
	MetricsAddr     string        `mapstructure:"metrics-addr"`
	LogLevel        string        `mapstructure:"log-level"`
	LogFormat       string        `mapstructure:"log-format"`
	OTLPEndpoint    string        `mapstructure:"otlp-endpoint"`
	OTLPProtocol    string        `mapstructure:"otlp-protocol"`
	OTLPInsecure    bool          `mapstructure:"otlp-insecure"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown-timeout"`
}

func bindServeFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	flags.String("addr", ":8080", "proxy listen address")
	flags.String("metrics-addr", ":9090", "metrics listen address (empty disables)")
	flags.String("log-level", "info", "log level: debug, info, warn, error")
	flags.String("log-format", "text", "log format: text or json")
	flags.String("otlp-endpoint", "", "OTLP collector endpoint (empty disables tracing)")
	flags.String("otlp-protocol", "grpc", "OTLP protocol: grpc or http")
	flags.Bool("otlp-insecure", false, "disable TLS for the OTLP exporter")
	flags.Duration("shutdown-timeout", 10*time.Second, "grace period for in-flight streams on shutdown")

	if err := v.BindPFlags(flags); err != nil {
		return err
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return nil
}

func loadServeConfig(v *viper.Viper) (serveConfig, error) {
	var cfg serveConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("decoding configuration: %w", err)
	}
	if cfg.Addr == "" {
		return cfg, fmt.Errorf("--addr must not be empty")
	}
	if _, err := logging.ParseLevel(cfg.LogLevel); err != nil {
		return cfg, err
	}
	if _, err := logging.NewFormatter(cfg.LogFormat); err != nil {
		return cfg, err
	}
	if _, err := cfg.exporterType(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c serveConfig) exporterType() (observability.ExporterType, error) {
	switch c.OTLPProtocol {
	case "grpc", "":
		return observability.ExporterTypeOTLPGRPC, nil
	case "http":
		return observability.ExporterTypeOTLPHTTP, nil
	default:
		return "", fmt.Errorf("unknown OTLP protocol %q", c.OTLPProtocol)
	}
}

func (c serveConfig) logger() logging.Logger {
	// validated in loadServeConfig
	level, _ := logging.ParseLevel(c.LogLevel)
	formatter, _ := logging.NewFormatter(c.LogFormat)

	logger := logging.New(os.Stderr, formatter)
	logger.SetLevel(level)
	return logger
}

// viperSecrets resolves provider secrets from viper. Each key is looked up
// as-is (OPENAI_API_KEY) so it also works without the CHUNKPROXY_ prefix.
func viperSecrets(v *viper.Viper, registry *provider.Registry) (proxy.SecretSource, error) {
	for _, key := range registry.SecretKeys() {
		if err := v.BindEnv(strings.ToLower(key), key); err != nil {
			return nil, err
		}
	}
	return proxy.SecretSourceFunc(func(key string) (string, bool) {
		name := strings.ToLower(key)
		if !v.IsSet(name) {
			return "", false
		}
		return v.GetString(name), true
	}), nil
}
