package observability

import (
	"strings"

	"github.com/smallbiznis/shikkha/internal/config"
)

// Config is the observability slice of config.Config.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel              string
	LogFormat             string
	LogSamplingInitial    int
	LogSamplingThereafter int

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64
}

func LoadConfig(cfg config.Config) Config {
	serviceName := strings.TrimSpace(cfg.AppName)
	if serviceName == "" {
		serviceName = "shikkha"
	}
	ratio := cfg.OtelSamplingRatio
	if ratio < 0 || ratio > 1 {
		ratio = 0.1
	}
	protocol := cfg.OtelProtocol
	if protocol != "http" {
		protocol = "grpc"
	}

	return Config{
		ServiceName:           serviceName,
		Environment:           strings.TrimSpace(cfg.Environment),
		Version:               strings.TrimSpace(cfg.AppVersion),
		LogLevel:              cfg.LogLevel,
		LogFormat:             cfg.LogFormat,
		LogSamplingInitial:    cfg.LogSamplingInitial,
		LogSamplingThereafter: cfg.LogSamplingThereafter,
		OtelEnabled:           cfg.OtelEnabled,
		OtelExporterEndpoint:  cfg.OTLPEndpoint,
		OtelExporterProtocol:  protocol,
		OtelSamplingRatio:     ratio,
	}
}

// Debug reports whether verbose request logging applies: debug level, or a
// local or test environment.
func (c Config) Debug() bool {
	if strings.EqualFold(strings.TrimSpace(c.LogLevel), "debug") {
		return true
	}
	switch strings.ToLower(strings.TrimSpace(c.Environment)) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}
