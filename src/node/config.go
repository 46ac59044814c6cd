package node

import (
	"testing"
	"time"

	"github.com/mosaicnetworks/indexnode/src/common"
	"github.com/mosaicnetworks/indexnode/src/indexnode"
	"github.com/sirupsen/logrus"
)

// Config ...
type Config struct {
	// MaintenanceInterval is the minimum interval between two maintenance
	// ticks; the actual one is randomised up to twice as long.
	MaintenanceInterval time.Duration `mapstructure:"maintenance-interval"`

	// DumpInterval is the interval between two saves of the registry cache.
	DumpInterval time.Duration `mapstructure:"dump-interval"`

	// Listen is false when the node does not accept inbound connections.
	Listen bool `mapstructure:"listen"`

	// ExternalAddr is the address advertised by the local indexnode.
	ExternalAddr string `mapstructure:"external-addr"`

	Params *indexnode.Params

	// Now is the clock in unix seconds; defaults to time.Now.
	Now func() int64

	Logger *logrus.Logger
}

// NewConfig ...
func NewConfig(maintenance time.Duration,
	dump time.Duration,
	listen bool,
	externalAddr string,
	params *indexnode.Params,
	logger *logrus.Logger) *Config {

	return &Config{
		MaintenanceInterval: maintenance,
		DumpInterval:        dump,
		Listen:              listen,
		ExternalAddr:        externalAddr,
		Params:              params,
		Logger:              logger,
	}
}

// DefaultConfig ...
func DefaultConfig() *Config {
	logger := logrus.New()
	logger.Level = logrus.DebugLevel

	return &Config{
		MaintenanceInterval: time.Second,
		DumpInterval:        15 * time.Minute,
		Listen:              true,
		Params:              indexnode.MainNetParams(),
		Logger:              logger,
	}
}

// TestConfig ...
func TestConfig(t *testing.T) *Config {
	config := DefaultConfig()
	config.MaintenanceInterval = 10 * time.Millisecond
	config.Params = indexnode.RegTestParams()
	config.Logger = common.NewTestLogger(t, common.TestLogLevel)
	return config
}
