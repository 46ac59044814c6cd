package config

import (
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec"
	"github.com/mosaicnetworks/indexnode/src/common"
	"github.com/mosaicnetworks/indexnode/src/indexnode"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// Default filenames.
const (
	// DefaultKeyfile is the default name of the file containing the operator
	// private key
	DefaultKeyfile = "priv_key"

	// DefaultCollateralKeyfile is the default name of the file containing the
	// key that owns the collateral, in local mode
	DefaultCollateralKeyfile = "collateral_key"

	// DefaultBadgerFile is the default name of the folder containing the Badger
	// database
	DefaultBadgerFile = "badger_db"

	// DefaultConfigFile is the name, without extension, of the configuration
	// file read from the data directory
	DefaultConfigFile = "indexnode"
)

// Default configuration values.
const (
	DefaultLogLevel            = "debug"
	DefaultNetwork             = indexnode.MainNet
	DefaultBindAddr            = "127.0.0.1:8168"
	DefaultServiceAddr         = "127.0.0.1:8000"
	DefaultMaintenanceInterval = 1000 * time.Millisecond
	DefaultDumpInterval        = 15 * time.Minute
	DefaultTCPTimeout          = 1000 * time.Millisecond
	DefaultMaxPool             = 2
	DefaultMaxPeers            = 32
	DefaultStore               = false
	DefaultBlockInterval       = 150 * time.Second
)

// Config contains all the configuration properties of an indexnode.
type Config struct {
	// DataDir is the top-level directory containing configuration and data
	DataDir string `mapstructure:"datadir"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log"`

	// LogDir, when set, receives one log file per level in addition to the
	// standard output.
	LogDir string `mapstructure:"log-dir"`

	// Network selects the protocol parameters: main, test or regtest.
	Network string `mapstructure:"network"`

	// BindAddr is the local address:port where this node gossips with other
	// nodes.
	BindAddr string `mapstructure:"listen"`

	// ExternalAddr is the address advertised in our announcement. It must be
	// reachable by other nodes. Defaults to BindAddr.
	ExternalAddr string `mapstructure:"external"`

	// NoListen reports that inbound connections are not accepted. An
	// indexnode cannot start without them.
	NoListen bool `mapstructure:"no-listen"`

	// NoService disables the HTTP API service.
	NoService bool `mapstructure:"no-service"`

	// ServiceAddr is the address:port of the HTTP status service.
	ServiceAddr string `mapstructure:"service-listen"`

	// Indexnode runs the node as an indexnode, signing pings with the operator
	// key. Otherwise the node only keeps and relays the list.
	Indexnode bool `mapstructure:"indexnode"`

	// Collateral is the txid:index of the bonding output owned by this node.
	// When set, the node announces itself (local mode) with the key read from
	// the collateral key file.
	Collateral string `mapstructure:"collateral"`

	// ProtocolVersion overrides the version spoken by this node. Zero keeps
	// the network default.
	ProtocolVersion int32 `mapstructure:"protocol"`

	// MaintenanceInterval is the period of the maintenance tick.
	MaintenanceInterval time.Duration `mapstructure:"maintenance-interval"`

	// DumpInterval is the period at which the registry is written to the
	// cache.
	DumpInterval time.Duration `mapstructure:"dump-interval"`

	// MaxPool controls how many connections are pooled per target.
	MaxPool int `mapstructure:"max-pool"`

	// MaxPeers bounds the relay set.
	MaxPeers int `mapstructure:"max-peers"`

	// TCPTimeout is the timeout of gossip connections and handshakes.
	TCPTimeout time.Duration `mapstructure:"timeout"`

	// Store persists the registry in a Badger database instead of keeping it
	// in memory.
	Store bool `mapstructure:"store"`

	// DatabaseDir is the directory containing database files.
	DatabaseDir string `mapstructure:"db"`

	// GenesisTime and BlockInterval drive the simulated chain. Nodes of the
	// same network must agree on both.
	GenesisTime   int64         `mapstructure:"genesis-time"`
	BlockInterval time.Duration `mapstructure:"block-interval"`

	// Moniker defines the friendly name of this node
	Moniker string `mapstructure:"moniker"`

	// Key is the operator private key.
	Key *btcec.PrivateKey

	logger *logrus.Logger
}

// NewDefaultConfig returns a config object with default values.
func NewDefaultConfig() *Config {
	config := &Config{
		DataDir:             DefaultDataDir(),
		LogLevel:            DefaultLogLevel,
		Network:             DefaultNetwork,
		BindAddr:            DefaultBindAddr,
		ServiceAddr:         DefaultServiceAddr,
		MaintenanceInterval: DefaultMaintenanceInterval,
		DumpInterval:        DefaultDumpInterval,
		TCPTimeout:          DefaultTCPTimeout,
		MaxPool:             DefaultMaxPool,
		MaxPeers:            DefaultMaxPeers,
		Store:               DefaultStore,
		DatabaseDir:         DefaultDatabaseDir(),
		BlockInterval:       DefaultBlockInterval,
	}

	return config
}

// NewTestConfig returns a regtest config object with a special logger for
// debugging tests.
func NewTestConfig(t testing.TB, level logrus.Level) *Config {
	config := NewDefaultConfig()
	config.Network = indexnode.RegTest
	config.BindAddr = "127.0.0.1:0"
	config.MaintenanceInterval = 10 * time.Millisecond
	config.BlockInterval = time.Second
	config.logger = common.NewTestLogger(t, level)
	return config
}

// SetDataDir sets the top-level directory, and updates the database directory
// if it is currently set to the default value. If the database directory is
// not currently the default, it means the user has explicitely set it to
// something else, so avoid changing it again here.
func (c *Config) SetDataDir(dataDir string) {
	c.DataDir = dataDir
	if c.DatabaseDir == DefaultDatabaseDir() {
		c.DatabaseDir = filepath.Join(dataDir, DefaultBadgerFile)
	}
}

// Keyfile returns the full path of the file containing the operator key.
func (c *Config) Keyfile() string {
	return filepath.Join(c.DataDir, DefaultKeyfile)
}

// CollateralKeyfile returns the full path of the file containing the
// collateral key.
func (c *Config) CollateralKeyfile() string {
	return filepath.Join(c.DataDir, DefaultCollateralKeyfile)
}

// Params returns the protocol parameters of the configured network, or nil if
// the network is unknown.
func (c *Config) Params() *indexnode.Params {
	p := indexnode.ParamsFor(c.Network)
	if p != nil && c.ProtocolVersion != 0 {
		p.ProtocolVersion = c.ProtocolVersion
	}
	return p
}

// AdvertiseAddr is ExternalAddr, or BindAddr when it is not set.
func (c *Config) AdvertiseAddr() string {
	if c.ExternalAddr != "" {
		return c.ExternalAddr
	}
	return c.BindAddr
}

// Logger returns a formatted logrus Entry, with prefix set to "indexnode".
func (c *Config) Logger() *logrus.Entry {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)
		if c.LogDir != "" {
			c.logger.AddHook(fileHook(c.LogDir))
		}
	}
	return c.logger.WithField("prefix", "indexnode")
}

func fileHook(dir string) logrus.Hook {
	paths := lfshook.PathMap{}
	for _, l := range logrus.AllLevels {
		paths[l] = filepath.Join(dir, l.String()+".log")
	}
	return lfshook.NewHook(paths, &logrus.JSONFormatter{})
}

// DefaultDatabaseDir returns the default path for the badger database files.
func DefaultDatabaseDir() string {
	return filepath.Join(DefaultDataDir(), DefaultBadgerFile)
}

// DefaultDataDir return the default directory name for top-level config
// based on the underlying OS, attempting to respect conventions.
func DefaultDataDir() string {
	// Try to place the data folder in the user's home dir
	home := HomeDir()
	if home != "" {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, ".Indexnode")
		} else if runtime.GOOS == "windows" {
			return filepath.Join(home, "AppData", "Roaming", "Indexnode")
		} else {
			return filepath.Join(home, ".indexnode")
		}
	}
	// As we cannot guess a stable location, return empty and handle later
	return ""
}

// HomeDir returns the user's home directory.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

// LogLevel parses a string into a Logrus log level.
func LogLevel(l string) logrus.Level {
	switch l {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.DebugLevel
	}
}
