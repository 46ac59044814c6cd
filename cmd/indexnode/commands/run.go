package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/mosaicnetworks/indexnode/src/config"
	"github.com/mosaicnetworks/indexnode/src/engine"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

//NewRunCmd returns the command that starts an indexnode
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Run node",
		PreRunE: loadConfig,
		RunE:    runIndexnode,
	}
	AddRunFlags(cmd)
	return cmd
}

/*******************************************************************************
* RUN
*******************************************************************************/

func runIndexnode(cmd *cobra.Command, args []string) error {
	e := engine.NewEngine(_config)

	if err := e.Init(); err != nil {
		_config.Logger().Error("Cannot initialize engine:", err)
		return err
	}

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-signalCh
		_config.Logger().Info("Received an interrupt, stopping")
		e.Shutdown()
	}()

	e.Run()

	return nil
}

/*******************************************************************************
* CONFIG
*******************************************************************************/

//AddRunFlags adds flags to the Run command
func AddRunFlags(cmd *cobra.Command) {

	cmd.Flags().String("datadir", _config.DataDir, "Top-level directory for configuration and data")
	cmd.Flags().String("log", _config.LogLevel, "debug, info, warn, error, fatal, panic")
	cmd.Flags().String("log-dir", _config.LogDir, "Directory receiving one log file per level")
	cmd.Flags().String("moniker", _config.Moniker, "Optional name")
	cmd.Flags().String("network", _config.Network, "main, test or regtest")

	// Network
	cmd.Flags().StringP("listen", "l", _config.BindAddr, "Listen IP:Port for indexnode gossip")
	cmd.Flags().StringP("external", "a", _config.ExternalAddr, "External IP:Port announced to other nodes")
	cmd.Flags().Bool("no-listen", _config.NoListen, "Inbound connections are not accepted")
	cmd.Flags().DurationP("timeout", "t", _config.TCPTimeout, "TCP Timeout")
	cmd.Flags().Int("max-pool", _config.MaxPool, "Connection pool size max")
	cmd.Flags().Int("max-peers", _config.MaxPeers, "Relay set size max")

	// Indexnode
	cmd.Flags().Bool("indexnode", _config.Indexnode, "Run as an indexnode with the operator key")
	cmd.Flags().String("collateral", _config.Collateral, "txid:index of the collateral owned by this node")
	cmd.Flags().Int32("protocol", _config.ProtocolVersion, "Protocol version override")

	// Service
	cmd.Flags().Bool("no-service", _config.NoService, "Disable HTTP service")
	cmd.Flags().StringP("service-listen", "s", _config.ServiceAddr, "Listen IP:Port for HTTP service")

	// Store
	cmd.Flags().Bool("store", _config.Store, "Use badgerDB instead of in-mem cache")
	cmd.Flags().String("db", _config.DatabaseDir, "Dabatabase directory")

	// Maintenance
	cmd.Flags().Duration("maintenance-interval", _config.MaintenanceInterval, "Time between maintenance ticks")
	cmd.Flags().Duration("dump-interval", _config.DumpInterval, "Time between cache dumps")

	// Chain
	cmd.Flags().Int64("genesis-time", _config.GenesisTime, "Unix time of the simulated genesis block")
	cmd.Flags().Duration("block-interval", _config.BlockInterval, "Time between simulated blocks")
}

func loadConfig(cmd *cobra.Command, args []string) error {

	err := bindFlagsLoadViper(cmd)
	if err != nil {
		return err
	}

	// If --datadir was explicitely set, but not --db, this will update the
	// default database dir to be inside the new datadir
	_config.SetDataDir(_config.DataDir)

	logFields := logrus.Fields{
		"DataDir":             _config.DataDir,
		"Network":             _config.Network,
		"BindAddr":            _config.BindAddr,
		"ExternalAddr":        _config.ExternalAddr,
		"ServiceAddr":         _config.ServiceAddr,
		"NoService":           _config.NoService,
		"MaxPool":             _config.MaxPool,
		"MaxPeers":            _config.MaxPeers,
		"Store":               _config.Store,
		"LogLevel":            _config.LogLevel,
		"LogDir":              _config.LogDir,
		"Moniker":             _config.Moniker,
		"Indexnode":           _config.Indexnode,
		"Collateral":          _config.Collateral,
		"TCPTimeout":          _config.TCPTimeout,
		"MaintenanceInterval": _config.MaintenanceInterval,
		"DumpInterval":        _config.DumpInterval,
		"GenesisTime":         _config.GenesisTime,
		"BlockInterval":       _config.BlockInterval,
	}

	if _config.Store {
		logFields["DatabaseDir"] = _config.DatabaseDir
	}

	_config.Logger().WithFields(logFields).Debug("RUN")

	return nil
}

// Bind all flags and read the config into viper
func bindFlagsLoadViper(cmd *cobra.Command) error {
	// Register flags with viper. Include flags from this command and all other
	// persistent flags from the parent
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// first unmarshal to read from CLI flags
	if err := viper.Unmarshal(_config); err != nil {
		return err
	}

	// look for config file in [datadir]/indexnode.toml (.json, .yaml also work)
	viper.SetConfigName(config.DefaultConfigFile)
	viper.AddConfigPath(_config.DataDir)

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		_config.Logger().Debugf("Using config file: %s", viper.ConfigFileUsed())
	} else if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		_config.Logger().Debugf("No config file found in: %s", _config.DataDir)
	} else {
		return err
	}

	// second unmarshal to read from config file
	return viper.Unmarshal(_config)
}
