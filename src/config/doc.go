// Package config defines the configuration of an indexnode.
//
// Regardless of how the node is started, directly from Go code or as a
// standalone process from the command line, it uses the Config object defined
// in this package to store and forward configuration options. On top of these
// configuration options, the node relies on a data directory, defined by
// Config.DataDir, where it expects to find a few additional files:
//
//  priv_key // the operator key, signing pings (cf. indexnode keygen).
//  collateral_key // (local mode) the key owning the collateral output.
//  peers.json // (optional) a JSON file listing the bootstrap peers.
//  collaterals.json // (optional) bonding outputs of the simulated genesis block.
//  indexnode.toml // (optional) configuration file read by the CLI.
package config
