// Package chain defines what the indexnode layer needs from the blockchain and
// from the wallet, and provides in-memory implementations of both.
//
// Block validation, UTXO bookkeeping and key custody are owned by other
// subsystems. The registry only asks narrow questions: the hash of the block
// at a height, whether a collateral output is still unspent and how deep it
// is, and whether the local wallet owns a bonding output.
package chain
