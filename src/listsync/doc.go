// Package listsync tracks the initial synchronisation of the indexnode list.
//
// A node first waits for the blockchain, then asks its peers for the full
// list and keeps the list asset open for as long as new entries keep
// arriving. Maintenance steps that would misjudge an incomplete list wait
// for the tracker to report the list as synced.
package listsync
