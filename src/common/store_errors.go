package common

import (
	"errors"
	"fmt"
)

// StoreErrType classifies the failures of a persisted store.
type StoreErrType uint32

const (
	// KeyNotFound is returned when nothing was persisted yet.
	KeyNotFound StoreErrType = iota
	// VersionMismatch is returned when the data was written by an
	// incompatible version.
	VersionMismatch
	// Corrupted is returned when the data cannot be decoded or fails its
	// consistency checks.
	Corrupted
)

var storeErrNames = [...]string{
	KeyNotFound:     "Not Found",
	VersionMismatch: "Version Mismatch",
	Corrupted:       "Corrupted",
}

// String ...
func (t StoreErrType) String() string {
	if int(t) < len(storeErrNames) {
		return storeErrNames[t]
	}
	return "Unknown"
}

// StoreErr is a classified failure of the named store. Detail identifies the
// key or the cause.
type StoreErr struct {
	Store  string
	Type   StoreErrType
	Detail string
}

// NewStoreErr ...
func NewStoreErr(store string, errType StoreErrType, detail string) StoreErr {
	return StoreErr{
		Store:  store,
		Type:   errType,
		Detail: detail,
	}
}

// Error ...
func (e StoreErr) Error() string {
	return fmt.Sprintf("%s, %s, %s", e.Store, e.Detail, e.Type)
}

// IsStore reports whether err, or an error it wraps, is a StoreErr of type t.
func IsStore(err error, t StoreErrType) bool {
	var storeErr StoreErr
	return errors.As(err, &storeErr) && storeErr.Type == t
}
