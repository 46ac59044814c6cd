package registry

import (
	"sync"

	"github.com/mosaicnetworks/indexnode/src/common"
)

// Cache persists whole registry dumps between runs.
type Cache interface {
	// Load returns the last saved dump. It fails with a KeyNotFound store
	// error when nothing was saved, and with VersionMismatch when the dump
	// was written by an incompatible version.
	Load() (*Dump, error)

	Save(d *Dump) error

	Close() error
}

// InmemCache keeps the encoded dump in memory.
type InmemCache struct {
	mu      sync.Mutex
	version string
	data    []byte
}

// NewInmemCache ...
func NewInmemCache() *InmemCache {
	return &InmemCache{}
}

// Load implements Cache.
func (c *InmemCache) Load() (*Dump, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.data == nil {
		return nil, common.NewStoreErr("Registry", common.KeyNotFound, registryKey)
	}
	if c.version != SerializationVersion {
		return nil, common.NewStoreErr("Registry", common.VersionMismatch, c.version)
	}
	d := new(Dump)
	if err := d.Unmarshal(c.data); err != nil {
		return nil, common.NewStoreErr("Registry", common.Corrupted, err.Error())
	}
	return d, nil
}

// Save implements Cache.
func (c *InmemCache) Save(d *Dump) error {
	data, err := d.Marshal()
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.version = SerializationVersion
	c.data = data
	return nil
}

// SetVersion overwrites the stored version tag.
func (c *InmemCache) SetVersion(version string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.version = version
}

// Close implements Cache.
func (c *InmemCache) Close() error {
	return nil
}
