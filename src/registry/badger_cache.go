package registry

import (
	"github.com/dgraph-io/badger"
	"github.com/mosaicnetworks/indexnode/src/common"
	"github.com/sirupsen/logrus"
)

const (
	versionKey  = "registry-version"
	registryKey = "registry"
)

// BadgerCache persists registry dumps in a Badger database.
type BadgerCache struct {
	db   *badger.DB
	path string
}

// NewBadgerCache opens the database in path, creating it if needed.
func NewBadgerCache(path string, logger *logrus.Entry) (*BadgerCache, error) {
	opts := badger.DefaultOptions(path).
		WithSyncWrites(false).
		WithTruncate(true)

	if logger != nil {
		sub := logger.WithFields(logrus.Fields{"ns": "badger"})
		opts = opts.WithLogger(sub)
	}

	handle, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &BadgerCache{
		db:   handle,
		path: path,
	}, nil
}

// Load implements Cache.
func (c *BadgerCache) Load() (*Dump, error) {
	var version, data []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(versionKey))
		if err != nil {
			return err
		}
		version, err = item.ValueCopy(nil)
		if err != nil {
			return err
		}

		item, err = txn.Get([]byte(registryKey))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, mapError(err, registryKey)
	}

	if string(version) != SerializationVersion {
		return nil, common.NewStoreErr("Registry", common.VersionMismatch, string(version))
	}

	d := new(Dump)
	if err := d.Unmarshal(data); err != nil {
		return nil, common.NewStoreErr("Registry", common.Corrupted, err.Error())
	}
	return d, nil
}

// Save implements Cache. Version and dump are written in one transaction.
func (c *BadgerCache) Save(d *Dump) error {
	val, err := d.Marshal()
	if err != nil {
		return err
	}

	tx := c.db.NewTransaction(true)
	defer tx.Discard()

	if err := tx.Set([]byte(versionKey), []byte(SerializationVersion)); err != nil {
		return err
	}
	if err := tx.Set([]byte(registryKey), val); err != nil {
		return err
	}
	return tx.Commit()
}

// SetVersion overwrites the stored version tag.
func (c *BadgerCache) SetVersion(version string) error {
	tx := c.db.NewTransaction(true)
	defer tx.Discard()

	if err := tx.Set([]byte(versionKey), []byte(version)); err != nil {
		return err
	}
	return tx.Commit()
}

// Path ...
func (c *BadgerCache) Path() string {
	return c.path
}

// Close implements Cache.
func (c *BadgerCache) Close() error {
	return c.db.Close()
}

func mapError(err error, key string) error {
	if err == badger.ErrKeyNotFound {
		return common.NewStoreErr("Registry", common.KeyNotFound, key)
	}
	return err
}
