package keys

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/btcsuite/btcd/btcec"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcutil"
)

// Keyfile stores a private key in wallet import format, with a compressed
// public key. The file must only be accessible to its owner.
type Keyfile struct {
	l    sync.Mutex
	path string
}

// NewKeyfile ...
func NewKeyfile(path string) *Keyfile {
	return &Keyfile{path: path}
}

// Path ...
func (k *Keyfile) Path() string {
	return k.path
}

func (k *Keyfile) checkPerm() error {
	info, err := os.Stat(k.path)
	if err != nil {
		return err
	}
	if perm := info.Mode().Perm(); perm&0077 != 0 {
		return fmt.Errorf("key file permissions should exclude 'groups' and 'others'. Got %o", perm)
	}
	return nil
}

// ReadKey decodes the key written by WriteKey, or by a wallet's key export.
func (k *Keyfile) ReadKey() (*btcec.PrivateKey, error) {
	k.l.Lock()
	defer k.l.Unlock()

	if err := k.checkPerm(); err != nil {
		return nil, err
	}

	buf, err := ioutil.ReadFile(k.path)
	if err != nil {
		return nil, err
	}

	wif, err := btcutil.DecodeWIF(strings.TrimSpace(string(buf)))
	if err != nil {
		return nil, fmt.Errorf("%s: %v", k.path, err)
	}
	return wif.PrivKey, nil
}

// WriteKey ...
func (k *Keyfile) WriteKey(key *btcec.PrivateKey) error {
	k.l.Lock()
	defer k.l.Unlock()

	wif, err := EncodeWIF(key)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(k.path), 0700); err != nil {
		return err
	}
	return ioutil.WriteFile(k.path, []byte(wif), 0600)
}

// EncodeWIF returns the wallet import format of key.
func EncodeWIF(key *btcec.PrivateKey) (string, error) {
	wif, err := btcutil.NewWIF(key, &chaincfg.MainNetParams, true)
	if err != nil {
		return "", err
	}
	return wif.String(), nil
}
