package chain

import (
	"bytes"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/mosaicnetworks/indexnode/src/common"
	"github.com/mosaicnetworks/indexnode/src/indexnode"
	"github.com/ugorji/go/codec"
)

const jsonCollateralsPath = "collaterals.json"

// GenesisCollateral is a bonding output confirmed in the genesis block of an
// Inmem chain.
type GenesisCollateral struct {
	// Identity is the txid:index of the output.
	Identity string `json:"identity"`

	// Owner is the hex encoded public key the output pays to.
	Owner string `json:"owner"`

	// Value defaults to the required collateral.
	Value int64 `json:"value,omitempty"`
}

// JSONCollaterals reads and writes the collaterals.json file of a data
// directory. Every node of a simulated network loads the same file.
type JSONCollaterals struct {
	l    sync.Mutex
	path string
}

// NewJSONCollaterals ...
func NewJSONCollaterals(base string) *JSONCollaterals {
	return &JSONCollaterals{
		path: filepath.Join(base, jsonCollateralsPath),
	}
}

// Path ...
func (j *JSONCollaterals) Path() string {
	return j.path
}

func collateralsHandle() *codec.JsonHandle {
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	jh.Indent = 2
	return jh
}

// Collaterals parses the file. A missing or empty file holds no collateral.
func (j *JSONCollaterals) Collaterals() ([]GenesisCollateral, error) {
	j.l.Lock()
	defer j.l.Unlock()
	return j.read()
}

func (j *JSONCollaterals) read() ([]GenesisCollateral, error) {
	buf, err := ioutil.ReadFile(j.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(strings.TrimSpace(string(buf))) == 0 {
		return nil, nil
	}

	var res []GenesisCollateral
	dec := codec.NewDecoderBytes(buf, collateralsHandle())
	if err := dec.Decode(&res); err != nil {
		return nil, err
	}
	return res, nil
}

// Add appends a collateral to the file, replacing an entry with the same
// identity.
func (j *JSONCollaterals) Add(c GenesisCollateral) error {
	j.l.Lock()
	defer j.l.Unlock()

	all, err := j.read()
	if err != nil {
		return err
	}
	res := make([]GenesisCollateral, 0, len(all)+1)
	for _, o := range all {
		if o.Identity != c.Identity {
			res = append(res, o)
		}
	}
	res = append(res, c)

	var b bytes.Buffer
	enc := codec.NewEncoder(&b, collateralsHandle())
	if err := enc.Encode(res); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(j.path), 0700); err != nil {
		return err
	}
	return ioutil.WriteFile(j.path, b.Bytes(), 0600)
}

// LoadGenesis confirms every collateral of the list in block 0 of c.
func LoadGenesis(c *Inmem, list []GenesisCollateral) error {
	for _, g := range list {
		id, err := indexnode.ParseIdentity(g.Identity)
		if err != nil {
			return fmt.Errorf("collateral %q: %v", g.Identity, err)
		}
		owner, err := common.DecodeFromString(g.Owner)
		if err != nil {
			return fmt.Errorf("collateral %q owner: %v", g.Identity, err)
		}
		value := g.Value
		if value == 0 {
			value = indexnode.CoinRequired * indexnode.Coin
		}
		c.mu.Lock()
		c.addCollateralAt(id, owner, value, 0)
		c.mu.Unlock()
	}
	return nil
}
