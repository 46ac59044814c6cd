package peers

import (
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	jsonPeerSetPath = "peers.json"
)

// JSONPeerSet is used to provide peer persistence on disk in the form of a JSON
// file.
type JSONPeerSet struct {
	l    sync.Mutex
	path string
}

// NewJSONPeerSet creates a new JSONPeerSet with reference to a base directory
// where the JSON file resides.
func NewJSONPeerSet(base string) *JSONPeerSet {
	store := &JSONPeerSet{
		path: filepath.Join(base, jsonPeerSetPath),
	}
	return store
}

// Path ...
func (j *JSONPeerSet) Path() string {
	return j.path
}

// PeerSet parses the underlying JSON file and returns the corresponding
// PeerSet.
func (j *JSONPeerSet) PeerSet() (*PeerSet, error) {
	j.l.Lock()
	defer j.l.Unlock()

	// Read the file
	buf, err := ioutil.ReadFile(j.path)
	if err != nil {
		return nil, err
	}

	// Check for no peers
	if len(strings.TrimSpace(string(buf))) == 0 {
		return NewPeerSet(nil), nil
	}

	return UnmarshalPeerSet(buf)
}

// Write persists peers to the JSON file, dropping duplicate addresses.
func (j *JSONPeerSet) Write(peers []*Peer) error {
	j.l.Lock()
	defer j.l.Unlock()

	buf, err := NewPeerSet(peers).Marshal()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(j.path), 0700); err != nil {
		return err
	}

	// the previous file stays intact until the rename
	tmp := j.path + ".tmp"
	if err := ioutil.WriteFile(tmp, buf, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, j.path)
}
