package registry

import (
	"sort"

	"github.com/mosaicnetworks/indexnode/src/indexnode"
)

// DenseIndex maps identities to small consecutive integers. It only grows;
// entries of removed records are kept until the index is rebuilt, after which
// the previous mapping stays available as the old index so that consumers can
// translate the references they hold. Integers are only meaningful within a
// session.
type DenseIndex struct {
	byIdentity map[indexnode.Identity]int
	byIndex    map[int]indexnode.Identity
	size       int
}

// NewDenseIndex ...
func NewDenseIndex() *DenseIndex {
	return &DenseIndex{
		byIdentity: make(map[indexnode.Identity]int),
		byIndex:    make(map[int]indexnode.Identity),
	}
}

// Add appends id unless it is already indexed.
func (d *DenseIndex) Add(id indexnode.Identity) {
	if _, ok := d.byIdentity[id]; ok {
		return
	}
	d.byIdentity[id] = d.size
	d.byIndex[d.size] = id
	d.size++
}

// Index returns the integer of id, or -1.
func (d *DenseIndex) Index(id indexnode.Identity) int {
	i, ok := d.byIdentity[id]
	if !ok {
		return -1
	}
	return i
}

// Identity returns the identity at index i.
func (d *DenseIndex) Identity(i int) (indexnode.Identity, bool) {
	id, ok := d.byIndex[i]
	return id, ok
}

// Size ...
func (d *DenseIndex) Size() int {
	return d.size
}

// Entries returns the identities in index order.
func (d *DenseIndex) Entries() []indexnode.Identity {
	res := make([]indexnode.Identity, d.size)
	for i := 0; i < d.size; i++ {
		res[i] = d.byIndex[i]
	}
	return res
}

// Clear ...
func (d *DenseIndex) Clear() {
	d.byIdentity = make(map[indexnode.Identity]int)
	d.byIndex = make(map[int]indexnode.Identity)
	d.size = 0
}

func sortIdentities(ids []indexnode.Identity) {
	sort.Slice(ids, func(i, j int) bool {
		return ids[i].Less(ids[j])
	})
}
