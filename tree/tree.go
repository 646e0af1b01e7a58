package tree

import (
	"sync"

	"github.com/cosmos/iavl"
	dbm "github.com/tendermint/tm-db"
)

// saver is a state module that persists its dirty models at commit.
type saver interface {
	Commit(db *iavl.MutableTree, version int64) error
	SetImmutableTree(immutableTree *iavl.ImmutableTree)
}

// MTree is a versioned IAVL tree shared by every state module. Modules read
// the last committed version and write only on Commit.
type MTree interface {
	Commit(...saver) ([]byte, int64, error)
	MutableTree() *iavl.MutableTree
	GetLastImmutable() *iavl.ImmutableTree
	GetImmutableAtHeight(version int64) (*iavl.ImmutableTree, error)
	DeleteVersion(version int64) error
	Version() int64
	Hash() []byte
	AvailableVersions() []int
}

// NewMutableTree opens the tree at height, or an empty tree when height is zero.
func NewMutableTree(height uint64, db dbm.DB, cacheSize int) (MTree, error) {
	tree, err := iavl.NewMutableTree(db, cacheSize)
	if err != nil {
		return nil, err
	}

	m := &mutableTree{tree: tree, db: db}

	if height == 0 {
		m.last = iavl.NewImmutableTree(db, cacheSize)
		return m, nil
	}

	if _, err := tree.LoadVersionForOverwriting(int64(height)); err != nil {
		return nil, err
	}

	m.last, err = tree.GetImmutable(int64(height))
	if err != nil {
		return nil, err
	}

	return m, nil
}

// NewImmutableTree opens a read-only view of the tree at height.
func NewImmutableTree(height uint64, db dbm.DB) (*iavl.ImmutableTree, error) {
	tree, err := iavl.NewMutableTree(db, 1024)
	if err != nil {
		return nil, err
	}
	if _, err := tree.LazyLoadVersion(int64(height)); err != nil {
		return nil, err
	}

	return tree.GetImmutable(int64(height))
}

type mutableTree struct {
	tree *iavl.MutableTree
	last *iavl.ImmutableTree
	db   dbm.DB

	lock sync.RWMutex
}

func (t *mutableTree) MutableTree() *iavl.MutableTree {
	return t.tree
}

func (t *mutableTree) GetLastImmutable() *iavl.ImmutableTree {
	t.lock.RLock()
	defer t.lock.RUnlock()

	return t.last
}

func (t *mutableTree) GetImmutableAtHeight(version int64) (*iavl.ImmutableTree, error) {
	t.lock.RLock()
	defer t.lock.RUnlock()

	return t.tree.GetImmutable(version)
}

// Commit writes every saver into the working tree, saves a new version and
// hands the fresh immutable view back to the savers.
func (t *mutableTree) Commit(savers ...saver) ([]byte, int64, error) {
	t.lock.Lock()
	defer t.lock.Unlock()

	version := t.tree.Version() + 1
	for _, s := range savers {
		if err := s.Commit(t.tree, version); err != nil {
			return nil, 0, err
		}
	}

	hash, version, err := t.tree.SaveVersion()
	if err != nil {
		return nil, 0, err
	}

	immutable, err := t.tree.GetImmutable(version)
	if err != nil {
		return nil, 0, err
	}
	t.last = immutable

	for _, s := range savers {
		s.SetImmutableTree(immutable)
	}

	return hash, version, nil
}

func (t *mutableTree) DeleteVersion(version int64) error {
	t.lock.Lock()
	defer t.lock.Unlock()

	if !t.tree.VersionExists(version) {
		return nil
	}

	return t.tree.DeleteVersion(version)
}

func (t *mutableTree) Version() int64 {
	t.lock.RLock()
	defer t.lock.RUnlock()

	return t.tree.Version()
}

func (t *mutableTree) Hash() []byte {
	t.lock.RLock()
	defer t.lock.RUnlock()

	return t.tree.Hash()
}

func (t *mutableTree) AvailableVersions() []int {
	t.lock.RLock()
	defer t.lock.RUnlock()

	return t.tree.AvailableVersions()
}
