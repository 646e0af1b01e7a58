package utils

import (
	"path/filepath"

	db "github.com/tendermint/tm-db"
)

// Storage owns the databases of a node: the versioned state tree and the
// events store.
type Storage struct {
	home    string
	stateDB db.DB
	eventDB db.DB
}

func NewStorage(home string) *Storage {
	if home == "" {
		home = GetTilemintHome()
	}
	return &Storage{home: home}
}

// NewMemStorage keeps both databases in memory.
func NewMemStorage() *Storage {
	return &Storage{
		stateDB: db.NewMemDB(),
		eventDB: db.NewMemDB(),
	}
}

func (s *Storage) GetTilemintHome() string {
	return s.home
}

func (s *Storage) DataDir() string {
	return filepath.Join(s.home, "data")
}

func (s *Storage) InitStateDB(backend string) error {
	stateDB, err := db.NewDB("state", db.BackendType(backend), s.DataDir())
	if err != nil {
		return err
	}
	s.stateDB = stateDB
	return nil
}

func (s *Storage) InitEventDB(backend string) error {
	eventDB, err := db.NewDB("events", db.BackendType(backend), s.DataDir())
	if err != nil {
		return err
	}
	s.eventDB = eventDB
	return nil
}

func (s *Storage) StateDB() db.DB {
	return s.stateDB
}

func (s *Storage) EventDB() db.DB {
	return s.eventDB
}

// Close closes the opened databases.
func (s *Storage) Close() error {
	if s.stateDB != nil {
		if err := s.stateDB.Close(); err != nil {
			return err
		}
	}
	if s.eventDB != nil {
		return s.eventDB.Close()
	}
	return nil
}
