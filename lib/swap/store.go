package swap

import (
	"github.com/ValentinKolb/dGrid/lib/grid"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
)

var log = logger.GetLogger("swap")

// --------------------------------------------------------------------------
// LevelDB Store
// --------------------------------------------------------------------------

// Store implements grid.ISwapStore on a LevelDB database.
type Store struct {
	db       *leveldb.DB
	compress bool
}

// NewStore opens (or creates) the swap database at path.
func NewStore(path string, compress bool) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, grid.WrapError(grid.RetCStoreFailure, "failed to open swap store", err)
	}

	log.Infof("swap store opened at %s (compression=%t)", path, compress)

	return &Store{db: db, compress: compress}, nil
}

// NewInMemoryStore creates a swap store backed by an in-memory LevelDB.
// Used for testing and for configurations that want swap semantics without
// touching disk.
func NewInMemoryStore(compress bool) (*Store, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, grid.WrapError(grid.RetCStoreFailure, "failed to open in-memory swap store", err)
	}
	return &Store{db: db, compress: compress}, nil
}

// NewFromConfig creates the swap store described by the cache
// configuration, or nil if the configuration carries no swap tier.
func NewFromConfig(cfg grid.Config) (*Store, error) {
	switch {
	case cfg.SwapInMemory:
		return NewInMemoryStore(cfg.SwapCompression)
	case cfg.SwapPath != "":
		return NewStore(cfg.SwapPath, cfg.SwapCompression)
	default:
		return nil, nil
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see grid.ISwapStore)
// --------------------------------------------------------------------------

func (s *Store) Read(key string) (*grid.SwapRecord, error) {
	data, err := s.db.Get([]byte(key), nil)
	if err == leveldb.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, grid.WrapError(grid.RetCStoreFailure, "swap read failed", err)
	}

	rec, err := decodeRecord(data)
	if err != nil {
		return nil, grid.WrapError(grid.RetCStoreFailure, "swap record corrupt", err)
	}
	return rec, nil
}

func (s *Store) ReadAndRemove(key string) (*grid.SwapRecord, error) {
	rec, err := s.Read(key)
	if err != nil || rec == nil {
		return rec, err
	}
	if err := s.Remove(key); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Store) Write(key string, rec grid.SwapRecord) error {
	if err := s.db.Put([]byte(key), encodeRecord(rec, s.compress), nil); err != nil {
		return grid.WrapError(grid.RetCStoreFailure, "swap write failed", err)
	}
	return nil
}

func (s *Store) WriteBatch(recs map[string]grid.SwapRecord) error {
	if len(recs) == 0 {
		return nil
	}

	batch := new(leveldb.Batch)
	for key, rec := range recs {
		batch.Put([]byte(key), encodeRecord(rec, s.compress))
	}

	if err := s.db.Write(batch, nil); err != nil {
		return grid.WrapError(grid.RetCStoreFailure, "swap batch write failed", err)
	}
	return nil
}

func (s *Store) Remove(key string) error {
	if err := s.db.Delete([]byte(key), nil); err != nil {
		return grid.WrapError(grid.RetCStoreFailure, "swap remove failed", err)
	}
	return nil
}

func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return grid.WrapError(grid.RetCStoreFailure, "swap close failed", err)
	}
	return nil
}
