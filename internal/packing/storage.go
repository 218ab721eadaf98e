package packing

import (
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/joshuapare/dockv/internal/format"
)

// storageCacheSize bounds the per-storage descriptor cache. Schema versions
// per table stay small; the cache mainly avoids registry map lookups on the
// packed-row hot path.
const storageCacheSize = 32

// Storage is the registry of packing descriptors for one table, keyed by
// schema version. Descriptors are immutable once registered, so lookups are
// safe to share across concurrent scans.
type Storage struct {
	packings map[SchemaVersion]*SchemaPacking
	cache    *lru.Cache[SchemaVersion, *SchemaPacking]
}

// NewStorage returns an empty registry.
func NewStorage() *Storage {
	cache, err := lru.New[SchemaVersion, *SchemaPacking](storageCacheSize)
	if err != nil {
		panic(err)
	}
	return &Storage{
		packings: make(map[SchemaVersion]*SchemaPacking),
		cache:    cache,
	}
}

// Register adds a packing descriptor. Registration happens at schema-change
// time, before any reader observes the version.
func (s *Storage) Register(p *SchemaPacking) {
	s.packings[p.Version()] = p
}

// Get returns the descriptor for a schema version.
func (s *Storage) Get(version SchemaVersion) (*SchemaPacking, error) {
	if p, ok := s.cache.Get(version); ok {
		return p, nil
	}
	p, ok := s.packings[version]
	if !ok {
		return nil, fmt.Errorf("packing: unknown schema version %d", version)
	}
	s.cache.Add(version, p)
	return p, nil
}

// ConsumePacking reads the uvarint schema version from the front of a packed
// row payload (the value tag already consumed) and returns the descriptor
// together with the remaining blob.
func (s *Storage) ConsumePacking(payload []byte) (*SchemaPacking, []byte, error) {
	version, rest, err := format.ConsumeUvarint(payload)
	if err != nil {
		return nil, nil, fmt.Errorf("packing version: %w", err)
	}
	p, err := s.Get(SchemaVersion(version))
	if err != nil {
		return nil, nil, err
	}
	return p, rest, nil
}

// AppendPackedRow appends the full packed-row payload: the value tag, the
// uvarint schema version, and the blob.
func AppendPackedRow(buf []byte, p *SchemaPacking, values map[format.ColumnID][]byte) []byte {
	buf = append(buf, byte(format.ValuePackedRow))
	buf = format.AppendUvarint(buf, uint64(p.Version()))
	return append(buf, p.PackRow(values)...)
}
