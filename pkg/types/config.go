package types

// ReaderConfig carries the runtime toggles of the read path. A config is
// captured at construction time; changing a field affects only readers and
// iterators built afterwards.
type ReaderConfig struct {
	// UseFlatReader enables the flat row-reconstruction strategy for
	// SQL-style tables, which assume at most one subkey per record.
	UseFlatReader bool

	// UseOffsetBasedKeyDecoding splits DocKeys by the schema's cached
	// offsets instead of decoding the key segments one by one.
	UseOffsetBasedKeyDecoding bool
}

// DefaultReaderConfig matches production defaults: flat reading on, offset
// based key decoding off.
func DefaultReaderConfig() ReaderConfig {
	return ReaderConfig{UseFlatReader: true}
}
