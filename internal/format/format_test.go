package format

import (
	"bytes"
	"testing"
	"time"
)

func TestHybridTimeRoundTrip(t *testing.T) {
	ht := HybridTimeFromMicrosLogical(1_500_000, 7)
	if ht.PhysicalMicros() != 1_500_000 || ht.Logical() != 7 {
		t.Fatalf("unexpected components: %v", ht)
	}
	enc := EncodeHybridTime(ht)
	if enc.Decode() != ht {
		t.Fatalf("round trip mismatch: %v != %v", enc.Decode(), ht)
	}
}

func TestEncodedHybridTimeOrder(t *testing.T) {
	lo := EncodeHybridTime(HybridTimeFromMicros(10))
	hi := EncodeHybridTime(HybridTimeFromMicros(20))
	if !lo.Less(hi) {
		t.Fatalf("encoded comparison does not follow chronological order")
	}
	if hi.Less(lo) || lo.Less(lo) {
		t.Fatalf("comparison not a strict order")
	}
}

func TestRecordKeySortsNewestFirst(t *testing.T) {
	base := AppendDocKey(nil, 0, nil, []KeyEntryValue{KeyEntryInt64(1)})
	old := AppendHybridTime(append([]byte(nil), base...), HybridTimeFromMicros(10))
	newer := AppendHybridTime(append([]byte(nil), base...), HybridTimeFromMicros(20))
	if bytes.Compare(newer, old) >= 0 {
		t.Fatalf("newer version must sort before older version")
	}
}

func TestSplitRecordKey(t *testing.T) {
	base := AppendDocKey(nil, 0, nil, []KeyEntryValue{KeyEntryString("k")})
	ht := HybridTimeFromMicros(42)
	rec := AppendHybridTime(append([]byte(nil), base...), ht)

	user, wt, err := SplitRecordKey(rec)
	if err != nil {
		t.Fatalf("SplitRecordKey: %v", err)
	}
	if !bytes.Equal(user, base) {
		t.Fatalf("user key mismatch")
	}
	if wt.Decode() != ht {
		t.Fatalf("write time mismatch: %v", wt.Decode())
	}

	if _, _, err := SplitRecordKey(base[:2]); err == nil {
		t.Fatalf("expected truncation error")
	}
}

func TestSubKeySuccessorOrdering(t *testing.T) {
	key := AppendDocKey(nil, 0, nil, []KeyEntryValue{KeyEntryInt64(5)})
	subkey := KeyEntryColumn(3).AppendToKey(append([]byte(nil), key...))

	oldest := AppendHybridTime(append([]byte(nil), subkey...), HybridTimeMin)
	succ := SubKeySuccessor(subkey)
	child := KeyEntryInt64(0).AppendToKey(append([]byte(nil), subkey...))

	if bytes.Compare(succ, oldest) <= 0 {
		t.Fatalf("successor must sort after every version")
	}
	if bytes.Compare(succ, child) >= 0 {
		t.Fatalf("successor must sort before children")
	}
}

func TestPrefixSuccessor(t *testing.T) {
	if got := PrefixSuccessor([]byte{0x01, 0x02}); !bytes.Equal(got, []byte{0x01, 0x03}) {
		t.Fatalf("unexpected successor: %v", got)
	}
	if got := PrefixSuccessor([]byte{0x01, 0xff}); !bytes.Equal(got, []byte{0x02}) {
		t.Fatalf("carry not handled: %v", got)
	}
	if got := PrefixSuccessor([]byte{0xff, 0xff}); got != nil {
		t.Fatalf("expected nil successor, got %v", got)
	}
}

func TestKeyEntryRoundTrip(t *testing.T) {
	entries := []KeyEntryValue{
		KeyEntryNull(),
		KeyEntryBool(false),
		KeyEntryBool(true),
		KeyEntryInt32(-7),
		KeyEntryInt32(1 << 20),
		KeyEntryInt64(-1),
		KeyEntryInt64(1 << 40),
		KeyEntryUInt32(0xdeadbeef),
		KeyEntryString("hello"),
		KeyEntryString("with\x00zero"),
		KeyEntryColumn(12),
		KeyEntrySystemColumn(0),
	}
	for _, e := range entries {
		enc := e.Encoded()
		got, rest, err := DecodeKeyEntryValue(enc)
		if err != nil {
			t.Fatalf("decode %v: %v", e, err)
		}
		if len(rest) != 0 {
			t.Fatalf("decode %v left %d bytes", e, len(rest))
		}
		if got != e {
			t.Fatalf("round trip mismatch: %v != %v", got, e)
		}
	}
}

func TestKeyEntryIntegerOrdering(t *testing.T) {
	values := []int64{-1 << 40, -5, -1, 0, 1, 5, 1 << 40}
	var prev []byte
	for _, v := range values {
		enc := KeyEntryInt64(v).Encoded()
		if prev != nil && bytes.Compare(prev, enc) >= 0 {
			t.Fatalf("encoding of %d does not sort after predecessor", v)
		}
		prev = enc
	}
}

func TestLivenessColumnSortsFirst(t *testing.T) {
	liveness := LivenessColumn.Encoded()
	col := KeyEntryColumn(0).Encoded()
	if bytes.Compare(liveness, col) >= 0 {
		t.Fatalf("liveness column must sort before regular columns")
	}
}

func TestDocKeySizes(t *testing.T) {
	hashed := []KeyEntryValue{KeyEntryInt32(1)}
	rng := []KeyEntryValue{KeyEntryString("r"), KeyEntryInt64(2)}
	key := AppendDocKey(nil, 0xbeef, hashed, rng)
	withSubkey := KeyEntryColumn(9).AppendToKey(append([]byte(nil), key...))

	sizes, err := DecodeDocKeySizes(withSubkey)
	if err != nil {
		t.Fatalf("DecodeDocKeySizes: %v", err)
	}
	if sizes.DocKeySize != len(key) {
		t.Fatalf("doc key size %d, want %d", sizes.DocKeySize, len(key))
	}
	wantHash := 1 + HashCodeSize + len(hashed[0].Encoded()) + 1
	if sizes.HashPartSize != wantHash {
		t.Fatalf("hash part size %d, want %d", sizes.HashPartSize, wantHash)
	}
}

func TestDocKeySizesColocated(t *testing.T) {
	key := AppendColocationPrefix(nil, 77)
	key = AppendDocKey(key, 0, nil, []KeyEntryValue{KeyEntryInt64(3)})
	sizes, err := DecodeDocKeySizes(key)
	if err != nil {
		t.Fatalf("DecodeDocKeySizes: %v", err)
	}
	if sizes.DocKeySize != len(key) {
		t.Fatalf("doc key size %d, want %d", sizes.DocKeySize, len(key))
	}
	if sizes.HashPartSize != 1+ColocationIDSize {
		t.Fatalf("hash part size %d", sizes.HashPartSize)
	}
}

func TestTableTombstoneKey(t *testing.T) {
	root := AppendColocationPrefix(nil, 5)
	root = AppendDocKey(root, 0, nil, []KeyEntryValue{KeyEntryInt64(1)})

	tk := TableTombstoneKey(root)
	if tk == nil {
		t.Fatalf("expected tombstone key")
	}
	if !IsColocatedTableTombstoneKey(tk) {
		t.Fatalf("tombstone key not recognized")
	}
	if IsColocatedTableTombstoneKey(root) {
		t.Fatalf("row key misidentified as tombstone key")
	}
	if TableTombstoneKey([]byte{byte(KeyUInt16Hash)}) != nil {
		t.Fatalf("expected nil for non-colocated key")
	}
}

func TestStripTupleIDPrefix(t *testing.T) {
	plain := AppendDocKey(nil, 0, nil, []KeyEntryValue{KeyEntryInt64(1)})
	if got := StripTupleIDPrefix(plain); !bytes.Equal(got, plain) {
		t.Fatalf("plain key must be unchanged")
	}
	co := AppendColocationPrefix(nil, 9)
	co = append(co, plain...)
	if got := StripTupleIDPrefix(co); !bytes.Equal(got, plain) {
		t.Fatalf("colocation prefix not stripped")
	}
}

func TestControlFieldsRoundTrip(t *testing.T) {
	f := ValueControlFields{Timestamp: 123456, TTL: 1500 * time.Millisecond}
	enc := f.AppendControlFields(nil)
	enc = AppendPrimitiveValue(enc, Int64Value(5))

	got, payload, err := DecodeControlFields(enc)
	if err != nil {
		t.Fatalf("DecodeControlFields: %v", err)
	}
	if got != f {
		t.Fatalf("control fields mismatch: %+v != %+v", got, f)
	}
	v, err := DecodePrimitiveValue(payload)
	if err != nil || v.I64 != 5 {
		t.Fatalf("payload decode: %v %v", v, err)
	}
}

func TestControlFieldsAbsent(t *testing.T) {
	enc := AppendPrimitiveValue(nil, StringValue("x"))
	f, payload, err := DecodeControlFields(enc)
	if err != nil {
		t.Fatalf("DecodeControlFields: %v", err)
	}
	if f.HasTimestamp() || f.TTL != MaxTTL {
		t.Fatalf("expected zero control fields, got %+v", f)
	}
	if DecodeValueEntryType(payload) != ValueString {
		t.Fatalf("payload tag lost")
	}
}

func TestPrimitiveValueRoundTrip(t *testing.T) {
	values := []Value{
		NullValue(),
		BoolValue(true),
		BoolValue(false),
		Int32Value(-9),
		Int64Value(1 << 50),
		DoubleValue(3.25),
		StringValue("abc"),
	}
	for _, v := range values {
		enc := AppendPrimitiveValue(nil, v)
		got, err := DecodePrimitiveValue(enc)
		if err != nil {
			t.Fatalf("decode %v: %v", v, err)
		}
		if got != v {
			t.Fatalf("round trip mismatch: %v != %v", got, v)
		}
	}
}

func TestIsTombstoned(t *testing.T) {
	dead, err := IsTombstoned(TombstoneValue())
	if err != nil || !dead {
		t.Fatalf("tombstone not detected: %v %v", dead, err)
	}
	alive, err := IsTombstoned(AppendPrimitiveValue(nil, Int64Value(1)))
	if err != nil || alive {
		t.Fatalf("live value misdetected: %v %v", alive, err)
	}
}

func TestStripIntentHybridTime(t *testing.T) {
	payload := AppendPrimitiveValue(nil, Int64Value(7))
	buggy := AppendHybridTime(nil, HybridTimeFromMicros(3))
	buggy = append(buggy, payload...)

	got, err := StripIntentHybridTime(buggy)
	if err != nil {
		t.Fatalf("StripIntentHybridTime: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("prefix not stripped")
	}
	clean, err := StripIntentHybridTime(payload)
	if err != nil || !bytes.Equal(clean, payload) {
		t.Fatalf("clean payload must pass through")
	}
}

func TestNewExpiration(t *testing.T) {
	parent := Expiration{WriteHT: HybridTimeFromMicros(100), TTL: 10 * time.Second}

	// Newer write with its own TTL replaces the parent's.
	e := NewExpiration(parent, 2*time.Second, HybridTimeFromMicros(200))
	if e.WriteHT != HybridTimeFromMicros(200) || e.TTL != 2*time.Second {
		t.Fatalf("own ttl not applied: %+v", e)
	}

	// Newer write without TTL keeps the parent's.
	e = NewExpiration(parent, MaxTTL, HybridTimeFromMicros(200))
	if e != parent {
		t.Fatalf("parent expiration not kept: %+v", e)
	}

	// Dormant table default activates on inheritance.
	dormant := TableExpiration(5 * time.Second)
	e = NewExpiration(dormant, MaxTTL, HybridTimeFromMicros(300))
	if e.TTL != 5*time.Second {
		t.Fatalf("default ttl not activated: %+v", e)
	}
	if e.WriteHT != HybridTimeFromMicros(300) {
		t.Fatalf("write time not seeded: %+v", e)
	}
}

func TestHasExpired(t *testing.T) {
	write := HybridTimeFromMicros(1_000_000)
	if !HasExpired(write, time.Second, HybridTimeFromMicros(2_500_000)) {
		t.Fatalf("record past its ttl must be expired")
	}
	if HasExpired(write, time.Second, HybridTimeFromMicros(1_500_000)) {
		t.Fatalf("record within its ttl must be visible")
	}
	if HasExpired(write, MaxTTL, HybridTimeFromMicros(1<<40)) {
		t.Fatalf("MaxTTL must never expire")
	}
}

func TestLazyHybridTimeCaches(t *testing.T) {
	var l LazyHybridTime
	l.Assign(EncodeHybridTime(HybridTimeFromMicros(9)))
	if l.Decoded() != HybridTimeFromMicros(9) {
		t.Fatalf("decode mismatch")
	}
	l.Assign(EncodeHybridTime(HybridTimeFromMicros(11)))
	if l.Decoded() != HybridTimeFromMicros(11) {
		t.Fatalf("stale cache after Assign")
	}
}
