package format

import "time"

// Expiration is the pair governing TTL visibility of a record: the write
// time the TTL counts from and the TTL itself. TTL == MaxTTL means no
// expiry; a negative TTL is the inherited-default sentinel whose sign flips
// when a child entry activates it.
type Expiration struct {
	WriteHT HybridTime
	TTL     time.Duration
}

// NoExpiration is the zero starting point: counts from the beginning of
// time with no TTL.
func NoExpiration() Expiration {
	return Expiration{WriteHT: HybridTimeMin, TTL: MaxTTL}
}

// TableExpiration seeds the root expiration from a table-level default TTL.
// The default stays dormant (negative) until a record inherits it.
func TableExpiration(tableTTL time.Duration) Expiration {
	if tableTTL == MaxTTL {
		return NoExpiration()
	}
	return Expiration{WriteHT: HybridTimeMin, TTL: -tableTTL}
}

// Active reports whether the expiration can ever make a record invisible.
func (e Expiration) Active() bool {
	return e.TTL != MaxTTL && e.TTL >= 0
}

// NewExpiration derives a child entry's expiration from its parent's, the
// child's own TTL, and the child's write time.
func NewExpiration(parent Expiration, ttl time.Duration, newWriteHT HybridTime) Expiration {
	e := parent
	if newWriteHT >= e.WriteHT {
		if ttl != MaxTTL {
			e.WriteHT = newWriteHT
			e.TTL = ttl
		} else if e.TTL < 0 {
			e.TTL = -e.TTL
		}
	}
	if e.WriteHT == HybridTimeMin {
		e.WriteHT = newWriteHT
	}
	return e
}

// HasExpired reports whether a record written at writeHT with the given TTL
// is invisible at readHT.
func HasExpired(writeHT HybridTime, ttl time.Duration, readHT HybridTime) bool {
	if ttl == MaxTTL || ttl < 0 {
		return false
	}
	elapsed := time.Duration(readHT.PhysicalMicros()-writeHT.PhysicalMicros()) * time.Microsecond
	return elapsed >= ttl
}

// TTLRemainingSeconds returns the whole seconds left before the expiration
// fires at readHT, 0 when already expired, and -1 when no TTL applies.
func TTLRemainingSeconds(readHT HybridTime, ttlWriteHT HybridTime, e Expiration) int64 {
	if !e.Active() {
		return -1
	}
	expiryUs := int64(ttlWriteHT.PhysicalMicros()) + e.TTL.Microseconds()
	remainingUs := expiryUs - int64(readHT.PhysicalMicros())
	if remainingUs <= 0 {
		return 0
	}
	return remainingUs / int64(time.Second/time.Microsecond)
}
