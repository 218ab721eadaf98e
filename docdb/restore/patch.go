package restore

import (
	"bytes"
	"fmt"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/joshuapare/dockv/internal/format"
)

// Ticker enumerates the operation counters a patch reports.
type Ticker int

const (
	TickerUpdates Ticker = iota
	TickerInserts
	TickerDeletes
	numTickers
)

func (t Ticker) String() string {
	switch t {
	case TickerUpdates:
		return "updates"
	case TickerInserts:
		return "inserts"
	case TickerDeletes:
		return "deletes"
	}
	return fmt.Sprintf("Ticker(%d)", int(t))
}

// Hooks customizes a patch run. ShouldSkipEntry filters system-reserved
// keys out of the diff; Finish emits any writes the concrete patch buffered
// beyond the per-key operations.
type Hooks interface {
	ShouldSkipEntry(key, value []byte) (bool, error)
	Finish(batch *DocWriteBatch) error
}

// NopHooks is the default: skip nothing, no extra writes.
type NopHooks struct{}

func (NopHooks) ShouldSkipEntry([]byte, []byte) (bool, error) { return false, nil }
func (NopHooks) Finish(*DocWriteBatch) error                  { return nil }

// RestorePatch drives the existing (live) and restoring (snapshot) fetch
// states in lockstep and fills a DocWriteBatch that transforms the live
// state into the snapshot state. It borrows both states and the batch.
type RestorePatch struct {
	existing  *FetchState
	restoring *FetchState
	batch     *DocWriteBatch
	hooks     Hooks

	tickers [numTickers]int64

	// The most recent packed row seen on the restoring side, kept so a
	// live column-split record can be compared against the snapshot's
	// packed form of the same row.
	lastPackedRowKey   []byte
	lastPackedRowValue []byte
}

// NewRestorePatch builds a patch over the two states. hooks may be nil.
func NewRestorePatch(existing, restoring *FetchState, batch *DocWriteBatch, hooks Hooks) *RestorePatch {
	if hooks == nil {
		hooks = NopHooks{}
	}
	return &RestorePatch{
		existing:  existing,
		restoring: restoring,
		batch:     batch,
		hooks:     hooks,
	}
}

// Batch returns the write batch being filled.
func (p *RestorePatch) Batch() *DocWriteBatch {
	return p.batch
}

// Ticker returns one operation counter.
func (p *RestorePatch) Ticker(t Ticker) int64 {
	return p.tickers[t]
}

// TotalTickerCount returns the sum of all operation counters.
func (p *RestorePatch) TotalTickerCount() int64 {
	var total int64
	for _, v := range p.tickers {
		total += v
	}
	return total
}

// TickersToString renders the counters for reporting.
func (p *RestorePatch) TickersToString() string {
	return fmt.Sprintf("total: %d, updates: %d, inserts: %d, deletes: %d",
		p.TotalTickerCount(),
		p.tickers[TickerUpdates], p.tickers[TickerInserts], p.tickers[TickerDeletes])
}

// LastPackedRowRestoringState returns the key and value of the most recent
// packed row encountered on the restoring side.
func (p *RestorePatch) LastPackedRowRestoringState() (key, value []byte) {
	return p.lastPackedRowKey, p.lastPackedRowValue
}

// PatchCurrentStateFromRestoringState aligns the two streams and emits the
// minimal diff: updates for common keys with differing values, deletes for
// live-only keys, inserts for snapshot-only keys.
func (p *RestorePatch) PatchCurrentStateFromRestoringState() error {
	for !p.existing.Finished() && !p.restoring.Finished() {
		if skipped, err := p.skipFiltered(p.existing); err != nil {
			return err
		} else if skipped {
			continue
		}
		if skipped, err := p.skipFiltered(p.restoring); err != nil {
			return err
		} else if skipped {
			continue
		}

		switch cmp := bytes.Compare(p.existing.Key(), p.restoring.Key()); {
		case cmp == 0:
			if err := p.tryUpdateLastPackedRow(p.restoring.Key(), p.restoring.Value()); err != nil {
				return err
			}
			if err := p.processCommonEntry(
				p.existing.Key(), p.existing.Value(), p.restoring.Value()); err != nil {
				return err
			}
			if err := p.existing.Next(); err != nil {
				return errors.Wrap(err, "existing state")
			}
			if err := p.restoring.Next(); err != nil {
				return errors.Wrap(err, "restoring state")
			}
		case cmp < 0:
			if err := p.processExistingOnlyEntry(p.existing.Key(), p.existing.Value()); err != nil {
				return err
			}
			if err := p.existing.Next(); err != nil {
				return errors.Wrap(err, "existing state")
			}
		default:
			if err := p.tryUpdateLastPackedRow(p.restoring.Key(), p.restoring.Value()); err != nil {
				return err
			}
			if err := p.processRestoringOnlyEntry(p.restoring.Key(), p.restoring.Value()); err != nil {
				return err
			}
			if err := p.restoring.Next(); err != nil {
				return errors.Wrap(err, "restoring state")
			}
		}
	}

	for !p.existing.Finished() {
		if skipped, err := p.skipFiltered(p.existing); err != nil {
			return err
		} else if skipped {
			continue
		}
		if err := p.processExistingOnlyEntry(p.existing.Key(), p.existing.Value()); err != nil {
			return err
		}
		if err := p.existing.Next(); err != nil {
			return errors.Wrap(err, "existing state")
		}
	}
	for !p.restoring.Finished() {
		if skipped, err := p.skipFiltered(p.restoring); err != nil {
			return err
		} else if skipped {
			continue
		}
		if err := p.tryUpdateLastPackedRow(p.restoring.Key(), p.restoring.Value()); err != nil {
			return err
		}
		if err := p.processRestoringOnlyEntry(p.restoring.Key(), p.restoring.Value()); err != nil {
			return err
		}
		if err := p.restoring.Next(); err != nil {
			return errors.Wrap(err, "restoring state")
		}
	}
	return nil
}

// Finish runs the concrete patch's cleanup and reports the counters.
func (p *RestorePatch) Finish() error {
	if err := p.hooks.Finish(p.batch); err != nil {
		return err
	}
	log.WithField("tickers", p.TickersToString()).Info("restore patch complete")
	return nil
}

// skipFiltered advances s past an entry the hooks filter out. Returns true
// when an entry was skipped.
func (p *RestorePatch) skipFiltered(s *FetchState) (bool, error) {
	skip, err := p.hooks.ShouldSkipEntry(s.Key(), s.Value())
	if err != nil || !skip {
		return false, err
	}
	return true, s.Next()
}

func (p *RestorePatch) processCommonEntry(key, existingValue, restoringValue []byte) error {
	if bytes.Equal(existingValue, restoringValue) {
		return nil
	}
	p.tickers[TickerUpdates]++
	patchOperationsTotal.WithLabelValues("update").Inc()
	p.batch.Put(key, restoringValue)
	return nil
}

func (p *RestorePatch) processRestoringOnlyEntry(key, value []byte) error {
	p.tickers[TickerInserts]++
	patchOperationsTotal.WithLabelValues("insert").Inc()
	p.batch.Put(key, value)
	return nil
}

func (p *RestorePatch) processExistingOnlyEntry(key, _ []byte) error {
	p.tickers[TickerDeletes]++
	patchOperationsTotal.WithLabelValues("delete").Inc()
	p.batch.Delete(key)
	return nil
}

// tryUpdateLastPackedRow remembers the newest packed row on the restoring
// side.
func (p *RestorePatch) tryUpdateLastPackedRow(key, value []byte) error {
	_, payload, err := format.DecodeControlFields(value)
	if err != nil {
		return errors.Wrap(err, "restoring value control fields")
	}
	if format.DecodeValueEntryType(payload) != format.ValuePackedRow {
		return nil
	}
	p.lastPackedRowKey = append(p.lastPackedRowKey[:0], key...)
	p.lastPackedRowValue = append(p.lastPackedRowValue[:0], value...)
	return nil
}
