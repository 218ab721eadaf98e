package docdb

import (
	"bytes"

	"github.com/joshuapare/dockv/internal/format"
)

// ScanChoices enumerates the next desired row key for predicate-bounded
// scans (inequalities and IN-lists on key columns). The row iterator asks it
// whether the key under the cursor is a wanted target and, when it is not,
// where to seek next.
type ScanChoices interface {
	// CurrentTargetMatchesKey reports whether rowKey is the current
	// target.
	CurrentTargetMatchesKey(rowKey []byte) bool
	// SkipTargetsUpTo advances the target past every choice before
	// rowKey. It returns false when rowKey has a shape the choices
	// cannot interpret (such as a table tombstone key).
	SkipTargetsUpTo(rowKey []byte) (bool, error)
	// DoneWithCurrentTarget advances to the next target after a row has
	// been materialized.
	DoneWithCurrentTarget() error
	// SeekToCurrentTarget positions the iterator at the current target.
	SeekToCurrentTarget(iter IntentAwareIterator) error
	// FinishedWithScanChoices reports whether every target has been
	// visited.
	FinishedWithScanChoices() bool
}

// listScanChoices walks an explicit, pre-ordered list of target DocKeys.
// It serves IN-list point scans; range-predicate enumeration stays with the
// query layer.
type listScanChoices struct {
	targets [][]byte
	pos     int
	forward bool
}

// NewListScanChoices returns choices over the given targets, which must be
// sorted in the scan direction.
func NewListScanChoices(targets [][]byte, forward bool) ScanChoices {
	return &listScanChoices{targets: targets, forward: forward}
}

func (c *listScanChoices) FinishedWithScanChoices() bool {
	return c.pos >= len(c.targets)
}

func (c *listScanChoices) CurrentTargetMatchesKey(rowKey []byte) bool {
	return !c.FinishedWithScanChoices() && bytes.Equal(c.targets[c.pos], rowKey)
}

func (c *listScanChoices) SkipTargetsUpTo(rowKey []byte) (bool, error) {
	if format.IsColocatedTableTombstoneKey(rowKey) {
		return false, nil
	}
	for !c.FinishedWithScanChoices() && c.behind(c.targets[c.pos], rowKey) {
		c.pos++
	}
	return true, nil
}

// behind reports whether target lies before key in the scan direction.
func (c *listScanChoices) behind(target, key []byte) bool {
	if c.forward {
		return bytes.Compare(target, key) < 0
	}
	return bytes.Compare(target, key) > 0
}

func (c *listScanChoices) DoneWithCurrentTarget() error {
	c.pos++
	return nil
}

func (c *listScanChoices) SeekToCurrentTarget(iter IntentAwareIterator) error {
	if c.FinishedWithScanChoices() {
		return nil
	}
	target := c.targets[c.pos]
	if c.forward {
		iter.SeekForward(target)
	} else {
		iter.Seek(target)
	}
	return nil
}
