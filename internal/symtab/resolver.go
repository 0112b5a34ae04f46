package symtab

import (
	"errors"
	"fmt"
)

var (
	ErrAddrOutOfRange = errors.New("symbol address out of image range")
	ErrRangeInversion = errors.New("symbol range start past end")
)

// SymbolOffset converts an absolute image file offset into the sample's
// position within symbol i.
func (t *Table) SymbolOffset(i int, absolutePC uint64) uint64 {
	sym := &t.syms[i]
	// take off the section file position, then the symbol's own offset
	return absolutePC - t.sections[sym.Section].FileOffset - sym.Value
}

// Range returns the absolute file-offset range [start, end) covered by
// symbol i. A range outside the image extent means the samples and the
// image do not correspond (wrong, rebuilt or corrupt binary); that is
// fatal for the whole run, never clamped, since continuing would silently
// attribute samples to the wrong code.
func (t *Table) Range(i int) (start, end uint64, err error) {
	sym := &t.syms[i]
	start = t.sections[sym.Section].FileOffset + sym.Value
	end = start + sym.Size

	extent := t.img.Extent()
	if start >= extent {
		return 0, 0, fmt.Errorf("%w: %s start %#x (max %#x)", ErrAddrOutOfRange, sym.Name, start, extent)
	}
	if end > extent {
		return 0, 0, fmt.Errorf("%w: %s end %#x (max %#x)", ErrAddrOutOfRange, sym.Name, end, extent)
	}
	if start > end {
		return 0, 0, fmt.Errorf("%w: %s start %#x end %#x", ErrRangeInversion, sym.Name, start, end)
	}
	return start, end, nil
}
