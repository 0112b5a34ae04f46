package symtab

// LineInfo is a resolved source position. Absence of line info for an
// address is a normal outcome, not an error.
type LineInfo struct {
	Filename string
	Line     int
}

// Window of addresses probed past a sample whose line entry is missing.
// Some compilers emit no line entry for the function prologue, so the
// entry at the sample address itself reports line 0.
const lineScanWindow = 16

// LookupLine resolves symbol i plus an in-symbol offset to a source file
// and line. The nearest-line result is discarded when its function name
// does not match the symbol (line info from an overlapping or inlined
// region would misattribute the sample). A zero line means the compiler
// omitted the prologue entry, and only then does a bounded forward scan
// look for a usable entry nearby.
func (t *Table) LookupLine(i int, offset uint64) (LineInfo, bool) {
	sym := &t.syms[i]
	sect := &t.sections[sym.Section]

	if !sect.Alloc {
		t.metrics.lookup("miss")
		return LineInfo{}, false
	}

	pc := sym.Value + offset
	if pc >= sect.Size {
		t.metrics.lookup("miss")
		return LineInfo{}, false
	}

	res, ok := t.img.NearestLine(sym.Section, pc)
	if !ok {
		t.metrics.lookup("miss")
		return LineInfo{}, false
	}

	if res.Line != 0 {
		if functionMatches(res.Function, sym.Name) {
			t.metrics.lookup("ok")
			return LineInfo{Filename: res.Filename, Line: res.Line}, true
		}
		// A non-zero line under a different function name means the
		// sample sits in an overlapping or inlined region. A nearby
		// entry carrying this symbol's name would still attribute the
		// wrong line, so do not scan.
		t.metrics.lookup("miss")
		return LineInfo{}, false
	}

	// Scan forward a few addresses for an entry that names this symbol
	// with a non-zero line.
	window := uint64(lineScanWindow)
	if pc+window >= sect.Size {
		window = sect.Size - pc - 1
	}
	for k := uint64(1); k <= window; k++ {
		res, ok := t.img.NearestLine(sym.Section, pc+k)
		if ok && res.Line != 0 && res.Function == sym.Name {
			t.metrics.lookup("rescued")
			return LineInfo{Filename: res.Filename, Line: res.Line}, true
		}
	}

	// The reader's result buffer now holds whatever the last probe
	// found. Re-issue the original query so the reader is anchored at
	// the sample address again before anyone else consults it.
	t.reAnchor(sym.Section, pc)
	t.metrics.lookup("miss")
	return LineInfo{}, false
}

// reAnchor restores the nearest-line reader's state to the given address.
// This is part of the reader's contract: probing other addresses
// invalidates the previously returned result.
func (t *Table) reAnchor(section int, pc uint64) {
	t.img.NearestLine(section, pc)
}

func functionMatches(reported, symbol string) bool {
	// A reader may omit the function name entirely; that alone is not
	// grounds to distrust the line entry.
	return reported == "" || reported == symbol
}
