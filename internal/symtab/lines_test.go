package symtab

import (
	"testing"

	"github.com/perftools/symreport/internal/elfio"
)

// lineTestTable builds a table with a single function symbol at section
// offset 0x10, so LookupLine(0, off) queries in-section pc 0x10+off.
func lineTestTable(t *testing.T, img *mockImage) *Table {
	t.Helper()
	img.symbols = []elfio.RawSymbol{
		{Name: "foo", Value: 0x10, Section: 0, Function: true},
	}
	tbl := Build(img, nil, nil)
	if tbl.Len() != 1 {
		t.Fatalf("table has %d symbols; want 1", tbl.Len())
	}
	return tbl
}

func TestLookupLineDirectHit(t *testing.T) {
	img := testImage()
	img.lines = map[uint64]elfio.LineResult{
		0x15: {Filename: "a.c", Function: "foo", Line: 7},
	}
	tbl := lineTestTable(t, img)

	li, ok := tbl.LookupLine(0, 0x5)
	if !ok {
		t.Fatalf("expected line info")
	}
	if li.Filename != "a.c" || li.Line != 7 {
		t.Fatalf("got %+v; want a.c:7", li)
	}
}

func TestLookupLineZeroLineForwardScan(t *testing.T) {
	img := testImage()
	img.lines = map[uint64]elfio.LineResult{
		0x15: {Filename: "a.c", Function: "foo", Line: 0},
		0x18: {Filename: "a.c", Function: "foo", Line: 42},
	}
	tbl := lineTestTable(t, img)

	li, ok := tbl.LookupLine(0, 0x5)
	if !ok {
		t.Fatalf("expected forward scan to rescue the lookup")
	}
	if li.Line != 42 {
		t.Fatalf("line = %d; want 42", li.Line)
	}
}

func TestLookupLineScanRejectsWrongFunction(t *testing.T) {
	img := testImage()
	img.lines = map[uint64]elfio.LineResult{
		0x15: {Filename: "a.c", Function: "foo", Line: 0},
		0x16: {Filename: "b.c", Function: "other", Line: 9}, // different function, skipped
		0x17: {Filename: "a.c", Function: "foo", Line: 11},
	}
	tbl := lineTestTable(t, img)

	li, ok := tbl.LookupLine(0, 0x5)
	if !ok {
		t.Fatalf("expected line info")
	}
	if li.Line != 11 {
		t.Fatalf("line = %d; want 11 (entry for the wrong function must not win)", li.Line)
	}
}

func TestLookupLineFunctionMismatchDiscarded(t *testing.T) {
	img := testImage()
	img.lines = map[uint64]elfio.LineResult{
		0x15: {Filename: "inl.h", Function: "inlined_helper", Line: 33},
	}
	tbl := lineTestTable(t, img)

	if _, ok := tbl.LookupLine(0, 0x5); ok {
		t.Fatalf("expected mismatched function name to be discarded")
	}
}

func TestLookupLineMismatchWithNonZeroLineDoesNotScan(t *testing.T) {
	img := testImage()
	// The sample sits in an inlined region: the entry at pc names a
	// different function with a real line, and the neighbouring address
	// carries this symbol's name. Accepting the neighbour would pin the
	// sample to the wrong line, so the lookup must give up immediately.
	img.lines = map[uint64]elfio.LineResult{
		0x15: {Filename: "inl.h", Function: "inlined_helper", Line: 33},
		0x16: {Filename: "a.c", Function: "foo", Line: 5},
	}
	tbl := lineTestTable(t, img)

	if li, ok := tbl.LookupLine(0, 0x5); ok {
		t.Fatalf("lookup returned %+v; want no line info on a name mismatch with a non-zero line", li)
	}
	if len(img.queries) != 1 {
		t.Fatalf("reader saw %d queries; want 1 (no forward scan, no re-anchor)", len(img.queries))
	}
}

func TestLookupLineExhaustedScanReAnchors(t *testing.T) {
	img := testImage()
	img.lines = map[uint64]elfio.LineResult{
		0x15: {Filename: "a.c", Function: "foo", Line: 0},
	}
	tbl := lineTestTable(t, img)

	if _, ok := tbl.LookupLine(0, 0x5); ok {
		t.Fatalf("expected lookup to fail with no usable entry in the window")
	}

	// 1 original + 16 probes + 1 re-anchor
	if len(img.queries) != 18 {
		t.Fatalf("reader saw %d queries; want 18", len(img.queries))
	}
	if last := img.queries[len(img.queries)-1]; last != 0x15 {
		t.Fatalf("last query at %#x; want re-anchor at original pc 0x15", last)
	}
	for k, q := range img.queries[1:17] {
		if q != 0x15+uint64(k)+1 {
			t.Fatalf("probe %d at %#x; want %#x", k, q, 0x15+uint64(k)+1)
		}
	}
}

func TestLookupLineWindowClampedToSection(t *testing.T) {
	img := testImage()
	img.sections[0].Size = 0x18 // section ends shortly after pc
	img.lines = map[uint64]elfio.LineResult{
		0x15: {Filename: "a.c", Function: "foo", Line: 0},
	}
	tbl := lineTestTable(t, img)

	if _, ok := tbl.LookupLine(0, 0x5); ok {
		t.Fatalf("expected lookup to fail")
	}
	for _, q := range img.queries {
		if q >= img.sections[0].Size {
			t.Fatalf("probe at %#x is past the section end %#x", q, img.sections[0].Size)
		}
	}
}

func TestLookupLineNonAllocSection(t *testing.T) {
	img := testImage()
	img.sections[0].Alloc = false
	img.lines = map[uint64]elfio.LineResult{
		0x15: {Filename: "a.c", Function: "foo", Line: 7},
	}
	tbl := lineTestTable(t, img)

	if _, ok := tbl.LookupLine(0, 0x5); ok {
		t.Fatalf("expected no line info for a section not mapped into the image")
	}
	if len(img.queries) != 0 {
		t.Fatalf("reader queried %d times; want 0", len(img.queries))
	}
}

func TestLookupLinePCPastSection(t *testing.T) {
	img := testImage()
	tbl := lineTestTable(t, img)

	if _, ok := tbl.LookupLine(0, img.sections[0].Size); ok {
		t.Fatalf("expected no line info past the section size")
	}
}
