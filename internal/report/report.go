package report

import (
	"log/slog"
	"sort"

	"github.com/perftools/symreport/internal/symtab"
)

// Row is one line of the attribution report: all samples that landed in
// Symbol at the given source position.
type Row struct {
	Symbol string
	Addr   uint64 // symbol start vma
	File   string
	Line   int
	Count  uint64
}

// Attribution is the aggregated result of resolving every sample offset.
type Attribution struct {
	Image        string
	Rows         []Row
	Unattributed uint64 // samples outside any symbol, or whole-image fallback
	Total        uint64
}

// symbolRange is a symbol's absolute file-offset range. The table orders
// symbols by vma, and size inference already relies on section file
// offsets tracking vma order, so these ranges are ascending by start and
// safe to binary-search.
type symbolRange struct {
	start, end uint64
	index      int
}

// Attribute resolves each (file offset, count) pair against the symbol
// table and aggregates by (symbol, file, line). A range validation
// failure propagates up: it means the samples and the image do not
// correspond, and nothing this run produces would be trustworthy.
func Attribute(tbl *symtab.Table, counts map[uint64]uint64, imagePath string) (*Attribution, error) {
	att := &Attribution{Image: imagePath}

	if tbl.Empty() {
		// Whole-image fallback: keep the totals so the report can at
		// least say how many samples the image took.
		for _, c := range counts {
			att.Unattributed += c
			att.Total += c
		}
		return att, nil
	}

	ranges := make([]symbolRange, 0, tbl.Len())
	for i := 0; i < tbl.Len(); i++ {
		start, end, err := tbl.Range(i)
		if err != nil {
			return nil, err
		}
		ranges = append(ranges, symbolRange{start: start, end: end, index: i})
	}

	type key struct {
		sym  int
		file string
		line int
	}
	agg := make(map[key]uint64)

	for off, cnt := range counts {
		att.Total += cnt

		i := sort.Search(len(ranges), func(i int) bool { return ranges[i].start > off })
		if i == 0 || off >= ranges[i-1].end {
			slog.Debug("Sample offset outside any symbol", "offset", off, "count", cnt)
			att.Unattributed += cnt
			continue
		}
		r := ranges[i-1]

		var k key
		k.sym = r.index
		if li, ok := tbl.LookupLine(r.index, tbl.SymbolOffset(r.index, off)); ok {
			k.file = li.Filename
			k.line = li.Line
		}
		agg[k] += cnt
	}

	for k, cnt := range agg {
		sym := tbl.At(k.sym)
		att.Rows = append(att.Rows, Row{
			Symbol: sym.Name,
			Addr:   sym.VMA,
			File:   k.file,
			Line:   k.line,
			Count:  cnt,
		})
	}

	sort.Slice(att.Rows, func(i, j int) bool {
		if att.Rows[i].Count != att.Rows[j].Count {
			return att.Rows[i].Count > att.Rows[j].Count
		}
		if att.Rows[i].Symbol != att.Rows[j].Symbol {
			return att.Rows[i].Symbol < att.Rows[j].Symbol
		}
		return att.Rows[i].Line < att.Rows[j].Line
	})

	return att, nil
}
