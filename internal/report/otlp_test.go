package report

import (
	"testing"
)

func TestBuildOtlpProfile(t *testing.T) {
	att := &Attribution{
		Image: "/bin/prog",
		Rows: []Row{
			{Symbol: "foo", Addr: 0x1010, File: "foo.c", Line: 7, Count: 5},
		},
		Total: 5,
	}

	pd := BuildOtlpProfile(att, func() uint64 { return 1234 })

	dict := pd.Dictionary
	if dict == nil {
		t.Fatalf("missing dictionary")
	}
	if !containsString(dict.StringTable, "foo") || !containsString(dict.StringTable, "foo.c") {
		t.Fatalf("string table missing symbol or filename: %v", dict.StringTable)
	}

	// entry 0 of each table is the reserved empty entry
	if len(dict.FunctionTable) != 2 || len(dict.LocationTable) != 2 || len(dict.StackTable) != 2 {
		t.Fatalf("table sizes = %d/%d/%d; want 2/2/2",
			len(dict.FunctionTable), len(dict.LocationTable), len(dict.StackTable))
	}
	loc := dict.LocationTable[1]
	if loc.Address != 0x1010 {
		t.Fatalf("location address = %#x; want 0x1010", loc.Address)
	}
	if got := loc.Lines[0].Line; got != 7 {
		t.Fatalf("location line = %d; want 7", got)
	}

	prof := pd.ResourceProfiles[0].ScopeProfiles[0].Profiles[0]
	if prof.TimeUnixNano != 1234 {
		t.Fatalf("profile time = %d; want 1234", prof.TimeUnixNano)
	}
	if len(prof.Samples) != 1 || prof.Samples[0].Values[0] != 5 {
		t.Fatalf("samples = %+v; want one sample of value 5", prof.Samples)
	}

	data, err := MarshalOtlpProfile(pd)
	if err != nil {
		t.Fatalf("MarshalOtlpProfile: %v", err)
	}
	if len(data) == 0 {
		t.Fatalf("empty marshalled payload")
	}
}

func containsString(table []string, s string) bool {
	for _, v := range table {
		if v == s {
			return true
		}
	}
	return false
}
