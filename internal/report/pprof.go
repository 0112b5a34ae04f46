package report

import (
	"io"
	"time"

	"github.com/google/pprof/profile"
)

// BuildPprofProfile renders an attribution as a flat pprof profile: one
// location per report row, carrying function, file and line.
func BuildPprofProfile(att *Attribution, sampleTypeName, sampleTypeUnit string) *profile.Profile {
	p := &profile.Profile{
		SampleType: []*profile.ValueType{{Type: sampleTypeName, Unit: sampleTypeUnit}},
		TimeNanos:  time.Now().UnixNano(),
	}
	if att.Image != "" {
		m := &profile.Mapping{ID: 1, File: att.Image}
		p.Mapping = append(p.Mapping, m)
	}

	funcs := map[string]*profile.Function{}
	nextFuncID := uint64(1)
	nextLocID := uint64(1)

	addFunction := func(name, file string) *profile.Function {
		if f, ok := funcs[name]; ok {
			return f
		}
		fn := &profile.Function{
			ID:       nextFuncID,
			Name:     name,
			Filename: file,
		}
		nextFuncID++
		funcs[name] = fn
		p.Function = append(p.Function, fn)
		return fn
	}

	for _, row := range att.Rows {
		fn := addFunction(row.Symbol, row.File)
		loc := &profile.Location{
			ID:      nextLocID,
			Address: row.Addr,
			Line:    []profile.Line{{Function: fn, Line: int64(row.Line)}},
		}
		if len(p.Mapping) > 0 {
			loc.Mapping = p.Mapping[0]
		}
		nextLocID++
		p.Location = append(p.Location, loc)

		p.Sample = append(p.Sample, &profile.Sample{
			Value:    []int64{int64(row.Count)},
			Location: []*profile.Location{loc},
		})
	}

	return p
}

// WriteProfile serializes the profile; profile.Write gzips on its own.
func WriteProfile(p *profile.Profile, w io.Writer) error {
	return p.Write(w)
}
