package report

import (
	v1 "go.opentelemetry.io/proto/otlp/common/v1"
	profilespb "go.opentelemetry.io/proto/otlp/profiles/v1development"
	resourceV1 "go.opentelemetry.io/proto/otlp/resource/v1"
	"google.golang.org/protobuf/proto"
)

type NowFunc func() uint64 // produces unix nsec

// BuildOtlpProfile renders an attribution as an OTLP profiles payload.
// Index 0 of every dictionary table is the proto's reserved empty entry.
func BuildOtlpProfile(att *Attribution, now NowFunc) *profilespb.ProfilesData {
	nowNsec := now()
	stringTable := []string{""}
	mappingTable := []*profilespb.Mapping{{}}
	locationTable := []*profilespb.Location{{}}
	functionTable := []*profilespb.Function{{}}
	stackTable := []*profilespb.Stack{{}}

	mappingIdx := int32(0)
	if att.Image != "" {
		mappingTable = append(mappingTable, &profilespb.Mapping{
			FilenameStrindex: strIndex(&stringTable, att.Image),
		})
		mappingIdx = int32(len(mappingTable) - 1)
	}

	sampleType := &profilespb.ValueType{
		TypeStrindex: strIndex(&stringTable, "samples"),
		UnitStrindex: strIndex(&stringTable, "count"),
	}

	profileSamples := make([]*profilespb.Sample, 0, len(att.Rows))
	for _, row := range att.Rows {
		funcNameIdx := strIndex(&stringTable, row.Symbol)
		fn := &profilespb.Function{
			NameStrindex:       funcNameIdx,
			SystemNameStrindex: funcNameIdx,
		}
		if row.File != "" {
			fn.FilenameStrindex = strIndex(&stringTable, row.File)
		}
		functionTable = append(functionTable, fn)
		fnIdx := int32(len(functionTable) - 1)

		loc := &profilespb.Location{
			Address:      row.Addr,
			MappingIndex: mappingIdx,
			Lines: []*profilespb.Line{
				{
					FunctionIndex: fnIdx,
					Line:          int64(row.Line),
				},
			},
		}
		locationTable = append(locationTable, loc)
		locIdx := int32(len(locationTable) - 1)

		stackTable = append(stackTable, &profilespb.Stack{LocationIndices: []int32{locIdx}})
		stackIdx := int32(len(stackTable) - 1)

		profileSamples = append(profileSamples, &profilespb.Sample{
			StackIndex:       stackIdx,
			Values:           []int64{int64(row.Count)},
			AttributeIndices: []int32{},
		})
	}

	prof := &profilespb.Profile{
		TimeUnixNano: nowNsec,
		SampleType:   sampleType,
		Samples:      profileSamples,
	}

	resourceProfiles := &profilespb.ResourceProfiles{
		Resource: &resourceV1.Resource{},
		ScopeProfiles: []*profilespb.ScopeProfiles{
			{
				Scope: &v1.InstrumentationScope{
					Name:    "symreport",
					Version: "v1",
				},
				Profiles: []*profilespb.Profile{prof},
			},
		},
	}

	dictionary := &profilespb.ProfilesDictionary{
		MappingTable:  mappingTable,
		LocationTable: locationTable,
		FunctionTable: functionTable,
		StackTable:    stackTable,
		StringTable:   stringTable,
	}

	return &profilespb.ProfilesData{
		ResourceProfiles: []*profilespb.ResourceProfiles{resourceProfiles},
		Dictionary:       dictionary,
	}
}

func MarshalOtlpProfile(pd *profilespb.ProfilesData) ([]byte, error) {
	return proto.Marshal(pd)
}

func strIndex(table *[]string, s string) int32 {
	for i, v := range *table {
		if v == s {
			return int32(i)
		}
	}
	*table = append(*table, s)
	return int32(len(*table) - 1)
}
