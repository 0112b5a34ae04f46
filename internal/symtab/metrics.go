package symtab

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	DroppedSymbols *prometheus.CounterVec
	LineLookups    *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		DroppedSymbols: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "symreport_symtab_dropped_symbols_total",
			Help: "Total number of raw symbols dropped while building the symbol table",
		}, []string{"reason"}),
		LineLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "symreport_symtab_line_lookups_total",
			Help: "Total number of source line lookups by outcome",
		}, []string{"result"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.DroppedSymbols,
			m.LineLookups,
		)
	}

	return m
}

func (m *Metrics) dropped(reason string) {
	if m != nil {
		m.DroppedSymbols.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) lookup(result string) {
	if m != nil {
		m.LineLookups.WithLabelValues(result).Inc()
	}
}
