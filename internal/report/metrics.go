package report

import (
	"sort"

	"mcserver-backend/internal/model"
)

// MetricSpec describes how one chartable metric is read from a snapshot and
// presented.
type MetricSpec struct {
	Label string
	Unit  string
	// Value extracts the raw value. ok == false means the snapshot carries no
	// value for this metric.
	Value func(s model.MetricSnapshot) (v float64, ok bool)
	Scale float64
	// Clamp bounds the scaled value when non-nil.
	Clamp *[2]float64
	// OnlineOnly restricts the series to snapshots taken while the server
	// was reachable. Global counters are read from every row.
	OnlineOnly bool
}

// Apply scales and clamps a raw value.
func (m MetricSpec) Apply(v float64) float64 {
	if m.Scale != 0 {
		v *= m.Scale
	}
	if m.Clamp != nil {
		v = max(m.Clamp[0], min(m.Clamp[1], v))
	}
	return v
}

const (
	mbToGB   = 1.0 / 1024
	msToHour = 1.0 / 3_600_000
)

var percent = &[2]float64{0, 100}

// Metrics is the catalog of chartable metrics keyed by command name.
var Metrics = map[string]MetricSpec{
	"players": {
		Label: "Players", Unit: "players", Scale: 1, OnlineOnly: true,
		Value: func(s model.MetricSnapshot) (float64, bool) { return float64(s.PlayerCount), true },
	},
	"cpu": {
		Label: "CPU Load", Unit: "%", Scale: 100, Clamp: percent, OnlineOnly: true,
		Value: func(s model.MetricSnapshot) (float64, bool) { return s.CPULoad, true },
	},
	"ram": {
		Label: "RAM Used", Unit: "GB", Scale: mbToGB, OnlineOnly: true,
		Value: func(s model.MetricSnapshot) (float64, bool) { return float64(s.RAMUsedMB), true },
	},
	"ram_max": {
		Label: "RAM Max", Unit: "GB", Scale: mbToGB, OnlineOnly: true,
		Value: func(s model.MetricSnapshot) (float64, bool) { return float64(s.RAMMaxMB), true },
	},
	"heap": {
		Label: "Heap Usage", Unit: "%", Scale: 100, Clamp: percent, OnlineOnly: true,
		Value: func(s model.MetricSnapshot) (float64, bool) {
			if s.RAMMaxMB <= 0 {
				return 0, false
			}
			return float64(s.RAMUsedMB) / float64(s.RAMMaxMB), true
		},
	},
	"threads": {
		Label: "Threads", Unit: "threads", Scale: 1, OnlineOnly: true,
		Value: func(s model.MetricSnapshot) (float64, bool) { return float64(s.Threads), true },
	},
	"chunks": {
		Label: "Loaded Chunks", Unit: "chunks", Scale: 1, OnlineOnly: true,
		Value: func(s model.MetricSnapshot) (float64, bool) { return float64(s.LoadedChunks), true },
	},
	"joins": {
		Label: "Total Joins", Unit: "joins", Scale: 1,
		Value: func(s model.MetricSnapshot) (float64, bool) { return float64(s.TotalJoins), true },
	},
	"deaths": {
		Label: "Total Deaths", Unit: "deaths", Scale: 1,
		Value: func(s model.MetricSnapshot) (float64, bool) { return float64(s.TotalDeaths), true },
	},
	"uptime": {
		Label: "Uptime", Unit: "h", Scale: msToHour, OnlineOnly: true,
		Value: func(s model.MetricSnapshot) (float64, bool) { return float64(s.UptimeMS), true },
	},
	"runtime": {
		Label: "Total Runtime", Unit: "h", Scale: msToHour, OnlineOnly: true,
		Value: func(s model.MetricSnapshot) (float64, bool) { return float64(s.TotalRuntimeMS), true },
	},
}

// MetricKeys returns the catalog keys in sorted order.
func MetricKeys() []string {
	keys := make([]string, 0, len(Metrics))
	for k := range Metrics {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
