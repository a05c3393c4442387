package model

// MetricSnapshot is one telemetry poll of the game server. Rows are keyed by
// the poll timestamp in Unix milliseconds; a second write with the same
// timestamp replaces the first.
type MetricSnapshot struct {
	Timestamp       int64   `gorm:"primaryKey;autoIncrement:false" json:"timestamp"`
	Online          bool    `gorm:"not null;index" json:"online"`
	PlayerCount     int     `gorm:"not null" json:"player_count"`
	CPULoad         float64 `gorm:"not null" json:"cpu_load"`
	RAMUsedMB       int64   `gorm:"column:ram_used_mb;not null" json:"ram_used_mb"`
	RAMMaxMB        int64   `gorm:"column:ram_max_mb;not null" json:"ram_max_mb"`
	Threads         int     `gorm:"not null" json:"threads"`
	LoadedChunks    int     `gorm:"not null" json:"loaded_chunks"`
	TotalJoins      int64   `gorm:"not null" json:"total_joins"`
	TotalDeaths     int64   `gorm:"not null" json:"total_deaths"`
	UptimeMS        int64   `gorm:"column:uptime_ms;not null" json:"uptime_ms"`
	TotalRuntimeMS  int64   `gorm:"column:total_runtime_ms;not null" json:"total_runtime_ms"`
	TotalRuntimeHMS string  `gorm:"column:total_runtime_hms;size:32;not null" json:"total_runtime_hms"`
}

// OfflineRuntimeHMS is the runtime string stored for polls that failed.
const OfflineRuntimeHMS = "00h 00m 00s"

// OfflineSnapshot builds the row recorded when the telemetry endpoint could not
// be reached. Every numeric field is zero.
func OfflineSnapshot(ts int64) MetricSnapshot {
	return MetricSnapshot{
		Timestamp:       ts,
		Online:          false,
		TotalRuntimeHMS: OfflineRuntimeHMS,
	}
}
