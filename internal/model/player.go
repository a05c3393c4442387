package model

// Player holds the cumulative counters reported by the stats endpoint for a
// single player. All *TS fields are Unix milliseconds.
type Player struct {
	UUID             string `gorm:"primaryKey;size:36" json:"uuid"`
	Name             string `gorm:"size:64;index;not null" json:"name"`
	TotalJoins       int64  `json:"total_joins"`
	TotalDeaths      int64  `json:"total_deaths"`
	TotalPlaytimeMS  int64  `gorm:"column:total_playtime_ms" json:"total_playtime_ms"`
	PlayerKills      int64  `json:"player_kills"`
	MobKills         int64  `json:"mob_kills"`
	MessagesSent     int64  `json:"messages_sent"`
	AdvancementCount int    `json:"advancement_count"`
	FirstJoinTS      int64  `gorm:"column:first_join_ts" json:"first_join_ts"`
	LastJoinTS       int64  `gorm:"column:last_join_ts" json:"last_join_ts"`
	LastSeenTS       int64  `gorm:"column:last_seen_ts" json:"last_seen_ts"`
	LastUpdatedTS    int64  `gorm:"column:last_updated_ts;index" json:"last_updated_ts"`
}
