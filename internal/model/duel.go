package model

// DuelStats is the duel record for one player, keyed by lower-cased name.
type DuelStats struct {
	Name        string `gorm:"primaryKey;size:64" json:"name"`
	DisplayName string `gorm:"size:64" json:"display_name"`
	Wins        int    `gorm:"not null" json:"wins"`
	Losses      int    `gorm:"not null" json:"losses"`
	Rating      int    `gorm:"not null" json:"rating"`
	// Kits is a JSON object of kit name to {wins, losses}.
	Kits      string `gorm:"type:text" json:"kits"`
	UpdatedAt int64  `gorm:"autoUpdateTime:milli" json:"updated_at"`
}

// KitRecord is one entry of DuelStats.Kits.
type KitRecord struct {
	Wins   int `json:"wins"`
	Losses int `json:"losses"`
}
