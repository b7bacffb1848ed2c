package model

import (
	"time"

	"gorm.io/datatypes"
)

// BattleRecord is a persisted simulate_battle result.
type BattleRecord struct {
	ID         string         `gorm:"primaryKey;size:36" json:"id"`
	ClientID   *int64         `gorm:"index:idx_battle_client" json:"client_id,omitempty"`
	Pokemon1   string         `gorm:"size:64;not null" json:"pokemon1"`
	Pokemon2   string         `gorm:"size:64;not null" json:"pokemon2"`
	WinnerSide string         `gorm:"size:24;not null" json:"winner_side"`
	Winner     string         `gorm:"size:64" json:"winner"`
	Turns      int            `json:"turns"`
	Seed       int64          `json:"seed"`
	Log        datatypes.JSON `json:"battle_log"`
	Final      datatypes.JSON `json:"final,omitempty"`
	DurationMs int            `json:"duration_ms"`
	CreatedAt  time.Time      `gorm:"index:idx_battle_created" json:"created_at"`
}

// BattleSummary is the list-view projection of a BattleRecord.
type BattleSummary struct {
	ID         string    `json:"id"`
	Pokemon1   string    `json:"pokemon1"`
	Pokemon2   string    `json:"pokemon2"`
	WinnerSide string    `json:"winner_side"`
	Winner     string    `json:"winner"`
	Turns      int       `json:"turns"`
	Seed       int64     `json:"seed"`
	CreatedAt  time.Time `json:"created_at"`
}

// Summary projects the record for listings and pub/sub payloads.
func (b *BattleRecord) Summary() BattleSummary {
	return BattleSummary{
		ID:         b.ID,
		Pokemon1:   b.Pokemon1,
		Pokemon2:   b.Pokemon2,
		WinnerSide: b.WinnerSide,
		Winner:     b.Winner,
		Turns:      b.Turns,
		Seed:       b.Seed,
		CreatedAt:  b.CreatedAt,
	}
}
