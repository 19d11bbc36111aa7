package models

import (
	"time"

	"gorm.io/gorm"
)

// SessionArchive is the MySQL row written when a session reaches the
// finished state. The live document stays in the session store; this is
// the durable record for history queries.
type SessionArchive struct {
	ID                   string         `gorm:"primaryKey" json:"id"`
	RoomID               string         `gorm:"index;size:16" json:"room_id"`
	HostID               string         `gorm:"size:64" json:"host_id"`
	ScenarioTitle        string         `gorm:"size:255" json:"scenario_title"`
	EndingType           string         `gorm:"size:32" json:"ending_type"`
	CompletionPercentage float64        `json:"completion_percentage"`
	TotalRounds          int            `json:"total_rounds"`
	PlayerCount          int            `json:"player_count"`
	LogEntryCount        int            `json:"log_entry_count"`
	EndingNarrative      string         `gorm:"type:text" json:"ending_narrative"`
	FinishedAt           time.Time      `json:"finished_at"`
	CreatedAt            time.Time      `json:"created_at"`
	DeletedAt            gorm.DeletedAt `gorm:"index" json:"-"`
}

// ArchivedLogEntry is one narrative-log line of an archived session.
type ArchivedLogEntry struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	SessionID string    `gorm:"index;size:64" json:"session_id"`
	Round     int       `json:"round"`
	Kind      string    `gorm:"size:32" json:"kind"`
	Content   string    `gorm:"type:text" json:"content"`
	ImageURL  string    `gorm:"size:512" json:"image_url"`
	PlayerID  string    `gorm:"size:64" json:"player_id"`
	Timestamp time.Time `json:"timestamp"`
}
