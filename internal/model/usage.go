package model

import "time"

// UsageCounter accumulates LLM requests and tokens for one model on one day.
// Day is a date in YYYY-MM-DD form; counters reset by rolling to a new row.
type UsageCounter struct {
	Model     string    `gorm:"primaryKey;size:64"`
	Day       string    `gorm:"primaryKey;size:10"`
	Requests  int       `gorm:"not null"`
	Tokens    int       `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// Conversation is one question/answer exchange kept for the dashboard's
// chat history tab.
type Conversation struct {
	ID        int64     `gorm:"autoIncrement;primaryKey"`
	Question  string    `gorm:"type:text;not null"`
	Answer    string    `gorm:"type:text;not null"`
	Model     string    `gorm:"size:64"`
	Degraded  bool      `gorm:"not null"` // true when the answer is the templated fallback
	CreatedAt time.Time `gorm:"not null;index"`
}
