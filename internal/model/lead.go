package model

import "time"

// LeadTimeLayout is how lead timestamps are rendered to admins.
const LeadTimeLayout = "2006-01-02 15:04:05"

// Lead is an inbound contact-form submission. Leads are never updated.
type Lead struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	Name      string    `json:"name" gorm:"size:255;not null"`
	Email     string    `json:"email" gorm:"size:255;not null"`
	Message   *string   `json:"message" gorm:"type:text"`
	CreatedAt time.Time `json:"created_at"`
}
