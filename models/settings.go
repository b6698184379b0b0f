package models

import "time"

// UserSettings are the per user notes attached to a funding call
type UserSettings struct {
	UserID        string         `json:"user_id"`
	FundingCallID int64          `json:"funding_call_id"`
	Settings      map[string]any `json:"settings"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// SettingsPatch validates the well known settings keys. Unknown keys are stored as given.
type SettingsPatch struct {
	Favorite     *bool   `json:"favorite"`
	Notes        *string `json:"notes" validate:"omitempty,max=5000"`
	Priority     *string `json:"priority" validate:"omitempty,oneof=low medium high"`
	ReminderDate *string `json:"reminder_date" validate:"omitempty,datetime=2006-01-02"`
}
