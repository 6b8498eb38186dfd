package models

// Channel is a chat channel registered as a notification target.
type Channel struct {
	ID   string `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}
