package model

import "time"

// Generation is the archived record of one submitted prompt.
type Generation struct {
	ID        string    `json:"id"`
	UserID    int64     `json:"userId"`
	ChatID    int64     `json:"chatId"`
	Prompt    string    `json:"prompt"`
	Labels    []string  `json:"labels"`
	Backend   string    `json:"backend"`
	Images    []string  `json:"images,omitempty"`
	Failed    bool      `json:"failed,omitempty"`
	CreatedAt time.Time `json:"createdAt"`

	//firebase
	DocumentID string `json:"-"`
}
