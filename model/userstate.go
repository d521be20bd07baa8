package model

// UserState is the per-chat session data.
type UserState struct {
	Wizard    *Wizard
	UserID    int64
	MessageID int // wizard message, edited in place after every action

	// GenerationID names the generation whose images belong to this chat. Start
	// over clears it, so images still arriving for an older generation are dropped.
	GenerationID string
}
