package model

import "errors"

var (
	ErrGroupMismatch     = errors.New("option does not belong to the current group")
	ErrCatalogExhausted  = errors.New("every group has already been decided")
	ErrOptionOutOfRange  = errors.New("option index out of range")
	ErrAtFirstGroup      = errors.New("already at the first group")
	ErrCannotSkip        = errors.New("no later group to skip to")
	ErrEmptySelection    = errors.New("nothing selected")
	ErrAlreadyGenerating = errors.New("generation already submitted")

	ErrEmptyCatalog = errors.New("catalog has no groups")
)
