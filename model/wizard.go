package model

import (
	"context"
	"fmt"
	"strings"
)

// Decision records what happened to one group: an option was chosen or the group
// was skipped. The wizard keeps one decision per visited group, in group order.
type Decision struct {
	Group   int
	Option  int
	Skipped bool
}

// Selected is one chosen (group, option) pair.
type Selected struct {
	Group  int
	Option int
}

// Controls reports which wizard actions are currently available.
type Controls struct {
	Clear     bool
	Back      bool
	Skip      bool
	Generate  bool
	StartOver bool
}

// MessageSender submits a prompt to the generation backend.
type MessageSender interface {
	SendMessage(ctx context.Context, text string) error
}

// Wizard walks a user through the catalog one group at a time and collects the
// images generated from the resulting prompt. It is not safe for concurrent use.
type Wizard struct {
	catalog    *Catalog
	decisions  []Decision
	images     []string
	generating bool
}

func NewWizard(catalog *Catalog) *Wizard {
	return &Wizard{catalog: catalog}
}

func (w *Wizard) Catalog() *Catalog {
	return w.catalog
}

// CurrentGroup is the index of the group awaiting a decision. It equals the
// catalog length once every group has been decided.
func (w *Wizard) CurrentGroup() int {
	return len(w.decisions)
}

// CurrentOptions returns the labels of the current group, or nil when done.
func (w *Wizard) CurrentOptions() []string {
	return w.catalog.Group(w.CurrentGroup())
}

// Done reports whether every group has been decided.
func (w *Wizard) Done() bool {
	return w.CurrentGroup() >= w.catalog.Len()
}

// AddOption chooses option of group, which must be the current group.
func (w *Wizard) AddOption(group, option int) error {
	if w.Done() {
		return ErrCatalogExhausted
	}
	if current := w.CurrentGroup(); group != current {
		return fmt.Errorf("%w: got group %d, current is %d", ErrGroupMismatch, group, current)
	}
	if _, ok := w.catalog.Label(group, option); !ok {
		return fmt.Errorf("%w: option %d of group %d", ErrOptionOutOfRange, option, group)
	}
	w.decisions = append(w.decisions, Decision{Group: group, Option: option})
	return nil
}

// Skip moves past the current group without choosing anything. The last group
// cannot be skipped.
func (w *Wizard) Skip() error {
	current := w.CurrentGroup()
	if current >= w.catalog.Len()-1 {
		return ErrCannotSkip
	}
	w.decisions = append(w.decisions, Decision{Group: current, Skipped: true})
	return nil
}

// Back undoes the last decision, whether it was a choice or a skip. At the first
// group there is nothing to undo: it returns ErrAtFirstGroup and the index stays 0.
func (w *Wizard) Back() error {
	if len(w.decisions) == 0 {
		return ErrAtFirstGroup
	}
	w.decisions = w.decisions[:len(w.decisions)-1]
	return nil
}

// Clear drops every decision and returns to the first group.
func (w *Wizard) Clear() {
	w.decisions = nil
}

// StartOver clears the selection, the images and the generating flag. A backend
// request already in flight is not cancelled.
func (w *Wizard) StartOver() {
	w.Clear()
	w.images = nil
	w.generating = false
}

// Generate marks the wizard as generating and submits the prompt once.
func (w *Wizard) Generate(ctx context.Context, sender MessageSender) error {
	if w.generating {
		return ErrAlreadyGenerating
	}
	if len(w.Selection()) == 0 {
		return ErrEmptySelection
	}
	w.generating = true
	if err := sender.SendMessage(ctx, w.Text()); err != nil {
		w.generating = false
		return fmt.Errorf("error submitting prompt: %w", err)
	}
	return nil
}

// OnMessage appends an image reference delivered by the backend.
func (w *Wizard) OnMessage(ref string) {
	w.images = append(w.images, ref)
}

func (w *Wizard) Generating() bool {
	return w.generating
}

func (w *Wizard) Decisions() []Decision {
	return append([]Decision(nil), w.decisions...)
}

// Selection returns the chosen pairs in the order they were made.
func (w *Wizard) Selection() []Selected {
	selected := make([]Selected, 0, len(w.decisions))
	for _, d := range w.decisions {
		if d.Skipped {
			continue
		}
		selected = append(selected, Selected{Group: d.Group, Option: d.Option})
	}
	return selected
}

// Labels returns the chosen labels in selection order.
func (w *Wizard) Labels() []string {
	selection := w.Selection()
	labels := make([]string, 0, len(selection))
	for _, s := range selection {
		label, _ := w.catalog.Label(s.Group, s.Option)
		labels = append(labels, label)
	}
	return labels
}

// Text is the prompt: the chosen labels joined by single spaces.
func (w *Wizard) Text() string {
	return strings.Join(w.Labels(), " ")
}

func (w *Wizard) Images() []string {
	return append([]string(nil), w.images...)
}

func (w *Wizard) Controls() Controls {
	hasSelection := len(w.Selection()) > 0
	return Controls{
		Clear:     hasSelection && !w.generating,
		Back:      w.CurrentGroup() > 0 && !w.generating,
		Skip:      w.CurrentGroup() < w.catalog.Len()-1 && !w.generating,
		Generate:  hasSelection && !w.generating,
		StartOver: w.generating,
	}
}

// Status is the heading shown while generating.
func (w *Wizard) Status() string {
	if len(w.images) == 0 {
		return "Generating..."
	}
	return "Generation"
}

// DownloadName is the file name offered for the i-th image of the current prompt.
func (w *Wizard) DownloadName(i int) string {
	return DownloadName(w.Text(), i)
}

func DownloadName(text string, i int) string {
	return fmt.Sprintf("%s (%d).webp", text, i)
}
