package model

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

type recordingSender struct {
	texts []string
	err   error
}

func (r *recordingSender) SendMessage(_ context.Context, text string) error {
	r.texts = append(r.texts, text)
	return r.err
}

func newTestWizard(t *testing.T, groups [][]string) *Wizard {
	t.Helper()
	catalog, err := NewCatalog(groups)
	require.NoError(t, err)
	return NewWizard(catalog)
}

func TestWizard_ExampleRedDog(t *testing.T) {
	w := newTestWizard(t, [][]string{{"red", "blue"}, {"cat", "dog"}})

	require.NoError(t, w.AddOption(0, 0))
	require.NoError(t, w.AddOption(1, 1))

	assert.Equal(t, []Selected{{0, 0}, {1, 1}}, w.Selection())
	assert.Equal(t, "red dog", w.Text())
	assert.True(t, w.Done())

	sender := &recordingSender{}
	require.NoError(t, w.Generate(context.Background(), sender))
	assert.Equal(t, []string{"red dog"}, sender.texts)
	assert.True(t, w.Generating())
}

func TestWizard_AddOptionPreconditions(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(w *Wizard)
		group   int
		option  int
		wantErr error
	}{
		{name: "wrong group", group: 1, option: 0, wantErr: ErrGroupMismatch},
		{name: "option out of range", group: 0, option: 5, wantErr: ErrOptionOutOfRange},
		{name: "negative option", group: 0, option: -1, wantErr: ErrOptionOutOfRange},
		{
			name: "catalog exhausted",
			setup: func(w *Wizard) {
				_ = w.AddOption(0, 0)
				_ = w.AddOption(1, 0)
			},
			group:   2,
			option:  0,
			wantErr: ErrCatalogExhausted,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newTestWizard(t, [][]string{{"red", "blue"}, {"cat", "dog"}})
			if tt.setup != nil {
				tt.setup(w)
			}
			before := w.Decisions()
			err := w.AddOption(tt.group, tt.option)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, before, w.Decisions())
		})
	}
}

func TestWizard_BackOnEmptySelection(t *testing.T) {
	w := newTestWizard(t, [][]string{{"red", "blue"}, {"cat", "dog"}})

	err := w.Back()

	assert.ErrorIs(t, err, ErrAtFirstGroup)
	assert.Equal(t, 0, w.CurrentGroup())
	assert.Empty(t, w.Selection())
}

func TestWizard_SkipThenBack(t *testing.T) {
	w := newTestWizard(t, [][]string{{"red", "blue"}, {"cat", "dog"}, {"small", "big"}})
	require.NoError(t, w.AddOption(0, 1))
	selection := w.Selection()

	require.NoError(t, w.Skip())
	assert.Equal(t, 2, w.CurrentGroup())

	require.NoError(t, w.Back())
	assert.Equal(t, 1, w.CurrentGroup())
	assert.Equal(t, selection, w.Selection())
}

func TestWizard_BackAfterSkipKeepsSelectionInSync(t *testing.T) {
	w := newTestWizard(t, [][]string{{"red", "blue"}, {"cat", "dog"}, {"small", "big"}})
	require.NoError(t, w.AddOption(0, 0))
	require.NoError(t, w.Skip())

	require.NoError(t, w.Back())
	require.NoError(t, w.Back())

	assert.Equal(t, 0, w.CurrentGroup())
	assert.Empty(t, w.Selection())
}

func TestWizard_SkipLastGroup(t *testing.T) {
	w := newTestWizard(t, [][]string{{"red", "blue"}, {"cat", "dog"}})
	require.NoError(t, w.Skip())

	assert.ErrorIs(t, w.Skip(), ErrCannotSkip)
	assert.Equal(t, 1, w.CurrentGroup())
}

func TestWizard_SkippedGroupsAreLeftOutOfText(t *testing.T) {
	w := newTestWizard(t, [][]string{{"A cat"}, {"riding", "sleeping"}, {"on the moon"}})
	require.NoError(t, w.AddOption(0, 0))
	require.NoError(t, w.Skip())
	require.NoError(t, w.AddOption(2, 0))

	assert.Equal(t, "A cat on the moon", w.Text())
	assert.Equal(t, []Selected{{0, 0}, {2, 0}}, w.Selection())
}

func TestWizard_Generate(t *testing.T) {
	t.Run("empty selection", func(t *testing.T) {
		w := newTestWizard(t, [][]string{{"red"}})
		sender := &recordingSender{}

		assert.ErrorIs(t, w.Generate(context.Background(), sender), ErrEmptySelection)
		assert.False(t, w.Generating())
		assert.Empty(t, sender.texts)
	})

	t.Run("already generating", func(t *testing.T) {
		w := newTestWizard(t, [][]string{{"red"}})
		require.NoError(t, w.AddOption(0, 0))
		sender := &recordingSender{}
		require.NoError(t, w.Generate(context.Background(), sender))

		assert.ErrorIs(t, w.Generate(context.Background(), sender), ErrAlreadyGenerating)
		assert.Len(t, sender.texts, 1)
	})

	t.Run("sender failure rolls back", func(t *testing.T) {
		w := newTestWizard(t, [][]string{{"red"}})
		require.NoError(t, w.AddOption(0, 0))
		boom := errors.New("boom")

		err := w.Generate(context.Background(), &recordingSender{err: boom})

		assert.ErrorIs(t, err, boom)
		assert.False(t, w.Generating())
	})
}

func TestWizard_OnMessageKeepsArrivalOrder(t *testing.T) {
	w := newTestWizard(t, [][]string{{"red"}})
	require.NoError(t, w.AddOption(0, 0))
	require.NoError(t, w.Generate(context.Background(), &recordingSender{}))
	assert.Equal(t, "Generating...", w.Status())

	w.OnMessage("img-1")
	w.OnMessage("img-2")
	w.OnMessage("img-3")

	assert.Equal(t, []string{"img-1", "img-2", "img-3"}, w.Images())
	assert.Equal(t, "Generation", w.Status())
	assert.Equal(t, "red (2).webp", w.DownloadName(2))
}

func TestWizard_StartOver(t *testing.T) {
	w := newTestWizard(t, [][]string{{"red"}, {"dog"}})
	require.NoError(t, w.AddOption(0, 0))
	require.NoError(t, w.Generate(context.Background(), &recordingSender{}))
	w.OnMessage("img")

	w.StartOver()

	assert.Empty(t, w.Selection())
	assert.Equal(t, 0, w.CurrentGroup())
	assert.Empty(t, w.Images())
	assert.False(t, w.Generating())
}

func TestWizard_Controls(t *testing.T) {
	w := newTestWizard(t, [][]string{{"red", "blue"}, {"cat", "dog"}, {"small"}})

	assert.Equal(t, Controls{Skip: true}, w.Controls())

	require.NoError(t, w.AddOption(0, 0))
	assert.Equal(t, Controls{Clear: true, Back: true, Skip: true, Generate: true}, w.Controls())

	require.NoError(t, w.Skip())
	assert.Equal(t, Controls{Clear: true, Back: true, Generate: true}, w.Controls())

	require.NoError(t, w.Generate(context.Background(), &recordingSender{}))
	assert.Equal(t, Controls{StartOver: true}, w.Controls())
}

// wizardMachine drives a wizard with random operations and checks invariants
// after each step.
type wizardMachine struct {
	w       *Wizard
	catalog [][]string
}

func (m *wizardMachine) AddOption(t *rapid.T) {
	if m.w.Done() {
		t.Skip("catalog exhausted")
	}
	group := m.w.CurrentGroup()
	option := rapid.IntRange(0, len(m.catalog[group])-1).Draw(t, "option")
	if err := m.w.AddOption(group, option); err != nil {
		t.Fatalf("AddOption(%d, %d): %v", group, option, err)
	}
}

func (m *wizardMachine) Skip(t *rapid.T) {
	before := m.w.CurrentGroup()
	if err := m.w.Skip(); err != nil {
		if before < len(m.catalog)-1 {
			t.Fatalf("Skip at %d: %v", before, err)
		}
		return
	}
	if m.w.CurrentGroup() != before+1 {
		t.Fatalf("Skip moved from %d to %d", before, m.w.CurrentGroup())
	}
}

func (m *wizardMachine) Back(t *rapid.T) {
	before := m.w.CurrentGroup()
	err := m.w.Back()
	if before == 0 {
		if !errors.Is(err, ErrAtFirstGroup) || m.w.CurrentGroup() != 0 {
			t.Fatalf("Back at 0: err=%v index=%d", err, m.w.CurrentGroup())
		}
		return
	}
	if err != nil || m.w.CurrentGroup() != before-1 {
		t.Fatalf("Back from %d: err=%v index=%d", before, err, m.w.CurrentGroup())
	}
}

func (m *wizardMachine) Clear(t *rapid.T) {
	m.w.Clear()
	if len(m.w.Selection()) != 0 || m.w.CurrentGroup() != 0 {
		t.Fatalf("Clear left selection=%v index=%d", m.w.Selection(), m.w.CurrentGroup())
	}
}

func (m *wizardMachine) Check(t *rapid.T) {
	selection := m.w.Selection()
	if len(selection) > m.w.CurrentGroup() || m.w.CurrentGroup() > len(m.catalog) {
		t.Fatalf("selection %d, index %d, catalog %d", len(selection), m.w.CurrentGroup(), len(m.catalog))
	}
	for i := 1; i < len(selection); i++ {
		if selection[i].Group <= selection[i-1].Group {
			t.Fatalf("selection not in increasing group order: %v", selection)
		}
	}
	for _, s := range selection {
		if s.Group >= m.w.CurrentGroup() {
			t.Fatalf("selection %v ahead of index %d", s, m.w.CurrentGroup())
		}
	}
}

func catalogGen() *rapid.Generator[[][]string] {
	label := rapid.StringMatching(`[a-z]{1,8}`)
	group := rapid.SliceOfN(label, 1, 4)
	return rapid.SliceOfN(group, 1, 6)
}

func TestWizard_StateMachineInvariants(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		groups := catalogGen().Draw(t, "catalog")
		catalog, err := NewCatalog(groups)
		if err != nil {
			t.Fatalf("NewCatalog: %v", err)
		}
		m := &wizardMachine{w: NewWizard(catalog), catalog: groups}
		t.Repeat(rapid.StateMachineActions(m))
	})
}

func TestWizard_TextMatchesSelectedLabels(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		groups := catalogGen().Draw(t, "catalog")
		catalog, err := NewCatalog(groups)
		if err != nil {
			t.Fatalf("NewCatalog: %v", err)
		}
		w := NewWizard(catalog)

		var want []string
		for g := range groups {
			o := rapid.IntRange(0, len(groups[g])-1).Draw(t, "option")
			if err := w.AddOption(g, o); err != nil {
				t.Fatalf("AddOption(%d, %d): %v", g, o, err)
			}
			want = append(want, groups[g][o])
		}

		if got := w.Text(); got != strings.Join(want, " ") {
			t.Fatalf("Text() = %q, want %q", got, strings.Join(want, " "))
		}
	})
}

func TestWizard_ClearAlwaysResets(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		groups := catalogGen().Draw(t, "catalog")
		catalog, _ := NewCatalog(groups)
		w := NewWizard(catalog)
		steps := rapid.IntRange(0, len(groups)).Draw(t, "steps")
		for g := 0; g < steps; g++ {
			_ = w.AddOption(g, 0)
		}
		if rapid.Bool().Draw(t, "generate") {
			_ = w.Generate(context.Background(), &recordingSender{})
		}

		w.Clear()

		if len(w.Selection()) != 0 || w.CurrentGroup() != 0 {
			t.Fatalf("Clear left selection=%v index=%d", w.Selection(), w.CurrentGroup())
		}
	})
}
