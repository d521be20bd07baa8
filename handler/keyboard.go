package handler

import (
	"PromptBot/model"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-telegram/bot/models"
)

const (
	callbackPrefix = "wiz:"
	optionsPerRow  = 2
)

// Callback actions carried by the inline keyboard buttons.
const (
	actionAdd       = "add"
	actionClear     = "clear"
	actionBack      = "back"
	actionSkip      = "skip"
	actionGenerate  = "gen"
	actionStartOver = "over"
)

type callbackAction struct {
	kind   string
	group  int
	option int
}

func callbackData(kind string) string {
	return callbackPrefix + kind
}

func addOptionData(group, option int) string {
	return fmt.Sprintf("%s%s:%d:%d", callbackPrefix, actionAdd, group, option)
}

func parseCallback(data string) (callbackAction, error) {
	rest, ok := strings.CutPrefix(data, callbackPrefix)
	if !ok {
		return callbackAction{}, fmt.Errorf("unknown callback data %q", data)
	}
	parts := strings.Split(rest, ":")
	switch parts[0] {
	case actionAdd:
		if len(parts) != 3 {
			return callbackAction{}, fmt.Errorf("malformed option callback %q", data)
		}
		group, err := strconv.Atoi(parts[1])
		if err != nil {
			return callbackAction{}, fmt.Errorf("error parsing group in %q: %w", data, err)
		}
		option, err := strconv.Atoi(parts[2])
		if err != nil {
			return callbackAction{}, fmt.Errorf("error parsing option in %q: %w", data, err)
		}
		return callbackAction{kind: actionAdd, group: group, option: option}, nil
	case actionClear, actionBack, actionSkip, actionGenerate, actionStartOver:
		if len(parts) != 1 {
			return callbackAction{}, fmt.Errorf("malformed callback %q", data)
		}
		return callbackAction{kind: parts[0]}, nil
	default:
		return callbackAction{}, fmt.Errorf("unknown callback action %q", data)
	}
}

// renderWizard builds the text and keyboard of the wizard message.
func renderWizard(w *model.Wizard) (string, *models.InlineKeyboardMarkup) {
	var text strings.Builder
	if w.Generating() {
		text.WriteString(w.Status())
		text.WriteString("\n\nPrompt: ")
		text.WriteString(w.Text())
		if n := len(w.Images()); n > 0 {
			fmt.Fprintf(&text, "\n\n%d image(s) delivered. Tap a file to download it.", n)
		}
	} else {
		selected := w.Text()
		if selected == "" {
			selected = "(nothing yet)"
		}
		text.WriteString("Selected: ")
		text.WriteString(selected)
		text.WriteString("\n\n")
		if w.Done() {
			text.WriteString("All steps done. Press Generate.")
		} else {
			fmt.Fprintf(&text, "Step %d of %d: pick an option.", w.CurrentGroup()+1, w.Catalog().Len())
		}
	}

	var rows [][]models.InlineKeyboardButton
	if !w.Generating() {
		var row []models.InlineKeyboardButton
		group := w.CurrentGroup()
		for i, label := range w.CurrentOptions() {
			row = append(row, models.InlineKeyboardButton{Text: label, CallbackData: addOptionData(group, i)})
			if len(row) == optionsPerRow {
				rows = append(rows, row)
				row = nil
			}
		}
		if len(row) > 0 {
			rows = append(rows, row)
		}
	}

	controls := w.Controls()
	var controlRow []models.InlineKeyboardButton
	if controls.Clear {
		controlRow = append(controlRow, models.InlineKeyboardButton{Text: "Clear", CallbackData: callbackData(actionClear)})
	}
	if controls.Back {
		controlRow = append(controlRow, models.InlineKeyboardButton{Text: "Back", CallbackData: callbackData(actionBack)})
	}
	if controls.Skip {
		controlRow = append(controlRow, models.InlineKeyboardButton{Text: "Skip", CallbackData: callbackData(actionSkip)})
	}
	if len(controlRow) > 0 {
		rows = append(rows, controlRow)
	}
	if controls.Generate {
		rows = append(rows, []models.InlineKeyboardButton{{Text: "Generate", CallbackData: callbackData(actionGenerate)}})
	}
	if controls.StartOver {
		rows = append(rows, []models.InlineKeyboardButton{{Text: "Start Over", CallbackData: callbackData(actionStartOver)}})
	}

	return text.String(), &models.InlineKeyboardMarkup{InlineKeyboard: rows}
}
