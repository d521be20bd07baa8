package handler

import (
	"PromptBot/metrics"
	"PromptBot/model"
	"PromptBot/repo"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/rs/zerolog/log"
)

const historyLimit = 10

var errGenerating = errors.New("generation in progress")

// Sender is the part of the Telegram client the handler uses. *bot.Bot satisfies it.
type Sender interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	EditMessageText(ctx context.Context, params *bot.EditMessageTextParams) (*models.Message, error)
	SendPhoto(ctx context.Context, params *bot.SendPhotoParams) (*models.Message, error)
	SendDocument(ctx context.Context, params *bot.SendDocumentParams) (*models.Message, error)
	AnswerCallbackQuery(ctx context.Context, params *bot.AnswerCallbackQueryParams) (bool, error)
}

// ImageMirror keeps a copy of every delivered image and returns a download URL for it.
type ImageMirror interface {
	Put(ctx context.Context, prompt string, img repo.Image) (string, error)
}

// FileURLResolver turns a Telegram file ID into a download URL.
type FileURLResolver interface {
	FileURL(ctx context.Context, fileID string) (string, error)
}

type session struct {
	mu    sync.Mutex
	state model.UserState
}

// PromptBotHandler runs one wizard per chat.
type PromptBotHandler struct {
	Catalog   *model.Catalog
	Generator repo.Generator
	Backend   string

	// Optional collaborators, nil when not configured.
	Archive repo.GenerationArchive
	Mirror  ImageMirror
	Files   FileURLResolver

	mu       sync.Mutex
	sessions map[int64]*session
	inflight sync.WaitGroup
}

func NewPromptBotHandler(catalog *model.Catalog, generator repo.Generator, backend string) *PromptBotHandler {
	return &PromptBotHandler{
		Catalog:   catalog,
		Generator: generator,
		Backend:   backend,
		sessions:  make(map[int64]*session),
	}
}

// Handler is registered as the bot's default handler.
func (h *PromptBotHandler) Handler(ctx context.Context, b *bot.Bot, update *models.Update) {
	h.handleUpdate(ctx, b, update)
}

// Wait blocks until every image delivery started so far has finished.
func (h *PromptBotHandler) Wait() {
	h.inflight.Wait()
}

func (h *PromptBotHandler) handleUpdate(ctx context.Context, s Sender, update *models.Update) {
	switch {
	case update.CallbackQuery != nil:
		h.handleCallback(ctx, s, update.CallbackQuery)
	case update.Message != nil:
		h.handleMessage(ctx, s, update.Message)
	}
}

func (h *PromptBotHandler) session(chatID, userID int64) *session {
	h.mu.Lock()
	defer h.mu.Unlock()

	sess, ok := h.sessions[chatID]
	if !ok {
		sess = &session{state: model.UserState{
			Wizard: model.NewWizard(h.Catalog),
			UserID: userID,
		}}
		h.sessions[chatID] = sess
		metrics.SetSessions(len(h.sessions))
	}
	return sess
}

func (h *PromptBotHandler) handleMessage(ctx context.Context, s Sender, msg *models.Message) {
	chatID := msg.Chat.ID
	var userID int64
	username := ""
	if msg.From != nil {
		userID = msg.From.ID
		username = msg.From.Username
		if username == "" {
			username = msg.From.FirstName
		}
	}
	log.Debug().Int64("chat_id", chatID).Int64("user_id", userID).Str("text", msg.Text).Msg("message received")

	sess := h.session(chatID, userID)

	switch command(msg.Text) {
	case "/start":
		h.reply(ctx, s, chatID, fmt.Sprintf(`Hey %s! I help you put together a prompt for an image generator.
Pick one option per step, skip the steps you don't care about, then press Generate.
Every image comes back as a photo and as a file you can download.

Type /help anytime to see what else I can do.`, username))
		h.sendWizard(ctx, s, chatID, sess)
	case "/help":
		h.reply(ctx, s, chatID, `Commands:
/start - Introduction and a fresh wizard message.
/new - Start over with an empty prompt.
/prompt - Show the prompt built so far.
/history - List your recent generations.
/help - This list.`)
	case "/new":
		sess.mu.Lock()
		h.startOver(&sess.state)
		sess.mu.Unlock()
		metrics.RecordAction(actionStartOver, nil)
		h.sendWizard(ctx, s, chatID, sess)
	case "/prompt":
		sess.mu.Lock()
		text := sess.state.Wizard.Text()
		sess.mu.Unlock()
		if text == "" {
			text = "Nothing selected yet. Use /start to pick options."
		}
		h.reply(ctx, s, chatID, text)
	case "/history":
		h.history(ctx, s, chatID, userID)
	default:
		h.reply(ctx, s, chatID, "I didn't understand that command. Use /start or /help.")
	}
}

// command returns the first word of text without a trailing @botname.
func command(text string) string {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	name, _, _ := strings.Cut(fields[0], "@")
	return name
}

func (h *PromptBotHandler) handleCallback(ctx context.Context, s Sender, cq *models.CallbackQuery) {
	notice := ""
	defer func() {
		_, err := s.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
			CallbackQueryID: cq.ID,
			Text:            notice,
		})
		if err != nil {
			log.Error().Err(err).Msg("error answering callback query")
		}
	}()

	if cq.Message.Message == nil {
		notice = "This message is too old, send /start."
		return
	}
	chatID := cq.Message.Message.Chat.ID
	messageID := cq.Message.Message.ID

	action, err := parseCallback(cq.Data)
	if err != nil {
		log.Warn().Err(err).Int64("chat_id", chatID).Msg("ignoring callback")
		notice = "Unknown button."
		return
	}

	sess := h.session(chatID, cq.From.ID)
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if sess.state.MessageID != messageID {
		notice = "This keyboard is out of date, use the latest message."
		return
	}

	err = h.apply(ctx, s, chatID, sess, action)
	metrics.RecordAction(action.kind, err)
	if err != nil {
		log.Debug().Err(err).Int64("chat_id", chatID).Str("action", action.kind).Msg("wizard action rejected")
		notice = noticeFor(err)
		return
	}
	h.editWizard(ctx, s, chatID, &sess.state)
}

// apply runs one wizard action. The session lock must be held.
func (h *PromptBotHandler) apply(ctx context.Context, s Sender, chatID int64, sess *session, action callbackAction) error {
	w := sess.state.Wizard
	if action.kind == actionStartOver {
		h.startOver(&sess.state)
		return nil
	}
	if w.Generating() {
		return errGenerating
	}

	switch action.kind {
	case actionAdd:
		return w.AddOption(action.group, action.option)
	case actionClear:
		w.Clear()
		return nil
	case actionBack:
		return w.Back()
	case actionSkip:
		return w.Skip()
	case actionGenerate:
		return h.startGeneration(ctx, s, chatID, sess)
	}
	return fmt.Errorf("unhandled action %q", action.kind)
}

// startOver resets the wizard and detaches any generation still running.
func (h *PromptBotHandler) startOver(state *model.UserState) {
	state.Wizard.StartOver()
	state.GenerationID = ""
}

func noticeFor(err error) string {
	switch {
	case errors.Is(err, model.ErrGroupMismatch):
		return "That option belongs to another step."
	case errors.Is(err, model.ErrCatalogExhausted):
		return "Every step is decided, press Generate."
	case errors.Is(err, model.ErrOptionOutOfRange):
		return "That option no longer exists."
	case errors.Is(err, model.ErrAtFirstGroup):
		return "Already at the first step."
	case errors.Is(err, model.ErrCannotSkip):
		return "The last step cannot be skipped."
	case errors.Is(err, model.ErrEmptySelection):
		return "Pick at least one option first."
	case errors.Is(err, model.ErrAlreadyGenerating), errors.Is(err, errGenerating):
		return "Generation in progress, use Start Over to begin again."
	default:
		return "Something went wrong, please try again."
	}
}

func (h *PromptBotHandler) sendWizard(ctx context.Context, s Sender, chatID int64, sess *session) {
	sess.mu.Lock()
	defer sess.mu.Unlock()

	text, keyboard := renderWizard(sess.state.Wizard)
	msg, err := s.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:      chatID,
		Text:        text,
		ReplyMarkup: keyboard,
	})
	if err != nil {
		log.Error().Err(err).Int64("chat_id", chatID).Msg("error sending wizard message")
		return
	}
	sess.state.MessageID = msg.ID
}

// editWizard redraws the wizard message. The session lock must be held.
func (h *PromptBotHandler) editWizard(ctx context.Context, s Sender, chatID int64, state *model.UserState) {
	if state.MessageID == 0 {
		return
	}
	text, keyboard := renderWizard(state.Wizard)
	_, err := s.EditMessageText(ctx, &bot.EditMessageTextParams{
		ChatID:      chatID,
		MessageID:   state.MessageID,
		Text:        text,
		ReplyMarkup: keyboard,
	})
	if err != nil {
		log.Warn().Err(err).Int64("chat_id", chatID).Msg("error editing wizard message")
	}
}

func (h *PromptBotHandler) reply(ctx context.Context, s Sender, chatID int64, text string) {
	_, err := s.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	})
	if err != nil {
		log.Error().Err(err).Int64("chat_id", chatID).Msg("error sending message")
	}
}

func (h *PromptBotHandler) history(ctx context.Context, s Sender, chatID, userID int64) {
	if h.Archive == nil {
		h.reply(ctx, s, chatID, "History is not enabled on this bot.")
		return
	}

	generations, err := h.Archive.ListGenerationsByUser(ctx, userID)
	if err != nil {
		log.Error().Err(err).Int64("user_id", userID).Msg("error listing generations")
		h.reply(ctx, s, chatID, "Could not load your history, please try again later.")
		return
	}
	if len(generations) == 0 {
		h.reply(ctx, s, chatID, "You have not generated anything yet.")
		return
	}

	var text strings.Builder
	text.WriteString("Your recent generations:\n")
	for i, g := range generations {
		if i == historyLimit {
			break
		}
		status := fmt.Sprintf("%d image(s)", len(g.Images))
		if g.Failed {
			status = "failed"
		}
		fmt.Fprintf(&text, "\n%s - %s (%s)", g.CreatedAt.Format("2006-01-02 15:04"), g.Prompt, status)
	}
	h.reply(ctx, s, chatID, text.String())
}
