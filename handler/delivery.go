package handler

import (
	"PromptBot/metrics"
	"PromptBot/model"
	"PromptBot/repo"
	"bytes"
	"context"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const imageBuffer = 4

// startGeneration submits the current prompt and starts delivering its images.
// The session lock must be held.
func (h *PromptBotHandler) startGeneration(ctx context.Context, s Sender, chatID int64, sess *session) error {
	state := &sess.state
	ch := repo.NewPromptChannel(ctx, h.Generator, imageBuffer)
	if err := state.Wizard.Generate(ctx, ch); err != nil {
		return err
	}

	gen := model.Generation{
		ID:        uuid.NewString(),
		UserID:    state.UserID,
		ChatID:    chatID,
		Prompt:    state.Wizard.Text(),
		Labels:    state.Wizard.Labels(),
		Backend:   h.Backend,
		CreatedAt: time.Now().UTC(),
	}
	state.GenerationID = gen.ID

	log.Info().
		Int64("chat_id", chatID).
		Str("generation_id", gen.ID).
		Str("prompt", gen.Prompt).
		Msg("prompt submitted")

	h.inflight.Add(1)
	go h.deliver(ctx, s, chatID, sess, ch, gen)
	return nil
}

// deliver drains ch, sending each image to the chat for as long as gen is still
// the session's generation.
func (h *PromptBotHandler) deliver(ctx context.Context, s Sender, chatID int64, sess *session, ch *repo.PromptChannel, gen model.Generation) {
	defer h.inflight.Done()

	start := time.Now()
	key := h.archiveGeneration(ctx, gen)
	logger := log.With().Int64("chat_id", chatID).Str("generation_id", gen.ID).Logger()

	delivered, discarded := 0, 0
	for img := range ch.Messages() {
		if !h.current(sess, gen.ID) {
			discarded++
			metrics.RecordImageDiscarded()
			continue
		}

		ref := img.Ref
		if h.Mirror != nil {
			url, err := h.Mirror.Put(ctx, img.Prompt, img)
			if err != nil {
				logger.Warn().Err(err).Msg("error mirroring image")
			} else {
				ref = url
			}
		}

		// Held from the last staleness check until the wizard has the image, so a
		// start over cannot slip in between.
		sess.mu.Lock()
		if sess.state.GenerationID != gen.ID {
			sess.mu.Unlock()
			discarded++
			metrics.RecordImageDiscarded()
			continue
		}
		name := model.DownloadName(gen.Prompt, delivered)
		fileID := h.sendImage(ctx, s, chatID, img, name)
		if h.Mirror == nil && h.Files != nil && fileID != "" {
			url, err := h.Files.FileURL(ctx, fileID)
			if err != nil {
				logger.Warn().Err(err).Msg("error resolving file url")
			} else {
				ref = url
			}
		}
		sess.state.Wizard.OnMessage(ref)
		h.editWizard(ctx, s, chatID, &sess.state)
		sess.mu.Unlock()

		metrics.RecordImageDelivered()
		if key != "" {
			if err := h.Archive.AddImage(ctx, key, delivered, ref); err != nil {
				logger.Warn().Err(err).Msg("error archiving image")
			}
		}
		delivered++
	}

	current := h.current(sess, gen.ID)
	err := ch.Err()
	if err == nil && delivered == 0 && current {
		err = repo.ErrNoImages
	}
	metrics.RecordGeneration(h.Backend, time.Since(start), err)
	if err == nil {
		if current {
			logger.Info().Int("images", delivered).Dur("took", time.Since(start)).Msg("generation finished")
		} else {
			logger.Info().Int("images", delivered).Int("discarded", discarded).Msg("generation abandoned by start over")
		}
		return
	}

	logger.Error().Err(err).Msg("generation failed")
	if key != "" {
		if err := h.Archive.MarkFailed(ctx, key); err != nil {
			logger.Warn().Err(err).Msg("error marking generation as failed")
		}
	}
	if current {
		h.reply(ctx, s, chatID, "Generation failed, use Start Over to try again.")
	}
}

// current reports whether generationID is still the session's generation.
func (h *PromptBotHandler) current(sess *session, generationID string) bool {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.state.GenerationID == generationID
}

func (h *PromptBotHandler) archiveGeneration(ctx context.Context, gen model.Generation) string {
	if h.Archive == nil {
		return ""
	}
	key, err := h.Archive.CreateGeneration(ctx, gen)
	if err != nil {
		log.Warn().Err(err).Str("generation_id", gen.ID).Msg("error archiving generation")
		return ""
	}
	return key
}

// sendImage posts img as a photo to look at and as a document to download.
// It returns the file ID of the document, or "" if none was sent.
func (h *PromptBotHandler) sendImage(ctx context.Context, s Sender, chatID int64, img repo.Image, name string) string {
	if len(img.Data) == 0 {
		_, err := s.SendPhoto(ctx, &bot.SendPhotoParams{
			ChatID:  chatID,
			Photo:   &models.InputFileString{Data: img.Ref},
			Caption: name,
		})
		if err != nil {
			log.Error().Err(err).Int64("chat_id", chatID).Msg("error sending photo")
		}
		return ""
	}

	_, err := s.SendPhoto(ctx, &bot.SendPhotoParams{
		ChatID:  chatID,
		Photo:   &models.InputFileUpload{Filename: name, Data: bytes.NewReader(img.Data)},
		Caption: name,
	})
	if err != nil {
		log.Error().Err(err).Int64("chat_id", chatID).Msg("error sending photo")
	}

	msg, err := s.SendDocument(ctx, &bot.SendDocumentParams{
		ChatID:   chatID,
		Document: &models.InputFileUpload{Filename: name, Data: bytes.NewReader(img.Data)},
	})
	if err != nil {
		log.Error().Err(err).Int64("chat_id", chatID).Msg("error sending document")
		return ""
	}
	if msg == nil || msg.Document == nil {
		return ""
	}
	return msg.Document.FileID
}
