package repo

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog/log"
)

var ErrChannelUsed = errors.New("prompt channel already used")

// PromptChannel carries one prompt to a Generator and the resulting images back.
// SendMessage returns immediately; images arrive on Messages in the order the
// backend produced them, and the channel is closed once the backend is done.
type PromptChannel struct {
	ctx    context.Context
	gen    Generator
	images chan Image
	once   sync.Once
	err    error
}

// NewPromptChannel binds the backend call to ctx rather than to the caller of
// SendMessage, so the request outlives the update that triggered it.
func NewPromptChannel(ctx context.Context, gen Generator, buffer int) *PromptChannel {
	return &PromptChannel{
		ctx:    ctx,
		gen:    gen,
		images: make(chan Image, buffer),
	}
}

// SendMessage submits text. A channel accepts exactly one message.
func (c *PromptChannel) SendMessage(_ context.Context, text string) error {
	started := false
	c.once.Do(func() {
		started = true
		go c.run(text)
	})
	if !started {
		return ErrChannelUsed
	}
	return nil
}

// Messages delivers images in arrival order.
func (c *PromptChannel) Messages() <-chan Image {
	return c.images
}

// Err reports the backend error, if any. Only valid after Messages is closed.
func (c *PromptChannel) Err() error {
	return c.err
}

func (c *PromptChannel) run(text string) {
	defer close(c.images)
	err := c.gen.Generate(c.ctx, text, func(img Image) {
		select {
		case c.images <- img:
		case <-c.ctx.Done():
		}
	})
	if err != nil {
		log.Error().Err(err).Str("prompt", text).Msg("generation failed")
	}
	c.err = err
}
