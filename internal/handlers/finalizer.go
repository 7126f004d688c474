package handlers

import (
	"context"
	"sync"
)

// Embed is the rich attachment of the success message.
type Embed struct {
	Title    string
	URL      string
	ImageURL string
}

// Edit replaces the content of a followup message.
type Edit struct {
	Content string
	Embed   *Embed
}

// Responder talks back to the user who invoked a command.
type Responder interface {
	// Defer acknowledges the interaction; the answer follows later.
	Defer(ctx context.Context) error
	// Followup posts a new message and returns its id.
	Followup(ctx context.Context, content string) (string, error)
	// Edit replaces the message with the given id.
	Edit(ctx context.Context, messageID string, edit Edit) error
}

// Finalizer sends the single terminal message of a job. Before a status message exists
// the terminal message is a new followup; afterwards it is an edit of the status.
type Finalizer struct {
	responder Responder
	messageID string
	once      sync.Once
}

func NewFinalizer(responder Responder) *Finalizer {
	return &Finalizer{responder: responder}
}

// Attach makes the finalizer edit messageID instead of posting a followup.
func (f *Finalizer) Attach(messageID string) {
	f.messageID = messageID
}

// Succeed shows the hosted image. It reports whether this call was the terminal one.
func (f *Finalizer) Succeed(ctx context.Context, url string) (bool, error) {
	return f.finish(ctx, Edit{
		Content: TextSuccess,
		Embed:   &Embed{Title: url, URL: url, ImageURL: url},
	})
}

// Fail shows text. It reports whether this call was the terminal one.
func (f *Finalizer) Fail(ctx context.Context, text string) (bool, error) {
	return f.finish(ctx, Edit{Content: text})
}

func (f *Finalizer) finish(ctx context.Context, edit Edit) (bool, error) {
	sent := false
	var err error
	f.once.Do(func() {
		sent = true
		if f.messageID == "" {
			_, err = f.responder.Followup(ctx, edit.Content)
			return
		}
		err = f.responder.Edit(ctx, f.messageID, edit)
	})
	return sent, err
}
