package discord

import (
	"context"

	"github.com/bwmarrin/discordgo"
	"github.com/mahirjain10/photomosaic-bot/internal/handlers"
)

// interactionResponder answers one interaction with a deferred response followed by
// followup messages.
type interactionResponder struct {
	session     *discordgo.Session
	interaction *discordgo.Interaction
}

func (r *interactionResponder) Defer(ctx context.Context) error {
	return r.session.InteractionRespond(r.interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
	}, discordgo.WithContext(ctx))
}

func (r *interactionResponder) Followup(ctx context.Context, content string) (string, error) {
	msg, err := r.session.FollowupMessageCreate(r.interaction, true, &discordgo.WebhookParams{
		Content: content,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", err
	}
	return msg.ID, nil
}

func (r *interactionResponder) Edit(ctx context.Context, messageID string, edit handlers.Edit) error {
	content := edit.Content
	params := &discordgo.WebhookEdit{Content: &content}
	if edit.Embed != nil {
		embeds := []*discordgo.MessageEmbed{{
			Title: edit.Embed.Title,
			URL:   edit.Embed.URL,
			Image: &discordgo.MessageEmbedImage{URL: edit.Embed.ImageURL},
		}}
		params.Embeds = &embeds
	}
	_, err := r.session.FollowupMessageEdit(r.interaction, messageID, params, discordgo.WithContext(ctx))
	return err
}
