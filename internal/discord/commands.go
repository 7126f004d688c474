package discord

import (
	"github.com/bwmarrin/discordgo"
	"github.com/mahirjain10/photomosaic-bot/internal/handlers"
	"github.com/mahirjain10/photomosaic-bot/internal/types"
)

const commandName = "transform"

// transformCommand is the registered slash command with its two subcommands.
func transformCommand() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        commandName,
		Description: "Transform an image/your profile picture",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        string(types.AvatarVariant),
				Description: "Transform a profile picture",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionUser,
						Name:        "user",
						Description: "Whose profile picture, yours by default",
					},
				},
			},
			{
				Type:        discordgo.ApplicationCommandOptionSubCommand,
				Name:        string(types.ImageVariant),
				Description: "Transform an image hosted on discord",
				Options: []*discordgo.ApplicationCommandOption{
					{
						Type:        discordgo.ApplicationCommandOptionString,
						Name:        "url",
						Description: "Link to the image",
						Required:    true,
					},
				},
			},
		},
	}
}

func identityOf(u *discordgo.User) types.Identity {
	return types.Identity{
		ID:            u.ID,
		Username:      u.Username,
		Discriminator: u.Discriminator,
		Avatar:        u.Avatar,
	}
}

// commandFromInteraction converts a transform invocation. ok is false for anything else,
// including invocations outside a guild.
func commandFromInteraction(i *discordgo.Interaction) (handlers.Command, bool) {
	if i == nil || i.Type != discordgo.InteractionApplicationCommand || i.GuildID == "" {
		return handlers.Command{}, false
	}
	data, ok := i.Data.(discordgo.ApplicationCommandInteractionData)
	if !ok || data.Name != commandName || len(data.Options) == 0 {
		return handlers.Command{}, false
	}

	var invoker *discordgo.User
	switch {
	case i.Member != nil && i.Member.User != nil:
		invoker = i.Member.User
	case i.User != nil:
		invoker = i.User
	default:
		return handlers.Command{}, false
	}

	sub := data.Options[0]
	cmd := handlers.Command{Subcommand: sub.Name, Invoker: identityOf(invoker)}
	for _, opt := range sub.Options {
		switch opt.Name {
		case "user":
			id, _ := opt.Value.(string)
			if id == "" {
				continue
			}
			target := types.Identity{ID: id}
			if data.Resolved != nil {
				if u, ok := data.Resolved.Users[id]; ok && u != nil {
					target = identityOf(u)
				}
			}
			cmd.Target = &target
		case "url":
			cmd.URL, _ = opt.Value.(string)
		}
	}
	return cmd, true
}
