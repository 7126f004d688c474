// Package discord connects the transform command handler to a Discord gateway session.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/mahirjain10/photomosaic-bot/internal/handlers"
)

// CommandHandler runs one transform command to completion.
type CommandHandler interface {
	Handle(ctx context.Context, cmd handlers.Command, responder handlers.Responder)
}

type Bot struct {
	session *discordgo.Session
	appID   string
	handler CommandHandler
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	// mu orders jobs.Add against the Wait in Close.
	mu     sync.Mutex
	closed bool
	jobs   sync.WaitGroup
}

// NewBot prepares a session for token. Nothing is sent to Discord before Open.
func NewBot(token string, appID string, handler CommandHandler, logger *slog.Logger) (*Bot, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentsGuilds
	return newBot(session, appID, handler, logger), nil
}

func newBot(session *discordgo.Session, appID string, handler CommandHandler, logger *slog.Logger) *Bot {
	ctx, cancel := context.WithCancel(context.Background())
	b := &Bot{
		session: session,
		appID:   appID,
		handler: handler,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
	session.AddHandler(b.onReady)
	session.AddHandler(b.onInteraction)
	return b
}

// Open connects to the gateway. Commands are registered once the session is ready.
func (b *Bot) Open() error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord session: %w", err)
	}
	return nil
}

// Close disconnects, cancels running jobs and waits for them to return.
func (b *Bot) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()

	err := b.session.Close()
	b.cancel()
	b.jobs.Wait()
	return err
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	if r.User != nil {
		b.logger.Info("connected to discord", "user", r.User.Username, "guilds", len(r.Guilds))
	}
	for _, g := range r.Guilds {
		if err := b.registerCommands(b.ctx, g.ID); err != nil {
			b.logger.Error("failed to register commands", "guild_id", g.ID, "error", err)
		}
	}
}

// registerCommands replaces every command of guildID with the transform command.
func (b *Bot) registerCommands(ctx context.Context, guildID string) error {
	existing, err := b.session.ApplicationCommands(b.appID, guildID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to list commands: %w", err)
	}
	for _, c := range existing {
		b.logger.Info("unregistering command", "guild_id", guildID, "command", c.Name)
		if err := b.session.ApplicationCommandDelete(b.appID, guildID, c.ID, discordgo.WithContext(ctx)); err != nil {
			return fmt.Errorf("failed to delete command %s: %w", c.Name, err)
		}
	}
	b.logger.Info("registering command", "guild_id", guildID, "command", commandName)
	if _, err := b.session.ApplicationCommandCreate(b.appID, guildID, transformCommand(), discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("failed to create command %s: %w", commandName, err)
	}
	return nil
}

func (b *Bot) onInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	cmd, ok := commandFromInteraction(i.Interaction)
	if !ok {
		return
	}
	responder := &interactionResponder{session: s, interaction: i.Interaction}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		b.logger.Warn("dropping command received during shutdown", "subcommand", cmd.Subcommand, "user_id", cmd.Invoker.ID)
		return
	}
	b.jobs.Add(1)
	b.mu.Unlock()

	go func() {
		defer b.jobs.Done()
		b.handler.Handle(b.ctx, cmd, responder)
	}()
}
