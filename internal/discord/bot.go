// Package discord provides the Discord bot layer for Lexivox. It owns the
// discordgo.Session lifecycle, routes message-component interactions and
// prefix commands to registered handlers, and bundles the small respond
// helpers the rest of the application uses.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"
)

// Config holds Discord bot configuration.
type Config struct {
	// Token is the Discord bot token without the "Bot " prefix.
	Token string

	// GuildID restricts event handling to one guild when set.
	GuildID string

	// CommandPrefix is the prefix for text commands such as "!status".
	CommandPrefix string
}

// Bot owns the Discord gateway connection and routes events to the Router.
type Bot struct {
	session   *discordgo.Session
	router    *Router
	closeOnce sync.Once
}

// New creates a Bot and wires the gateway event handlers. The connection is
// not opened until [Bot.Run]; handlers can be registered on [Bot.Router]
// until then.
func New(cfg Config) (*Bot, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("discord: create session: %w", err)
	}

	// MessageContent is required to see attachment uploads and room text.
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsMessageContent

	b := &Bot{
		session: session,
		router:  NewRouter(cfg.CommandPrefix),
	}

	session.AddHandler(func(s *discordgo.Session, i *discordgo.InteractionCreate) {
		if cfg.GuildID != "" && i.GuildID != cfg.GuildID {
			return
		}
		b.router.HandleInteraction(s, i)
	})
	session.AddHandler(func(s *discordgo.Session, m *discordgo.MessageCreate) {
		if cfg.GuildID != "" && m.GuildID != cfg.GuildID {
			return
		}
		b.router.HandleMessage(s, m)
	})

	return b, nil
}

// Session returns the underlying discordgo session. Used by subsystems that
// need direct Discord API access (voice joins, message deletion).
func (b *Bot) Session() *discordgo.Session {
	return b.session
}

// Router returns the event router for registering handlers.
func (b *Bot) Router() *Router {
	return b.router
}

// Run opens the gateway connection and blocks until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("discord: open session: %w", err)
	}
	slog.Info("discord gateway connected", "user", b.session.State.User.Username)

	<-ctx.Done()
	return ctx.Err()
}

// Close disconnects from Discord.
func (b *Bot) Close() error {
	var closeErr error
	b.closeOnce.Do(func() {
		if err := b.session.Close(); err != nil {
			closeErr = fmt.Errorf("discord: close session: %w", err)
		}
		slog.Info("discord bot closed")
	})
	return closeErr
}
