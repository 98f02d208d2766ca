package orchestrator

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/MrWong99/lexivox/internal/discord"
)

// Messenger is the slice of the Discord message API the orchestrator needs.
// Narrowed to an interface so flows can run against a recorder in tests.
type Messenger interface {
	// Reply posts content as a reply to the given message and returns the
	// new message id.
	Reply(channelID, messageID, content string) (string, error)

	// ReplyComponents is Reply with interactive components attached.
	ReplyComponents(channelID, messageID, content string, components []discordgo.MessageComponent) (string, error)

	// Delete removes a message. Best-effort.
	Delete(channelID, messageID string)

	// Ephemeral answers an interaction with a message only its author sees.
	Ephemeral(i *discordgo.InteractionCreate, content string)

	// Ack acknowledges a component interaction without changing the message.
	Ack(i *discordgo.InteractionCreate)
}

// sessionMessenger implements Messenger over a live discordgo session.
type sessionMessenger struct {
	session *discordgo.Session
}

// NewSessionMessenger wraps a discordgo session as a Messenger.
func NewSessionMessenger(s *discordgo.Session) Messenger {
	return &sessionMessenger{session: s}
}

func (m *sessionMessenger) Reply(channelID, messageID, content string) (string, error) {
	return discord.Reply(m.session, channelID, messageID, content)
}

func (m *sessionMessenger) ReplyComponents(channelID, messageID, content string, components []discordgo.MessageComponent) (string, error) {
	msg, err := m.session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content:    content,
		Components: components,
		Reference: &discordgo.MessageReference{
			ChannelID: channelID,
			MessageID: messageID,
		},
	})
	if err != nil {
		return "", fmt.Errorf("orchestrator: send panel message: %w", err)
	}
	return msg.ID, nil
}

func (m *sessionMessenger) Delete(channelID, messageID string) {
	discord.DeleteMessage(m.session, channelID, messageID)
}

func (m *sessionMessenger) Ephemeral(i *discordgo.InteractionCreate, content string) {
	discord.RespondEphemeral(m.session, i, content)
}

func (m *sessionMessenger) Ack(i *discordgo.InteractionCreate) {
	discord.AckComponent(m.session, i)
}

// maxFetchBytes caps attachment downloads. Discord's own upload ceiling is
// lower for every tier we run on.
const maxFetchBytes = 100 << 20

// Fetcher downloads an attachment by URL.
type Fetcher func(ctx context.Context, url string) ([]byte, error)

// HTTPFetcher returns the default attachment fetcher.
func HTTPFetcher() Fetcher {
	client := &http.Client{Timeout: 2 * time.Minute}
	return func(ctx context.Context, url string) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, fmt.Errorf("orchestrator: build fetch request: %w", err)
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("orchestrator: fetch attachment: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("orchestrator: fetch attachment: status %d", resp.StatusCode)
		}
		data, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
		if err != nil {
			return nil, fmt.Errorf("orchestrator: read attachment: %w", err)
		}
		return data, nil
	}
}
