package discord

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"
)

// InteractionHandler is the signature for message-component handlers.
type InteractionHandler func(s *discordgo.Session, i *discordgo.InteractionCreate)

// MessageHandler is the signature for plain message handlers.
type MessageHandler func(s *discordgo.Session, m *discordgo.MessageCreate)

// CommandHandler is the signature for prefix command handlers. args holds the
// whitespace-split words after the command name.
type CommandHandler func(s *discordgo.Session, m *discordgo.MessageCreate, args []string)

// Router dispatches gateway events to registered handlers. Components are
// matched by exact custom_id first, then by registered prefixes, so handlers
// for dynamic IDs like "stt_lang:<origin>:<code>" register the "stt_lang:"
// prefix once.
type Router struct {
	mu              sync.RWMutex
	prefix          string
	components      map[string]InteractionHandler
	componentPrefix map[string]InteractionHandler
	commands        map[string]CommandHandler
	messages        []MessageHandler
}

// NewRouter creates an empty router. commandPrefix is the leading marker for
// text commands ("!" gives "!status").
func NewRouter(commandPrefix string) *Router {
	return &Router{
		prefix:          commandPrefix,
		components:      make(map[string]InteractionHandler),
		componentPrefix: make(map[string]InteractionHandler),
		commands:        make(map[string]CommandHandler),
	}
}

// RegisterComponent registers a handler for an exact component custom_id.
func (r *Router) RegisterComponent(customID string, handler InteractionHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.components[customID] = handler
}

// RegisterComponentPrefix registers a handler matching any component whose
// custom_id starts with the given prefix.
func (r *Router) RegisterComponentPrefix(prefix string, handler InteractionHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.componentPrefix[prefix] = handler
}

// RegisterCommand registers a prefix command handler by name ("status" for
// "!status"). Names are matched case-insensitively.
func (r *Router) RegisterCommand(name string, handler CommandHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands[strings.ToLower(name)] = handler
}

// RegisterMessage registers a handler for messages that are not prefix
// commands (attachment uploads, auto-TTS room text). All registered message
// handlers see every such message.
func (r *Router) RegisterMessage(handler MessageHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, handler)
}

// HandleInteraction dispatches a component interaction to its handler.
func (r *Router) HandleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionMessageComponent {
		slog.Debug("discord: ignoring interaction type", "type", i.Type)
		return
	}
	customID := i.MessageComponentData().CustomID

	r.mu.RLock()
	handler, ok := r.components[customID]
	if !ok {
		for prefix, h := range r.componentPrefix {
			if strings.HasPrefix(customID, prefix) {
				handler = h
				ok = true
				break
			}
		}
	}
	r.mu.RUnlock()

	if !ok {
		slog.Warn("discord: unknown component", "custom_id", customID)
		RespondEphemeral(s, i, "This control is no longer active.")
		return
	}
	handler(s, i)
}

// HandleMessage dispatches a message create event. Messages from bots
// (including our own) are dropped; prefix commands go to their command
// handler, everything else fans out to the message handlers.
func (r *Router) HandleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot {
		return
	}

	if name, args, ok := r.parseCommand(m.Content); ok {
		r.mu.RLock()
		handler, found := r.commands[name]
		r.mu.RUnlock()
		if found {
			handler(s, m, args)
			return
		}
		slog.Debug("discord: unknown command", "name", name)
		return
	}

	r.mu.RLock()
	handlers := r.messages
	r.mu.RUnlock()
	for _, h := range handlers {
		h(s, m)
	}
}

// parseCommand splits "<prefix><name> <args...>" into name and args. Reports
// ok=false when content does not start with the prefix or names nothing.
func (r *Router) parseCommand(content string) (name string, args []string, ok bool) {
	if r.prefix == "" || !strings.HasPrefix(content, r.prefix) {
		return "", nil, false
	}
	fields := strings.Fields(strings.TrimPrefix(content, r.prefix))
	if len(fields) == 0 {
		return "", nil, false
	}
	return strings.ToLower(fields[0]), fields[1:], true
}
