// Package panel manages the language disambiguation panels posted under audio
// uploads.
//
// Each panel is keyed by the origin message id (the message carrying the
// audio), never by the panel message itself: the panel UI is deleted on every
// terminal transition while the transcript still has to land as a reply to
// the origin. A panel moves Created → AwaitingSelection → Selected | Expired,
// exactly one terminal transition per panel. Selections are serialized by a
// consume-once guard, so duplicate interaction events are no-ops.
package panel

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
)

// Interaction component id prefixes. The origin message id rides inside the
// custom id so a gateway reconnect cannot orphan a panel.
const (
	selectIDPrefix = "stt_lang"
	menuIDPrefix   = "stt_lang_menu"
)

// ErrPanelExists is returned by Store.Create when the origin message already
// has an active panel.
var ErrPanelExists = errors.New("panel: origin message already has an active panel")

// ErrPanelNotFound is returned when no active panel exists for an origin.
var ErrPanelNotFound = errors.New("panel: no active panel for origin message")

// State is the lifecycle state of a panel.
type State int

const (
	// StateCreated means the record exists but the UI message id is not yet
	// attached. No interaction is accepted.
	StateCreated State = iota

	// StateAwaitingSelection is the only state accepting interactions.
	StateAwaitingSelection

	// StateSelected is terminal: a language was chosen and consumed.
	StateSelected

	// StateExpired is terminal: the selection window closed unused.
	StateExpired
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateAwaitingSelection:
		return "awaiting_selection"
	case StateSelected:
		return "selected"
	case StateExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Panel is a snapshot of one disambiguation panel.
type Panel struct {
	// OriginID is the id of the message carrying the audio asset.
	OriginID string

	// ChannelID is the channel both messages live in.
	ChannelID string

	// PanelMessageID is the id of the posted panel UI message. Empty until
	// the panel is activated.
	PanelMessageID string

	// UserID is the uploader, used to scope quota and restrict interaction.
	UserID string

	// Candidates is the ordered language hint list, best guess first.
	Candidates []string

	// State is the lifecycle state at snapshot time.
	State State
}

// record is the mutable panel state owned by the store.
type record struct {
	panel Panel
	timer *time.Timer
}

// Store owns all active panels. Safe for concurrent use.
type Store struct {
	timeout  time.Duration
	onExpire func(Panel)

	mu     sync.Mutex
	panels map[string]*record
}

// StoreOption is a functional option for configuring a Store.
type StoreOption func(*Store)

// WithTimeout sets the selection window. Defaults to 60s.
func WithTimeout(d time.Duration) StoreOption {
	return func(s *Store) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// OnExpire registers a callback invoked (on the timer goroutine) after a
// panel transitions to Expired and is evicted. Used to delete the UI message.
func OnExpire(fn func(Panel)) StoreOption {
	return func(s *Store) { s.onExpire = fn }
}

// NewStore creates an empty panel store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		timeout: 60 * time.Second,
		panels:  make(map[string]*record),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Create registers a panel for the origin message in StateCreated. Returns
// ErrPanelExists if the origin already has an active panel.
func (s *Store) Create(originID, channelID, userID string, candidates []string) (Panel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.panels[originID]; ok {
		return Panel{}, fmt.Errorf("%w: %s", ErrPanelExists, originID)
	}
	p := Panel{
		OriginID:   originID,
		ChannelID:  channelID,
		UserID:     userID,
		Candidates: append([]string(nil), candidates...),
		State:      StateCreated,
	}
	s.panels[originID] = &record{panel: p}
	return p, nil
}

// Activate attaches the posted UI message id and opens the selection window.
// The expiry timer starts here, not at Create, so a slow panel post does not
// eat into the user's window.
func (s *Store) Activate(originID, panelMessageID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.panels[originID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrPanelNotFound, originID)
	}
	if rec.panel.State != StateCreated {
		return fmt.Errorf("panel: cannot activate panel in state %s", rec.panel.State)
	}
	rec.panel.PanelMessageID = panelMessageID
	rec.panel.State = StateAwaitingSelection
	rec.timer = time.AfterFunc(s.timeout, func() { s.expire(originID) })
	return nil
}

// Consume attempts the one-way AwaitingSelection → Selected transition.
// The first caller wins and receives the panel snapshot; every later call
// (double clicks, redelivered events, post-expiry interactions) reports ok
// false and has no effect.
func (s *Store) Consume(originID string) (Panel, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.panels[originID]
	if !ok || rec.panel.State != StateAwaitingSelection {
		return Panel{}, false
	}
	rec.panel.State = StateSelected
	if rec.timer != nil {
		rec.timer.Stop()
	}
	delete(s.panels, originID)
	return rec.panel, true
}

// Discard drops the panel for originID without a terminal transition and
// without firing the expiry callback. Used when the panel UI could not be
// posted, so no user ever saw a selection window.
func (s *Store) Discard(originID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.panels[originID]
	if !ok {
		return
	}
	if rec.timer != nil {
		rec.timer.Stop()
	}
	delete(s.panels, originID)
}

// Get returns a snapshot of the active panel for originID.
func (s *Store) Get(originID string) (Panel, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.panels[originID]
	if !ok {
		return Panel{}, false
	}
	return rec.panel, true
}

// Len returns the number of active panels.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.panels)
}

// Close stops all expiry timers and drops every panel without firing
// callbacks. Used during shutdown.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, rec := range s.panels {
		if rec.timer != nil {
			rec.timer.Stop()
		}
		delete(s.panels, id)
	}
}

// expire runs on the timer goroutine when a selection window closes.
func (s *Store) expire(originID string) {
	s.mu.Lock()
	rec, ok := s.panels[originID]
	if !ok || rec.panel.State != StateAwaitingSelection {
		s.mu.Unlock()
		return
	}
	rec.panel.State = StateExpired
	delete(s.panels, originID)
	p := rec.panel
	cb := s.onExpire
	s.mu.Unlock()

	if cb != nil {
		cb(p)
	}
}

// SelectID builds the component custom id for one language button.
func SelectID(originID, code string) string {
	return selectIDPrefix + ":" + originID + ":" + code
}

// MenuID builds the component custom id for the full language select menu.
func MenuID(originID string) string {
	return menuIDPrefix + ":" + originID
}

// ParseSelectID splits a button custom id into origin message id and language
// code. ok is false for ids that are not panel buttons.
func ParseSelectID(customID string) (originID, code string, ok bool) {
	rest, found := strings.CutPrefix(customID, selectIDPrefix+":")
	if !found || strings.HasPrefix(customID, menuIDPrefix+":") {
		return "", "", false
	}
	originID, code, found = strings.Cut(rest, ":")
	if !found || originID == "" || code == "" {
		return "", "", false
	}
	return originID, code, true
}

// ParseMenuID extracts the origin message id from a menu custom id.
func ParseMenuID(customID string) (originID string, ok bool) {
	originID, found := strings.CutPrefix(customID, menuIDPrefix+":")
	if !found || originID == "" {
		return "", false
	}
	return originID, true
}
