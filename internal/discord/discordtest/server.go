// Package discordtest provides a fake Discord guild served over httptest.
package discordtest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/bissquit/toplane-coaching/internal/discord"
	"github.com/go-chi/chi/v5"
)

// GuildID is the guild served by the fake.
const GuildID = "1000"

// PostedMessage is a message captured by the fake.
type PostedMessage struct {
	ChannelID string
	Message   discord.Message
}

// Server is an in-memory guild with channel and message endpoints.
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	nextID   int
	channels []discord.Channel
	creates  []discord.CreateChannelRequest
	messages []PostedMessage
	failures map[string]int
}

// NewServer starts a fake guild with a text channel named "notifications".
// It is closed when the test ends.
func NewServer(t *testing.T) *Server {
	t.Helper()

	s := &Server{nextID: 100, failures: make(map[string]int)}
	s.channels = append(s.channels, discord.Channel{ID: "50", Name: "notifications", Type: discord.ChannelTypeText})

	r := chi.NewRouter()
	r.Get("/guilds/{guildID}/channels", s.listChannels)
	r.Post("/guilds/{guildID}/channels", s.createChannel)
	r.Post("/channels/{channelID}/messages", s.createMessage)
	r.Get("/users/@me", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, discord.User{ID: "1", Username: "coach-bot"})
	})

	s.Server = httptest.NewServer(r)
	t.Cleanup(s.Close)
	return s
}

// Client returns a discord client pointed at the fake.
func (s *Server) Client() *discord.Client {
	return discord.NewClient(discord.Config{
		BotToken: "test-token",
		GuildID:  GuildID,
		APIURL:   s.URL,
	})
}

// FailNext makes the next n calls of operation answer with status.
// Operations are "list", "create" and "message".
func (s *Server) FailNext(operation string, n, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[operation] = n
	s.failures[operation+"_status"] = status
}

// AddChannel seeds an existing channel.
func (s *Server) AddChannel(ch discord.Channel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels = append(s.channels, ch)
}

// Channels returns the guild channels.
func (s *Server) Channels() []discord.Channel {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]discord.Channel(nil), s.channels...)
}

// Creates returns every channel creation request received.
func (s *Server) Creates() []discord.CreateChannelRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]discord.CreateChannelRequest(nil), s.creates...)
}

// Messages returns posted messages, optionally filtered by channel.
func (s *Server) Messages(channelID string) []PostedMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []PostedMessage
	for _, m := range s.messages {
		if channelID == "" || m.ChannelID == channelID {
			out = append(out, m)
		}
	}
	return out
}

func (s *Server) fail(w http.ResponseWriter, operation string) bool {
	s.mu.Lock()
	n := s.failures[operation]
	status := s.failures[operation+"_status"]
	if n > 0 {
		s.failures[operation] = n - 1
	}
	s.mu.Unlock()

	if n <= 0 {
		return false
	}
	writeJSON(w, status, map[string]interface{}{"code": 0, "message": http.StatusText(status)})
	return true
}

func (s *Server) listChannels(w http.ResponseWriter, r *http.Request) {
	if s.fail(w, "list") {
		return
	}
	if chi.URLParam(r, "guildID") != GuildID {
		writeJSON(w, http.StatusNotFound, map[string]interface{}{"code": 10004, "message": "Unknown Guild"})
		return
	}
	writeJSON(w, http.StatusOK, s.Channels())
}

func (s *Server) createChannel(w http.ResponseWriter, r *http.Request) {
	if s.fail(w, "create") {
		return
	}

	var req discord.CreateChannelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"code": 50035, "message": "Invalid Form Body"})
		return
	}

	s.mu.Lock()
	s.nextID++
	ch := discord.Channel{ID: strconv.Itoa(s.nextID), Name: req.Name, Type: req.Type, ParentID: req.ParentID}
	s.channels = append(s.channels, ch)
	s.creates = append(s.creates, req)
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, ch)
}

func (s *Server) createMessage(w http.ResponseWriter, r *http.Request) {
	if s.fail(w, "message") {
		return
	}

	var msg discord.Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"code": 50035, "message": "Invalid Form Body"})
		return
	}

	channelID := chi.URLParam(r, "channelID")
	s.mu.Lock()
	s.messages = append(s.messages, PostedMessage{ChannelID: channelID, Message: msg})
	s.nextID++
	id := strconv.Itoa(s.nextID)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, discord.SentMessage{ID: id, ChannelID: channelID})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
