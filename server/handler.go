package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/btfinch/email-game-public/auth"
	"github.com/btfinch/email-game-public/game"
	"github.com/btfinch/email-game-public/mailbox"
)

// maxAgentIDLen bounds recipient ids; anything longer is rejected outright.
const maxAgentIDLen = 50

type contextKey string

const agentIDKey contextKey = "agentID"

// RegisterRoutes wires the full agent-facing API onto the router.
func (s *Server) RegisterRoutes(r chi.Router) {
	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Post("/clear_state", s.handleClearState)

	r.Post("/register_agent", s.handleRegisterAgent)

	r.Get("/session_results", s.handleSessionResults)
	r.Get("/session_results/{filename}", s.handleSessionResult)

	r.Get("/get_messages/{agent_id}", s.handleGetMessages)
	r.Get("/get_all_messages", s.handleGetAllMessages)
	r.Get("/get_sent/{agent_id}", s.handleGetSent)
	r.Get("/get_conversation/{agent_id}", s.handleGetConversation)
	r.Put("/mark_read/{message_id}", s.handleMarkRead)
	r.Get("/message_status/{message_id}", s.handleMessageStatus)
	r.Get("/queue_status", s.handleQueueStatus)

	r.Get("/ws/{agent_id}", s.handleWebsocket)

	// Authenticated routes: sender identity always comes from the token,
	// never from the payload.
	r.Group(func(r chi.Router) {
		r.Use(s.requireToken)
		r.Post("/send_message", s.handleSendMessage)
		r.Post("/send_message_queued", s.handleSendMessageQueued)
		r.Post("/send_batch", s.handleSendBatch)
		r.Post("/join_queue", s.handleJoinQueue)
		r.Post("/leave_queue", s.handleLeaveQueue)
	})
}

// requireToken authenticates the request and stashes the token subject in
// the context. 401 for missing or invalid tokens, 403 for expired ones.
func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		agentID, err := s.issuer.Authenticate(r)
		if err != nil {
			status := http.StatusUnauthorized
			if errors.Is(err, auth.ErrTokenExpired) {
				status = http.StatusForbidden
			}
			http.Error(w, err.Error(), status)
			return
		}
		ctx := context.WithValue(r.Context(), agentIDKey, agentID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func tokenAgent(r *http.Request) string {
	agentID, _ := r.Context().Value(agentIDKey).(string)
	return agentID
}

// validRecipient accepts the moderator plus well-formed agent ids:
// alphanumeric and underscore, at most maxAgentIDLen bytes. Registration is
// deliberately not required so agents can message peers that register later.
func validRecipient(to string) bool {
	if to == game.Moderator {
		return true
	}
	if to == "" || len(to) > maxAgentIDLen {
		return false
	}
	for _, r := range to {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '_':
		default:
			return false
		}
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

type registerAgentRequest struct {
	AgentID      string `json:"agent_id"`
	RSAPublicKey string `json:"rsa_public_key"`
}

func (s *Server) handleRegisterAgent(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var req registerAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Failed to parse request: %v", err), http.StatusBadRequest)
		return
	}
	if req.AgentID == "" || !validRecipient(req.AgentID) || req.AgentID == game.Moderator {
		http.Error(w, fmt.Sprintf("Invalid agent id: %q", req.AgentID), http.StatusBadRequest)
		return
	}

	if err := s.registry.Register(req.AgentID, req.RSAPublicKey); err != nil {
		if errors.Is(err, ErrAlreadyRegistered) {
			http.Error(w, "Agent ID already registered", http.StatusConflict)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	token, err := s.issuer.Issue(req.AgentID)
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to issue token: %v", err), http.StatusInternalServerError)
		return
	}

	s.metrics.AgentsRegistered.Inc()
	s.log.Info("agent registered", "agent", req.AgentID)

	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"token":   token,
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"service":           "Inbox Arena Email Server",
		"status":            "running",
		"registered_agents": s.registry.Count(),
		"waiting_queue":     s.queue.Len(),
		"game_in_progress":  s.queue.InProgress(),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "healthy",
		"message_count": s.store.Count(),
	})
}

// handleClearState wipes messages, registrations, and the queue. Exists for
// test harnesses; a running game keeps its in-memory state.
func (s *Server) handleClearState(w http.ResponseWriter, r *http.Request) {
	s.store.Clear()
	s.registry.Clear()
	s.queue.Clear()
	s.log.Info("server state cleared")

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Server state cleared",
	})
}

type sendMessageRequest struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Failed to parse request: %v", err), http.StatusBadRequest)
		return
	}
	if !validRecipient(req.To) {
		http.Error(w, fmt.Sprintf("Invalid recipient: %s", req.To), http.StatusBadRequest)
		return
	}

	msg := s.store.Add(tokenAgent(r), req.To, req.Subject, req.Body)
	s.metrics.MessagesStored.Inc()

	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"message_id": msg.MessageID,
		"status":     "sent",
	})
}

// handleSendMessageQueued is the burst-friendly variant; storage is
// identical but the response reports the pre-delivery status.
func (s *Server) handleSendMessageQueued(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Failed to parse request: %v", err), http.StatusBadRequest)
		return
	}
	if !validRecipient(req.To) {
		http.Error(w, fmt.Sprintf("Invalid recipient: %s", req.To), http.StatusBadRequest)
		return
	}

	msg := s.store.Add(tokenAgent(r), req.To, req.Subject, req.Body)
	s.metrics.MessagesStored.Inc()

	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"message_id": msg.MessageID,
		"status":     "queued",
	})
}

type batchSendRequest struct {
	Messages []sendMessageRequest `json:"messages"`
}

func (s *Server) handleSendBatch(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var req batchSendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Failed to parse request: %v", err), http.StatusBadRequest)
		return
	}

	// All-or-nothing validation before anything is stored.
	for _, msg := range req.Messages {
		if !validRecipient(msg.To) {
			http.Error(w, fmt.Sprintf("Invalid recipient in batch: %s", msg.To), http.StatusBadRequest)
			return
		}
	}

	entries := make([]mailbox.BatchEntry, len(req.Messages))
	for i, msg := range req.Messages {
		entries[i] = mailbox.BatchEntry{To: msg.To, Subject: msg.Subject, Body: msg.Body}
	}

	results := s.store.AddBatch(tokenAgent(r), entries)
	s.metrics.MessagesStored.Add(float64(len(results)))

	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"messages_sent": len(results),
		"results":       results,
	})
}

func (s *Server) handleGetMessages(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agent_id")
	messages := s.store.Inbox(agentID)

	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"agent_id": agentID,
		"messages": messages,
		"count":    len(messages),
	})
}

func (s *Server) handleGetAllMessages(w http.ResponseWriter, r *http.Request) {
	messages := s.store.All()
	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"messages": messages,
		"count":    len(messages),
	})
}

func (s *Server) handleGetSent(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agent_id")
	messages := s.store.Outbox(agentID)

	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"agent_id": agentID,
		"messages": messages,
		"count":    len(messages),
	})
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agent_id")
	messages := s.store.Conversation(agentID)

	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"agent_id": agentID,
		"messages": messages,
		"count":    len(messages),
	})
}

func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	messageID := chi.URLParam(r, "message_id")
	if !s.store.MarkRead(messageID) {
		http.Error(w, "Message not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"message_id": messageID,
		"status":     "read",
	})
}

func (s *Server) handleMessageStatus(w http.ResponseWriter, r *http.Request) {
	messageID := chi.URLParam(r, "message_id")
	status := s.store.StatusOf(messageID)
	if status == "unknown" {
		http.Error(w, "Message not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"message_id": messageID,
		"status":     status,
	})
}

type joinQueueRequest struct {
	AgentID string `json:"agent_id"`
}

func (s *Server) handleJoinQueue(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var req joinQueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Failed to parse request: %v", err), http.StatusBadRequest)
		return
	}

	if tokenAgent(r) != req.AgentID {
		http.Error(w, "Token/agent mismatch", http.StatusForbidden)
		return
	}

	position, err := s.queue.Join(req.AgentID)
	if err != nil {
		http.Error(w, "Agent already queued", http.StatusConflict)
		return
	}
	s.metrics.QueueLength.Set(float64(s.queue.Len()))

	writeJSON(w, http.StatusOK, map[string]any{
		"success":  true,
		"position": position,
	})
}

func (s *Server) handleLeaveQueue(w http.ResponseWriter, r *http.Request) {
	removed := s.queue.Leave(tokenAgent(r))
	s.metrics.QueueLength.Set(float64(s.queue.Len()))

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"removed": removed,
	})
}

func (s *Server) handleQueueStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"queue_length":     s.queue.Len(),
		"agents_waiting":   s.queue.Waiting(),
		"connected_agents": s.connections.ConnectedAgents(),
		"game_in_progress": s.queue.InProgress(),
	})
}

func (s *Server) handleSessionResults(w http.ResponseWriter, r *http.Request) {
	files, err := s.results.List()
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to get session results: %v", err), http.StatusInternalServerError)
		return
	}
	if files == nil {
		files = []game.ResultFile{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"files":   files,
	})
}

func (s *Server) handleSessionResult(w http.ResponseWriter, r *http.Request) {
	filename := chi.URLParam(r, "filename")

	result, err := s.results.Load(filename)
	if err != nil {
		if errors.Is(err, game.ErrInvalidFilename) {
			http.Error(w, "Invalid filename", http.StatusBadRequest)
			return
		}
		http.Error(w, "Session result not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"data":    result,
	})
}
