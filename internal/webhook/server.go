// Package webhook exposes the thin HTTP surface over the pipeline.
package webhook

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/user/kindred/internal/orchestrator"
	"github.com/user/kindred/internal/rollup"
	"github.com/user/kindred/internal/types"
)

// ChatHandler runs the message pipeline for one user message.
type ChatHandler func(ctx context.Context, userID types.UserID, message string) (*orchestrator.Reply, error)

// TaskHandler runs the daily rollup for one user.
type TaskHandler func(ctx context.Context, userID types.UserID) (*rollup.Result, error)

// Server is a lightweight HTTP handler for the chat and rollup endpoints.
type Server struct {
	chat ChatHandler
	task TaskHandler
	mux  *http.ServeMux
}

// NewServer creates a webhook Server over the given handlers.
func NewServer(chat ChatHandler, task TaskHandler) *Server {
	s := &Server{
		chat: chat,
		task: task,
		mux:  http.NewServeMux(),
	}
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /chat", s.handleChat)
	s.mux.HandleFunc("POST /dailytask", s.handleDailyTask)
	return s
}

// ServeHTTP delegates to the internal mux, implementing http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// chatRequest is the JSON body for POST /chat.
type chatRequest struct {
	Email   string `json:"email"`
	Message string `json:"message"`
}

type chatResponse struct {
	Reply     string    `json:"reply"`
	Timestamp time.Time `json:"timestamp"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.Email == "" || req.Message == "" {
		http.Error(w, `{"error":"email and message are required"}`, http.StatusBadRequest)
		return
	}
	if err := types.ValidateUserID(types.UserID(req.Email)); err != nil {
		http.Error(w, `{"error":"invalid email"}`, http.StatusBadRequest)
		return
	}

	reply, err := s.chat(r.Context(), types.UserID(req.Email), req.Message)
	if err != nil {
		slog.Error("chat handler failed", "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(chatResponse{Reply: reply.Text, Timestamp: reply.Timestamp})
}

// dailyTaskRequest is the JSON body for POST /dailytask.
type dailyTaskRequest struct {
	Email string `json:"email"`
}

type dailyTaskResponse struct {
	Greeting     string `json:"greeting"`
	Notification string `json:"notification"`
}

func (s *Server) handleDailyTask(w http.ResponseWriter, r *http.Request) {
	var req dailyTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, `{"error":"invalid JSON"}`, http.StatusBadRequest)
		return
	}
	if req.Email == "" {
		http.Error(w, `{"error":"email is required"}`, http.StatusBadRequest)
		return
	}
	if err := types.ValidateUserID(types.UserID(req.Email)); err != nil {
		http.Error(w, `{"error":"invalid email"}`, http.StatusBadRequest)
		return
	}

	result, err := s.task(r.Context(), types.UserID(req.Email))
	if err != nil {
		slog.Error("daily task handler failed", "email", req.Email, "error", err)
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(dailyTaskResponse{
		Greeting:     result.Greeting,
		Notification: result.Notification,
	})
}
