package api

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/chatwire/sh-msg-platform/internal/buildinfo"
	"github.com/chatwire/sh-msg-platform/internal/core/domain"
	"github.com/chatwire/sh-msg-platform/internal/core/services"
)

type createSessionRequest struct {
	ID       string           `json:"id"`
	Metadata map[string]any   `json:"metadata,omitempty"`
	Webhooks []domain.Webhook `json:"webhooks,omitempty"`
}

func (s *Server) createSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}
	result := s.registry.Create(ctx, req.ID, domain.SessionOptions{
		Metadata: req.Metadata,
		Webhooks: req.Webhooks,
	})
	status := http.StatusCreated
	if !result.Success {
		status = http.StatusConflict
		if result.Data == nil {
			status = http.StatusBadRequest
		}
	}
	writeJSON(ctx, w, status, result)
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	writeJSON(ctx, w, http.StatusOK, s.registry.GetAll(ctx))
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	info, ok := s.registry.Get(ctx, chi.URLParam(r, "id"))
	if !ok {
		writeError(ctx, w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(ctx, w, http.StatusOK, info)
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	result := s.registry.Delete(ctx, chi.URLParam(r, "id"))
	status := http.StatusOK
	if !result.Success {
		status = http.StatusNotFound
	}
	writeJSON(ctx, w, status, result)
}

type qrResponse struct {
	QR string `json:"qr"`
}

func (s *Server) getQR(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	code, err := s.registry.QR(ctx, chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, services.ErrSessionNotFound) {
			writeError(ctx, w, http.StatusNotFound, "session not found")
			return
		}
		writeError(ctx, w, http.StatusNotFound, "no pairing code available, retry shortly")
		return
	}
	writeJSON(ctx, w, http.StatusOK, qrResponse{QR: code})
}

type uploadMediaRequest struct {
	MessageID string `json:"messageId"`
	MimeType  string `json:"mimeType"`
	Data      string `json:"data"` // base64
}

func (s *Server) uploadMedia(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	handle, ok := s.registry.Handle(chi.URLParam(r, "id"))
	if !ok {
		writeError(ctx, w, http.StatusNotFound, "session not found")
		return
	}
	var req uploadMediaRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.MessageID == "" {
		writeError(ctx, w, http.StatusBadRequest, "messageId is required")
		return
	}
	data, err := base64.StdEncoding.DecodeString(req.Data)
	if err != nil {
		writeError(ctx, w, http.StatusBadRequest, "data is not valid base64")
		return
	}
	result := handle.Media().UploadMedia(ctx, req.MessageID, data, req.MimeType)
	status := http.StatusCreated
	if !result.Success {
		status = http.StatusBadGateway
	}
	writeJSON(ctx, w, status, result)
}

type mediaURLResponse struct {
	URL string `json:"url"`
}

func (s *Server) getMediaURL(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	handle, ok := s.registry.Handle(chi.URLParam(r, "id"))
	if !ok {
		writeError(ctx, w, http.StatusNotFound, "session not found")
		return
	}
	var ttl time.Duration
	if raw := r.URL.Query().Get("ttl"); raw != "" {
		seconds, err := strconv.Atoi(raw)
		if err != nil || seconds < 0 {
			writeError(ctx, w, http.StatusBadRequest, "ttl must be a non negative number of seconds")
			return
		}
		ttl = time.Duration(seconds) * time.Second
	}
	url, ok := handle.Media().MediaURL(ctx, chi.URLParam(r, "messageID"), r.URL.Query().Get("ext"), ttl)
	if !ok {
		writeError(ctx, w, http.StatusNotFound, "media object not available")
		return
	}
	writeJSON(ctx, w, http.StatusOK, mediaURLResponse{URL: url})
}

type statusResponse struct {
	Revision string          `json:"revision"`
	Backends map[string]bool `json:"backends"`
}

func (s *Server) getStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	writeJSON(ctx, w, http.StatusOK, statusResponse{
		Revision: buildinfo.Revision(),
		Backends: s.health.Status(ctx),
	})
}
