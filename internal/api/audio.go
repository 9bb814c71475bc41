package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/reset-core/internal/audio"
)

// commandWaitTimeout bounds how long a wait=true request blocks on its ticket.
const commandWaitTimeout = 15 * time.Second

// commandRequest is the body of POST /audio/commands.
//
// Index is the device, stream or card index. Target is the destination
// device index for set_routing.
type commandRequest struct {
	Type     string         `json:"type"`
	Category audio.Category `json:"category"`
	Index    *uint32        `json:"index"`
	Level    *uint32        `json:"level,omitempty"`
	Muted    *bool          `json:"muted,omitempty"`
	Target   *uint32        `json:"target,omitempty"`
	Profile  string         `json:"profile,omitempty"`
	Wait     bool           `json:"wait"`
}

// commandResponse reports a dispatched command.
type commandResponse struct {
	ID      string `json:"id"`
	Kind    string `json:"kind"`
	Outcome string `json:"outcome,omitempty"`
	Error   string `json:"error,omitempty"`
}

// toCommand validates the request shape and builds the audio command.
// Semantic checks (category fits the kind, target exists) happen in the
// processor so they are journalled.
func (req commandRequest) toCommand() (audio.Command, error) {
	if req.Index == nil {
		return nil, errors.New("index is required")
	}
	idx := *req.Index

	switch req.Type {
	case audio.KindSetVolume:
		if req.Level == nil {
			return nil, errors.New("level is required for set_volume")
		}
		return audio.SetVolume{Category: req.Category, Index: idx, Level: *req.Level}, nil
	case audio.KindSetMute:
		if req.Muted == nil {
			return nil, errors.New("muted is required for set_mute")
		}
		return audio.SetMute{Category: req.Category, Index: idx, Muted: *req.Muted}, nil
	case audio.KindSetDefault:
		return audio.SetDefault{Category: req.Category, Index: idx}, nil
	case audio.KindSetRouting:
		if req.Target == nil {
			return nil, errors.New("target is required for set_routing")
		}
		return audio.SetRouting{Category: req.Category, StreamIndex: idx, TargetIndex: *req.Target}, nil
	case audio.KindSetCardProfile:
		return audio.SetCardProfile{CardIndex: idx, Profile: req.Profile}, nil
	case "":
		return nil, errors.New("type is required")
	default:
		return nil, fmt.Errorf("unknown command type %q", req.Type)
	}
}

// handleGetSnapshot returns the latest registry snapshot.
func (s *Server) handleGetSnapshot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.audio.Snapshot())
}

// handleDispatchCommand queues a command.
//
// Without wait the response is 202 with the command id. With wait the
// handler blocks until the daemon answers:
//   - 200: confirmed
//   - 400: rejected by validation
//   - 409: the target is not in the registry
//   - 502: the daemon call failed and the change was undone
//   - 504: no answer within the wait timeout
func (s *Server) handleDispatchCommand(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	cmd, err := req.toCommand()
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}

	ticket, err := s.audio.Dispatch(r.Context(), cmd)
	if err != nil {
		s.dispatchError(w, err)
		return
	}

	s.logger.Debug("audio command dispatched",
		"id", ticket.ID,
		"kind", cmd.Kind(),
		"subject", subjectFrom(r.Context()),
		"request_id", r.Context().Value(ctxKeyRequestID),
	)

	resp := commandResponse{ID: ticket.ID, Kind: cmd.Kind()}
	if !req.Wait {
		writeJSON(w, http.StatusAccepted, resp)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), commandWaitTimeout)
	defer cancel()
	s.writeTicketResult(ctx, w, ticket, resp)
}

// writeTicketResult waits for ticket and maps its outcome to a status.
func (s *Server) writeTicketResult(ctx context.Context, w http.ResponseWriter, ticket *audio.Ticket, resp commandResponse) {
	err := ticket.Wait(ctx)
	select {
	case <-ticket.Done():
	default:
		resp.Error = err.Error()
		writeJSON(w, http.StatusGatewayTimeout, resp)
		return
	}

	resp.Outcome = string(ticket.Outcome())
	if err = ticket.Err(); err != nil {
		resp.Error = err.Error()
	}
	switch ticket.Outcome() {
	case audio.OutcomeConfirmed:
		writeJSON(w, http.StatusOK, resp)
	case audio.OutcomeStale:
		writeJSON(w, http.StatusConflict, resp)
	case audio.OutcomeRejected:
		writeJSON(w, http.StatusBadRequest, resp)
	case audio.OutcomeRolledBack, audio.OutcomeFailed:
		writeJSON(w, http.StatusBadGateway, resp)
	default:
		// Released by shutdown before the command ran.
		writeJSON(w, http.StatusServiceUnavailable, resp)
	}
}

func (s *Server) dispatchError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, audio.ErrInvalidCommand):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	case errors.Is(err, audio.ErrProcessorStopped):
		writeUnavailable(w, "audio processor stopped")
	default:
		s.logger.Warn("dispatch failed", "error", err)
		writeUnavailable(w, "command not queued")
	}
}

// handleResync queues a full listing. ?wait=true blocks until it completes.
func (s *Server) handleResync(w http.ResponseWriter, r *http.Request) {
	ticket, err := s.audio.Resync(r.Context())
	if err != nil {
		s.dispatchError(w, err)
		return
	}

	if r.URL.Query().Get("wait") != "true" {
		writeJSON(w, http.StatusAccepted, map[string]any{"id": ticket.ID})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), commandWaitTimeout)
	defer cancel()
	if err := ticket.Wait(ctx); err != nil {
		writeError(w, http.StatusBadGateway, ErrCodeBackend, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.audio.Snapshot())
}

// domainRequest is the body of PUT /domain.
type domainRequest struct {
	Domain string `json:"domain"`
}

// handleSetDomain switches the visible domain. Activating audio starts
// watching daemon notifications; anything else stops it.
func (s *Server) handleSetDomain(w http.ResponseWriter, r *http.Request) {
	var req domainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	d, err := audio.ParseDomain(req.Domain)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}

	if err := s.domains.Activate(d); err != nil {
		s.dispatchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"domain": s.domains.Current()})
}
