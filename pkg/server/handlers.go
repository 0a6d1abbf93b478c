package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/thefalc/podcast-research-agent/pkg/worker"
)

const maxBodyBytes = 1 << 20

// bundleEvent is either a document-store change event carrying the created
// bundle under fullDocument, or a flat {bundleId, urls} request.
type bundleEvent struct {
	FullDocument *struct {
		ID   json.RawMessage `json:"_id"`
		URLs []string        `json:"urls"`
	} `json:"fullDocument"`
	BundleID string   `json:"bundleId"`
	URLs     []string `json:"urls"`
}

func (e bundleEvent) resolve() (string, []string, error) {
	if e.FullDocument != nil {
		id, err := parseObjectID(e.FullDocument.ID)
		if err != nil {
			return "", nil, err
		}
		return id, e.FullDocument.URLs, nil
	}
	if e.BundleID == "" {
		return "", nil, errors.New("missing bundle id")
	}
	return e.BundleID, e.URLs, nil
}

// parseObjectID accepts {"$oid": "..."}, the same object encoded as a JSON
// string, or a bare id string.
func parseObjectID(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return "", errors.New("missing _id")
	}
	var oid struct {
		OID string `json:"$oid"`
	}
	if raw[0] == '{' {
		if err := json.Unmarshal(raw, &oid); err != nil || oid.OID == "" {
			return "", fmt.Errorf("invalid _id %s", raw)
		}
		return oid.OID, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", fmt.Errorf("invalid _id %s", raw)
	}
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "{") {
		return parseObjectID(json.RawMessage(s))
	}
	if s == "" {
		return "", errors.New("missing _id")
	}
	return s, nil
}

// decodeOneOrMany decodes a JSON object or array of objects into a slice.
func decodeOneOrMany[T any](r io.Reader) ([]T, error) {
	body, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, errors.New("empty body")
	}
	if body[0] == '[' {
		var many []T
		if err := json.Unmarshal(body, &many); err != nil {
			return nil, err
		}
		return many, nil
	}
	var one T
	if err := json.Unmarshal(body, &one); err != nil {
		return nil, err
	}
	return []T{one}, nil
}

func (s *Server) handleProcessURLs(w http.ResponseWriter, r *http.Request) {
	events, err := decodeOneOrMany[bundleEvent](http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	accepted := 0
	for _, ev := range events {
		bundleID, urls, err := ev.resolve()
		if err != nil {
			s.logger.Warn("skipping bundle event", zap.Error(err))
			continue
		}
		s.logger.Info("ingest requested", zap.String("bundle_id", bundleID), zap.Int("urls", len(urls)))
		if err := s.queue.SubmitIngest(bundleID, urls); err != nil {
			s.respondQueueError(w, err, accepted)
			return
		}
		accepted++
	}
	if accepted == 0 {
		s.logger.Info("no bundle events to ingest", zap.Int("events", len(events)))
	}
	s.respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

type briefRequest struct {
	BundleID string `json:"bundleId"`
}

func (s *Server) handleGenerateBrief(w http.ResponseWriter, r *http.Request) {
	reqs, err := decodeOneOrMany[briefRequest](http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	accepted := 0
	for _, req := range reqs {
		if req.BundleID == "" {
			continue
		}
		s.logger.Info("brief requested", zap.String("bundle_id", req.BundleID))
		if err := s.queue.SubmitBrief(req.BundleID); err != nil {
			s.respondQueueError(w, err, accepted)
			return
		}
		accepted++
	}
	if accepted == 0 {
		s.logger.Info("no bundle ids to brief", zap.Int("entries", len(reqs)))
	}
	s.respondJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.queue.Stats())
}

func (s *Server) respondQueueError(w http.ResponseWriter, err error, accepted int) {
	s.logger.Warn("job not accepted", zap.Error(err), zap.Int("accepted", accepted))
	if errors.Is(err, worker.ErrQueueFull) || errors.Is(err, worker.ErrQueueClosed) {
		w.Header().Set("Retry-After", "30")
		s.respondJSON(w, http.StatusServiceUnavailable, map[string]any{"error": err.Error(), "accepted": accepted})
		return
	}
	s.respondError(w, http.StatusInternalServerError, err.Error())
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
