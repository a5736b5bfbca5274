package server

import (
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strconv"

	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"

	"github.com/junsooki/AirRover/internal/drive"
)

// maxOfferSize bounds the SDP offer body.
const maxOfferSize = 64 * 1024

// snapshot returns the latest frame, or an empty body before the first one.
func (s *HTTPServer) snapshot(w http.ResponseWriter, r *http.Request) {
	frame, ok := s.rover.Frame()
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(frame.Data)))
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(frame.Data)
}

// setDrive applies /set/{speed}/{steering}. Unparseable values stop the
// rover instead of failing the request.
func (s *HTTPServer) setDrive(w http.ResponseWriter, r *http.Request) {
	cmd, ok := drive.ParsePath(r.URL.Path)
	if !ok {
		s.logger.Debug("malformed drive request, stopping", zap.String("path", r.URL.Path))
	}
	status := s.rover.Drive(cmd, "http")
	s.renderPage(w, s.pages.status, status.Fields())
}

func (s *HTTPServer) photo(w http.ResponseWriter, r *http.Request) {
	result := s.rover.Photo()
	s.renderPage(w, s.pages.message, result.Message)
}

func (s *HTTPServer) status(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("format") == "json" {
		s.writeJSON(w, s.rover.Status())
		return
	}
	s.renderPage(w, s.pages.status, s.rover.Status().Fields())
}

func (s *HTTPServer) healthCheck(w http.ResponseWriter, r *http.Request) {
	_, hasFrame := s.rover.Frame()
	resp := struct {
		Watchdog string `json:"watchdog"`
		HasFrame bool   `json:"has_frame"`
	}{
		Watchdog: s.health.State().String(),
		HasFrame: hasFrame,
	}
	s.writeJSON(w, resp)
}

func (s *HTTPServer) index(w http.ResponseWriter, r *http.Request) {
	s.renderPage(w, s.pages.index, s.pages.indexData)
}

func (s *HTTPServer) stream(w http.ResponseWriter, r *http.Request) {
	s.renderPage(w, s.pages.stream, s.pages.streamData)
}

// echoPath answers unknown paths with a diagnostic.
func (s *HTTPServer) echoPath(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, "Path : \"%s\"", template.HTMLEscapeString(r.URL.RequestURI()))
}

func (s *HTTPServer) webrtcOffer(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxOfferSize))
	if err != nil {
		http.Error(w, "read offer", http.StatusBadRequest)
		return
	}
	var offer webrtc.SessionDescription
	if err := json.Unmarshal(body, &offer); err != nil {
		http.Error(w, "invalid offer", http.StatusBadRequest)
		return
	}

	answer, err := s.viewers.HandleOffer(r.Context(), offer)
	if err != nil {
		s.logger.Warn("webrtc offer failed", zap.Error(err))
		http.Error(w, "offer rejected", http.StatusBadRequest)
		return
	}
	s.writeJSON(w, answer)
}

func (s *HTTPServer) renderPage(w http.ResponseWriter, t *template.Template, data any) {
	if err := render(w, t, data); err != nil {
		s.logger.Error("Failed to render page", zap.String("template", t.Name()), zap.Error(err))
	}
}

func (s *HTTPServer) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}
