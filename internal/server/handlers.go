package server

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/hushcut/hushcut/internal/compact"
	"github.com/hushcut/hushcut/internal/session"
	"github.com/hushcut/hushcut/pkg/audio"
	"github.com/hushcut/hushcut/pkg/timeline"
)

// lineRe matches one transcript line in the bracketed format emitted by the
// streaming controller, e.g. "[1.20s -> 3.45s]  hello there".
var lineRe = regexp.MustCompile(`^\s*\[(\d+(?:\.\d+)?)s\s*->\s*(\d+(?:\.\d+)?)s\]\s*(.*\S)\s*$`)

type apiError struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, apiError{Error: msg})
}

// sessionSummary is one row of the session listing. Artifact URLs are only
// present when the file actually exists on disk.
type sessionSummary struct {
	ID               int64   `json:"id"`
	Title            string  `json:"title,omitempty"`
	Status           string  `json:"status"`
	Device           string  `json:"device,omitempty"`
	Model            string  `json:"model,omitempty"`
	StartTime        string  `json:"start_time"`
	EndTime          *string `json:"end_time,omitempty"`
	OriginalAudioURL string  `json:"original_audio_url,omitempty"`
	SpeechAudioURL   string  `json:"speech_audio_url,omitempty"`
	SilenceMapURL    string  `json:"silence_map_url,omitempty"`
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.store.ListSessions(r.Context())
	if err != nil {
		s.log.Error("list sessions", "error", err)
		writeError(w, http.StatusInternalServerError, "list sessions")
		return
	}

	out := make([]sessionSummary, 0, len(sessions))
	for _, sess := range sessions {
		row := sessionSummary{
			ID:        sess.ID,
			Title:     sess.Title,
			Status:    sess.Status,
			Device:    sess.Device,
			Model:     sess.Model,
			StartTime: sess.StartTime.Format(time.RFC3339),
		}
		if sess.EndTime != nil {
			end := sess.EndTime.Format(time.RFC3339)
			row.EndTime = &end
		}
		if sess.FilePath != "" {
			speechPath, mapPath := compact.ArtifactPaths(sess.FilePath, "")
			row.OriginalAudioURL = s.fileURL(sess.FilePath)
			row.SpeechAudioURL = s.fileURL(speechPath)
			row.SilenceMapURL = s.fileURL(mapPath)
		}
		out = append(out, row)
	}
	writeJSON(w, http.StatusOK, out)
}

// manifest describes everything a player needs for one session: the audio
// artifacts, the original<->speech timeline, and where to fetch transcripts.
type manifest struct {
	SessionID     int64              `json:"session_id"`
	Title         string             `json:"title,omitempty"`
	DurationMs    int                `json:"duration_ms"`
	Audio         manifestAudio      `json:"audio"`
	SilenceMapURL string             `json:"silence_map_url,omitempty"`
	Transcript    manifestTranscript `json:"transcript"`
}

type manifestAudio struct {
	OriginalURL string             `json:"original_url"`
	SpeechURL   string             `json:"speech_url,omitempty"`
	Timeline    *timeline.Timeline `json:"timeline,omitempty"`
}

type manifestTranscript struct {
	Format string `json:"format"`
	URL    string `json:"url"`
	RawURL string `json:"raw_url"`
}

func (s *Server) sessionManifest(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.sessionFromPath(w, r)
	if !ok {
		return
	}
	if sess.FilePath == "" {
		writeError(w, http.StatusNotFound, "session has no recording")
		return
	}

	durationMs, err := audio.DurationMs(sess.FilePath)
	if err != nil {
		writeError(w, http.StatusNotFound, "recording not available")
		return
	}

	speechPath, mapPath := compact.ArtifactPaths(sess.FilePath, "")
	m := manifest{
		SessionID:  sess.ID,
		Title:      sess.Title,
		DurationMs: durationMs,
		Audio: manifestAudio{
			OriginalURL: s.fileURL(sess.FilePath),
			SpeechURL:   s.fileURL(speechPath),
		},
		SilenceMapURL: s.fileURL(mapPath),
		Transcript: manifestTranscript{
			Format: "bracketed_text",
			URL:    fmt.Sprintf("/api/sessions/%d/transcript", sess.ID),
			RawURL: fmt.Sprintf("/api/sessions/%d/transcript.txt", sess.ID),
		},
	}

	if m.SilenceMapURL != "" {
		mapping, err := timeline.Load(mapPath, durationMs)
		if err != nil {
			s.log.Warn("load silence map", "path", mapPath, "error", err)
		} else {
			tl := mapping.Timeline()
			m.Audio.Timeline = &tl
		}
	}
	writeJSON(w, http.StatusOK, m)
}

// transcriptLine is one parsed transcript line. Lines that do not carry the
// bracketed timestamp prefix keep null start/end so callers can still render
// them in order.
type transcriptLine struct {
	ID      int    `json:"id"`
	StartMs *int   `json:"start_ms"`
	EndMs   *int   `json:"end_ms"`
	Text    string `json:"text"`
}

type transcriptResponse struct {
	SessionID int64            `json:"session_id"`
	ModelSize string           `json:"model_size,omitempty"`
	Lines     []transcriptLine `json:"lines"`
}

func (s *Server) sessionTranscript(w http.ResponseWriter, r *http.Request) {
	sess, tr, ok := s.transcriptFromPath(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, transcriptResponse{
		SessionID: sess.ID,
		ModelSize: tr.ModelSize,
		Lines:     parseTranscript(tr.Text),
	})
}

func (s *Server) sessionTranscriptRaw(w http.ResponseWriter, r *http.Request) {
	_, tr, ok := s.transcriptFromPath(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, tr.Text)
}

type searchHit struct {
	Name      string `json:"name"`
	ModelSize string `json:"model_size"`
	Text      string `json:"text"`
	CreatedAt string `json:"created_at"`
}

func (s *Server) searchTranscriptions(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "missing query parameter q")
		return
	}

	matches, err := s.store.SearchTranscriptions(r.Context(), query)
	if err != nil {
		s.log.Error("search transcriptions", "query", query, "error", err)
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}

	hits := make([]searchHit, 0, len(matches))
	for _, m := range matches {
		hits = append(hits, searchHit{
			Name:      m.Name,
			ModelSize: m.ModelSize,
			Text:      m.Text,
			CreatedAt: m.CreatedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, hits)
}

// serveFile streams an artifact from disk. Only paths inside the configured
// roots are served; anything else gets 403 regardless of whether it exists.
func (s *Server) serveFile(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("path")
	if raw == "" {
		writeError(w, http.StatusBadRequest, "missing query parameter path")
		return
	}

	abs, err := filepath.Abs(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid path")
		return
	}
	if !s.allowed(abs) {
		writeError(w, http.StatusForbidden, "path outside served roots")
		return
	}
	http.ServeFile(w, r, abs)
}

// allowed reports whether abs sits inside one of the configured roots. Both
// sides are absolute and cleaned, so a plain prefix check on path boundaries
// is sufficient.
func (s *Server) allowed(abs string) bool {
	for _, root := range s.roots {
		if abs == root || strings.HasPrefix(abs, root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// fileURL returns the /files download URL for path, or "" when the file does
// not exist.
func (s *Server) fileURL(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return ""
	}
	if _, err := os.Stat(abs); err != nil {
		return ""
	}
	return "/files?path=" + url.QueryEscape(abs)
}

// sessionFromPath resolves the {id} path segment to a stored session, writing
// the error response itself on failure.
func (s *Server) sessionFromPath(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid session id")
		return nil, false
	}
	sess, err := s.store.GetSession(r.Context(), id)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
		} else {
			s.log.Error("get session", "id", id, "error", err)
			writeError(w, http.StatusInternalServerError, "get session")
		}
		return nil, false
	}
	return sess, true
}

// transcriptFromPath resolves the session and its latest transcription.
// Transcriptions are keyed by the recording path, so a session without a
// recording cannot have one.
func (s *Server) transcriptFromPath(w http.ResponseWriter, r *http.Request) (*session.Session, *session.Transcription, bool) {
	sess, ok := s.sessionFromPath(w, r)
	if !ok {
		return nil, nil, false
	}
	if sess.FilePath == "" {
		writeError(w, http.StatusNotFound, "session has no transcript")
		return nil, nil, false
	}
	tr, err := s.store.LatestTranscription(r.Context(), sess.FilePath)
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session has no transcript")
		} else {
			s.log.Error("load transcription", "id", sess.ID, "error", err)
			writeError(w, http.StatusInternalServerError, "load transcription")
		}
		return nil, nil, false
	}
	return sess, tr, true
}

// parseTranscript splits raw transcript text into lines, extracting start and
// end timestamps from the bracketed prefix where present. Blank lines are
// dropped; line IDs are assigned in order.
func parseTranscript(text string) []transcriptLine {
	lines := make([]transcriptLine, 0)
	for _, raw := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(raw)
		if trimmed == "" {
			continue
		}
		line := transcriptLine{ID: len(lines), Text: trimmed}
		if m := lineRe.FindStringSubmatch(raw); m != nil {
			start, err1 := strconv.ParseFloat(m[1], 64)
			end, err2 := strconv.ParseFloat(m[2], 64)
			if err1 == nil && err2 == nil {
				startMs := int(start * 1000)
				endMs := int(end * 1000)
				line.StartMs = &startMs
				line.EndMs = &endMs
				line.Text = m[3]
			}
		}
		lines = append(lines, line)
	}
	return lines
}
