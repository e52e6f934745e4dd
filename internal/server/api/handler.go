package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog/hlog"

	"reelsaver/server/internal/apperr"
	"reelsaver/server/internal/ingest"
	"reelsaver/server/internal/models"
	"reelsaver/server/internal/server/pagination"
)

// LivenessMessage is served on the root path.
const LivenessMessage = "Reel Saver running"

const maxBodyBytes = 1 << 20

// Ingester adds reels to the library.
type Ingester interface {
	Ingest(ctx context.Context, req ingest.Request) (*ingest.Result, error)
}

// Library serves listing, deletion and aggregates.
type Library interface {
	List(ctx context.Context, opts models.ListOptions) ([]models.Reel, error)
	Delete(ctx context.Context, id int64) error
	Stats(ctx context.Context) (*models.Stats, error)
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// StatusResponse acknowledges login and delete requests.
type StatusResponse struct {
	Status string `json:"status"`
}

// AddReelResponse is returned for created and already known reels.
type AddReelResponse struct {
	Status   string       `json:"status"`
	Message  string       `json:"message,omitempty"`
	Filename string       `json:"filename,omitempty"`
	Data     *models.Reel `json:"data,omitempty"`
}

type loginRequest struct {
	Password string `json:"password"`
}

type deleteRequest struct {
	ID json.Number `json:"id"`
}

// ReelHandler holds dependencies for the reel endpoints.
type ReelHandler struct {
	password string
	ingester Ingester
	library  Library
}

// NewReelHandler creates a new handler instance.
func NewReelHandler(password string, ingester Ingester, library Library) *ReelHandler {
	return &ReelHandler{
		password: password,
		ingester: ingester,
		library:  library,
	}
}

// Root answers liveness probes.
func (h *ReelHandler) Root(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, LivenessMessage)
}

// Login checks the shared team password.
func (h *ReelHandler) Login(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)

	var req loginRequest
	if err := decodeBody(w, r, &req); err != nil {
		log.Warn().Err(err).Msg("Invalid login body")
		WriteError(w, r, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	if !PasswordMatches(h.password, req.Password) {
		log.Warn().Msg("Login rejected")
		WriteError(w, r, http.StatusUnauthorized, "Wrong Password")
		return
	}
	writeJSON(w, r, http.StatusOK, StatusResponse{Status: "success"})
}

// AddReel runs the ingest pipeline for the submitted URL.
func (h *ReelHandler) AddReel(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)

	var req ingest.Request
	if err := decodeBody(w, r, &req); err != nil {
		log.Warn().Err(err).Msg("Invalid add_reel body")
		WriteError(w, r, http.StatusBadRequest, "No URL provided")
		return
	}

	res, err := h.ingester.Ingest(r.Context(), req)
	if err != nil {
		writeAppError(w, r, err)
		return
	}

	resp := AddReelResponse{Status: string(res.Outcome)}
	switch res.Outcome {
	case ingest.OutcomeExists:
		resp.Message = res.Message
	default:
		resp.Filename = res.Filename
		resp.Data = res.Reel
	}
	writeJSON(w, r, http.StatusOK, resp)
}

// Library lists reels with optional search, language, sort and window.
func (h *ReelHandler) Library(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	query := r.URL.Query()

	window, err := pagination.ParseWindow(query)
	if err != nil {
		log.Warn().Err(err).Str("query", r.URL.RawQuery).Msg("Invalid library window")
		WriteError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	reels, err := h.library.List(r.Context(), models.ListOptions{
		Search:   query.Get("search"),
		Language: query.Get("language"),
		Sort:     models.ParseSort(query.Get("sort")),
		Limit:    window.Limit,
		Offset:   window.Offset,
	})
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	if reels == nil {
		reels = []models.Reel{}
	}
	writeJSON(w, r, http.StatusOK, reels)
}

// DeleteReel removes a reel and its stored media.
func (h *ReelHandler) DeleteReel(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)

	var req deleteRequest
	if err := decodeBody(w, r, &req); err != nil {
		log.Warn().Err(err).Msg("Invalid delete_reel body")
		WriteError(w, r, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	id, err := parseID(req.ID)
	if err != nil {
		log.Warn().Str("id", req.ID.String()).Msg("Invalid reel id")
		WriteError(w, r, http.StatusBadRequest, "A positive reel id is required")
		return
	}

	if err := h.library.Delete(r.Context(), id); err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, StatusResponse{Status: "deleted"})
}

// Stats returns the library aggregates.
func (h *ReelHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.library.Stats(r.Context())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, stats)
}

// PasswordMatches compares in constant time. An empty expected password
// never matches.
func PasswordMatches(expected, given string) bool {
	if expected == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(given)) == 1
}

// parseID accepts the id as a JSON number or a numeric string.
func parseID(n json.Number) (int64, error) {
	s := strings.Trim(strings.TrimSpace(n.String()), `"`)
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	if id <= 0 {
		return 0, errors.New("id must be positive")
	}
	return id, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty request body")
		}
		return err
	}
	return nil
}

// writeAppError logs the full cause and answers with the client-safe message.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	kind := apperr.KindOf(err)
	status := apperr.HTTPStatus(kind)

	log := hlog.FromRequest(r)
	event := log.Warn()
	if status >= http.StatusInternalServerError {
		event = log.Error()
	}
	event.Err(err).Str("kind", kind.String()).Int("status", status).Msg("Request failed")

	WriteError(w, r, status, apperr.Message(err))
}

// WriteError answers with an ErrorResponse.
func WriteError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	writeJSON(w, r, status, ErrorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, r *http.Request, status int, v any) {
	log := hlog.FromRequest(r)

	jsonBytes, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("Error marshaling JSON response")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(jsonBytes); err != nil {
		log.Error().Err(err).Msg("Error writing JSON response body to client")
	}
}
