package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ayusman/platewatch/internal/store"
)

// MaxListLimit caps the limit query parameter of the plate list.
const MaxListLimit = 500

// PlatesHandler serves the accepted plate log:
//
//	GET /api/plates?limit=&offset=
//	GET /api/plates/{id}
//	GET /api/plates/{id}/snapshot
//	GET /api/plates/{id}/deliveries
type PlatesHandler struct {
	store *store.Store
}

// NewPlatesHandler creates a PlatesHandler over s.
func NewPlatesHandler(s *store.Store) *PlatesHandler {
	return &PlatesHandler{store: s}
}

type plateResponse struct {
	ID          string `json:"id"`
	Number      string `json:"number"`
	Mode        string `json:"mode"`
	Regions     int    `json:"regions"`
	SnapshotURL string `json:"snapshot_url,omitempty"`
	CreatedAt   string `json:"created_at"`
}

type listPlatesResponse struct {
	Plates []plateResponse `json:"plates"`
	Total  int             `json:"total"`
	Limit  int             `json:"limit"`
	Offset int             `json:"offset"`
}

type deliveriesResponse struct {
	Deliveries []store.Delivery `json:"deliveries"`
}

func toResponse(p *store.Plate) plateResponse {
	return plateResponse{
		ID:          p.ID,
		Number:      p.Number,
		Mode:        p.Mode,
		Regions:     p.Regions,
		SnapshotURL: p.SnapshotURL,
		CreatedAt:   p.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// ServeHTTP implements http.Handler.
func (h *PlatesHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	path := strings.TrimPrefix(r.URL.Path, "/api/plates")
	path = strings.Trim(path, "/")

	if path == "" {
		h.list(w, r)
		return
	}

	id, sub, _ := strings.Cut(path, "/")
	switch sub {
	case "":
		h.get(w, id)
	case "snapshot":
		h.snapshot(w, id)
	case "deliveries":
		h.deliveries(w, id)
	default:
		writeError(w, http.StatusNotFound, "Not found")
	}
}

func (h *PlatesHandler) list(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", store.DefaultListLimit)
	if err != nil || limit < 1 || limit > MaxListLimit {
		writeError(w, http.StatusBadRequest, "limit must be between 1 and 500")
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		writeError(w, http.StatusBadRequest, "offset must be a non-negative integer")
		return
	}

	plates, err := h.store.Plates().List(limit, offset)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list plates")
		return
	}
	total, err := h.store.Plates().Count()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to count plates")
		return
	}

	response := listPlatesResponse{
		Plates: make([]plateResponse, 0, len(plates)),
		Total:  total,
		Limit:  limit,
		Offset: offset,
	}
	for _, p := range plates {
		response.Plates = append(response.Plates, toResponse(p))
	}

	writeJSON(w, http.StatusOK, response)
}

func (h *PlatesHandler) get(w http.ResponseWriter, id string) {
	p, err := h.store.Plates().GetByID(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Plate not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get plate")
		return
	}

	writeJSON(w, http.StatusOK, toResponse(p))
}

func (h *PlatesHandler) snapshot(w http.ResponseWriter, id string) {
	data, err := h.store.Plates().Snapshot(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Snapshot not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to read snapshot")
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Cache-Control", "max-age=86400, immutable")
	w.Write(data)
}

func (h *PlatesHandler) deliveries(w http.ResponseWriter, id string) {
	if _, err := h.store.Plates().GetByID(id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Plate not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "Failed to get plate")
		return
	}

	deliveries, err := h.store.Deliveries().ForPlate(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list deliveries")
		return
	}
	if deliveries == nil {
		deliveries = []store.Delivery{}
	}

	writeJSON(w, http.StatusOK, deliveriesResponse{Deliveries: deliveries})
}

func queryInt(r *http.Request, key string, fallback int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}
