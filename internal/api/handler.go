package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/eugenenazirov/atlas-packer/internal/packing"
	"github.com/eugenenazirov/atlas-packer/internal/storage"
)

type contextKey string

const requestIDContextKey contextKey = "requestID"

const (
	defaultMaxBoxes = 10_000
	maxBodyBytes    = 4 << 20
	// maxOffset keeps x+width and y+height of checked placements inside int.
	maxOffset = math.MaxInt - packing.MaxDimension
)

// Handler wires packer and storage dependencies into HTTP handlers.
type Handler struct {
	packer  packing.Packer
	storage storage.Storage
	logger  *zap.Logger

	clock    func() time.Time
	maxBoxes int

	packings atomic.Int64
}

// HandlerOption configures Handler behaviour.
type HandlerOption func(*Handler)

// WithClock overrides the time source, primarily for tests.
func WithClock(clock func() time.Time) HandlerOption {
	return func(h *Handler) {
		h.clock = clock
	}
}

// WithMaxBoxes limits how many boxes a single request may pack.
func WithMaxBoxes(n int) HandlerOption {
	return func(h *Handler) {
		if n > 0 {
			h.maxBoxes = n
		}
	}
}

// WithHandlerLogger sets the logger used for packing summaries.
func WithHandlerLogger(logger *zap.Logger) HandlerOption {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHandler constructs a Handler with the provided dependencies.
func NewHandler(packer packing.Packer, store storage.Storage, opts ...HandlerOption) *Handler {
	h := &Handler{
		packer:   packer,
		storage:  store,
		logger:   zap.NewNop(),
		maxBoxes: defaultMaxBoxes,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	_ = r
	resp := healthResponse{
		Status:    "ok",
		Timestamp: h.clock(),
		Packings:  h.packings.Load(),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handlePack(w http.ResponseWriter, r *http.Request) {
	var req packRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if len(req.Boxes) == 0 {
		writeError(w, http.StatusBadRequest, "Invalid request", "boxes must contain at least one box")
		return
	}
	if len(req.Boxes) > h.maxBoxes {
		writeError(w, http.StatusBadRequest, "Invalid request", fmt.Sprintf("at most %d boxes may be packed per request", h.maxBoxes))
		return
	}
	if req.MaxWidth < 0 {
		writeError(w, http.StatusBadRequest, "Invalid request", "maxWidth must be a positive integer when provided")
		return
	}

	items := make([]packing.Item, len(req.Boxes))
	for i, b := range req.Boxes {
		id := b.ID
		if id == "" {
			id = strconv.Itoa(i)
		}
		items[i] = packing.Item{ID: id, Box: packing.Box{Width: b.Width, Height: b.Height}}
	}

	resp, ok := h.pack(r.Context(), w, items, req.MaxWidth)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleOverlap(w http.ResponseWriter, r *http.Request) {
	var req overlapRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Placements) > h.maxBoxes {
		writeError(w, http.StatusBadRequest, "Invalid request", fmt.Sprintf("at most %d placements may be checked per request", h.maxBoxes))
		return
	}

	placements := make([]packing.Placement, len(req.Placements))
	for i, p := range req.Placements {
		box, err := packing.NewBox(p.Width, p.Height)
		if err != nil {
			writePackError(w, &packing.InvalidBoxError{Index: i, Box: packing.Box{Width: p.Width, Height: p.Height}})
			return
		}
		if p.X < 0 || p.Y < 0 || p.X > maxOffset || p.Y > maxOffset {
			writeError(w, http.StatusBadRequest, "Invalid placement",
				fmt.Sprintf("placement %d: offsets must be between 0 and %d", i, maxOffset))
			return
		}
		placements[i] = packing.Placement{
			X:    p.X,
			Y:    p.Y,
			Item: packing.Item{ID: p.ID, Box: box},
		}
	}
	if !chargeBoxes(r.Context(), w, len(placements)) {
		return
	}

	overlaps := packing.FindOverlaps(placements)
	if overlaps == nil {
		overlaps = []packing.OverlapPair{}
	}
	writeJSON(w, http.StatusOK, overlapResponse{
		Valid:    len(overlaps) == 0,
		Overlaps: overlaps,
	})
}

func (h *Handler) handleListSheets(w http.ResponseWriter, r *http.Request) {
	_ = r
	sheets, err := h.storage.ListSheets()
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sheetsResponse{Sheets: sheets})
}

func (h *Handler) handleGetSheet(w http.ResponseWriter, r *http.Request) {
	sheet, err := h.storage.GetSheet(r.PathValue("name"))
	if err != nil {
		writeStorageError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sheet)
}

func (h *Handler) handlePutSheet(w http.ResponseWriter, r *http.Request) {
	var req sheetRequest
	if !decodeBody(w, r, &req) {
		return
	}

	stored, err := h.storage.PutSheet(storage.Sheet{
		Name:     r.PathValue("name"),
		MaxWidth: req.MaxWidth,
		Sprites:  req.Sprites,
	})
	if err != nil {
		writeStorageError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, sheetResponse{
		Sheet:   stored,
		Message: "Sprite sheet saved successfully",
	})
}

func (h *Handler) handleDeleteSheet(w http.ResponseWriter, r *http.Request) {
	if err := h.storage.DeleteSheet(r.PathValue("name")); err != nil {
		writeStorageError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handlePackSheet(w http.ResponseWriter, r *http.Request) {
	sheet, err := h.storage.GetSheet(r.PathValue("name"))
	if err != nil {
		writeStorageError(w, err)
		return
	}

	maxWidth := sheet.MaxWidth
	if raw := r.URL.Query().Get("maxWidth"); raw != "" {
		value, err := strconv.Atoi(raw)
		if err != nil || value <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid request", "maxWidth must be a positive integer")
			return
		}
		maxWidth = value
	}

	items := make([]packing.Item, len(sheet.Sprites))
	for i, s := range sheet.Sprites {
		items[i] = packing.Item{ID: s.ID, Box: packing.Box{Width: s.Width, Height: s.Height}}
	}

	resp, ok := h.pack(r.Context(), w, items, maxWidth)
	if !ok {
		return
	}
	resp.Sheet = sheet.Name
	resp.Revision = sheet.Revision
	resp.CSSRules = cssRulesFor(sheet.Name, resp.Placements)
	writeJSON(w, http.StatusOK, resp)
}

// pack runs the packer and renders the response payload. On failure it writes
// the error response itself and reports false.
func (h *Handler) pack(ctx context.Context, w http.ResponseWriter, items []packing.Item, maxWidth int) (packResponse, bool) {
	if !chargeBoxes(ctx, w, len(items)) {
		return packResponse{}, false
	}

	start := time.Now()
	result, err := h.packer.Pack(items, maxWidth)
	elapsed := time.Since(start)

	if err != nil {
		writePackError(w, err)
		return packResponse{}, false
	}
	h.packings.Add(1)

	h.logger.Debug("packed boxes",
		zap.Int("boxes", len(items)),
		zap.Int("width", result.Width),
		zap.Int("height", result.Height),
		zap.Int("strips", result.Strips),
		zap.Duration("duration", elapsed),
		zap.String("request_id", requestIDFromContext(ctx)),
	)

	placements := make([]placementPayload, len(result.Placements))
	for i, p := range result.Placements {
		placements[i] = placementPayload{
			ID:     p.ID,
			X:      p.X,
			Y:      p.Y,
			Width:  p.Box.Width,
			Height: p.Box.Height,
		}
	}

	return packResponse{
		Width:             result.Width,
		Height:            result.Height,
		Strips:            result.Strips,
		BoxCount:          len(result.Placements),
		Area:              result.Area(),
		Efficiency:        result.Efficiency(),
		Placements:        placements,
		CalculationTimeMs: elapsed.Milliseconds(),
	}, true
}

func requestIDFromContext(ctx context.Context) string {
	if v := ctx.Value(requestIDContextKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

type boxPayload struct {
	ID     string `json:"id"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type placementPayload struct {
	ID     string `json:"id"`
	X      int    `json:"x"`
	Y      int    `json:"y"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type packRequest struct {
	Boxes    []boxPayload `json:"boxes"`
	MaxWidth int          `json:"maxWidth"`
}

type packResponse struct {
	Sheet             string             `json:"sheet,omitempty"`
	Revision          string             `json:"revision,omitempty"`
	Width             int                `json:"width"`
	Height            int                `json:"height"`
	Strips            int                `json:"strips"`
	BoxCount          int                `json:"boxCount"`
	Area              int                `json:"area"`
	Efficiency        float64            `json:"efficiency"`
	Placements        []placementPayload `json:"placements"`
	CSSRules          []cssRule          `json:"cssRules,omitempty"`
	CalculationTimeMs int64              `json:"calculationTimeMs"`
}

type overlapRequest struct {
	Placements []placementPayload `json:"placements"`
}

type overlapResponse struct {
	Valid    bool                  `json:"valid"`
	Overlaps []packing.OverlapPair `json:"overlaps"`
}

type sheetRequest struct {
	MaxWidth int              `json:"maxWidth"`
	Sprites  []storage.Sprite `json:"sprites"`
}

type sheetResponse struct {
	storage.Sheet
	Message string `json:"message,omitempty"`
}

type sheetsResponse struct {
	Sheets []storage.Sheet `json:"sheets"`
}

type healthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Packings  int64     `json:"packings"`
}

type errorResponse struct {
	Error      string `json:"error"`
	Details    string `json:"details,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", "unable to parse JSON payload")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if status != 0 {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message, details string, suggestion ...string) {
	resp := errorResponse{
		Error:   message,
		Details: details,
	}
	if len(suggestion) > 0 {
		resp.Suggestion = suggestion[0]
	}
	writeJSON(w, status, resp)
}

func writeInternalError(w http.ResponseWriter, err error) {
	writeError(w, http.StatusInternalServerError, "Internal error", err.Error())
}

func writePackError(w http.ResponseWriter, err error) {
	var oversized *packing.OversizedBoxError
	switch {
	case errors.Is(err, packing.ErrInvalidBox):
		writeError(w, http.StatusBadRequest, "Invalid box", err.Error())
	case errors.As(err, &oversized):
		suggestion := fmt.Sprintf("Use a maxWidth of at least %d or omit it to size the container automatically", oversized.Box.Width)
		writeError(w, http.StatusUnprocessableEntity, "Box too wide", err.Error(), suggestion)
	default:
		writeInternalError(w, err)
	}
}

func writeStorageError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrSheetNotFound):
		writeError(w, http.StatusNotFound, "Sprite sheet not found", err.Error())
	case errors.Is(err, storage.ErrInvalidSheet):
		writeError(w, http.StatusBadRequest, "Invalid sprite sheet", err.Error())
	default:
		writeInternalError(w, err)
	}
}
