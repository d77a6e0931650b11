package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/ruteri/bucket-provisioning-backend/api"
	"github.com/ruteri/bucket-provisioning-backend/interfaces"
)

// maxBodySize is the maximum allowed request body size (1MB).
const maxBodySize = 1024 * 1024

// RequestError provides structured error information for HTTP responses.
// It includes both an HTTP status code and the underlying error.
type RequestError struct {
	// StatusCode is the HTTP status code to return.
	StatusCode int

	// Err is the underlying error.
	Err error
}

// Error returns the error message from the underlying error.
func (e *RequestError) Error() string {
	return e.Err.Error()
}

// Handler serves the bucket management API on top of a BucketRegistry.
type Handler struct {
	registry interfaces.BucketRegistry
	log      *slog.Logger
}

// NewHandler creates a bucket API handler.
func NewHandler(registry interfaces.BucketRegistry, log *slog.Logger) *Handler {
	return &Handler{
		registry: registry,
		log:      log,
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route(api.BucketsPath, func(r chi.Router) {
		r.Post("/", h.HandleCreate)
		r.Get("/", h.HandleList)
		r.Get("/{id:[0-9]+}", h.HandleGet)
		r.Patch("/{id:[0-9]+}", h.HandleUpdate)
		r.Post("/{id:[0-9]+}/reprovision", h.HandleReprovision)
	})
}

// statusFor maps a registry error to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, interfaces.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, interfaces.ErrDuplicateName),
		errors.Is(err, interfaces.ErrInvalidStateTransition):
		return http.StatusConflict
	case errors.Is(err, interfaces.ErrImmutableField),
		errors.Is(err, interfaces.ErrInvariantViolation):
		return http.StatusBadRequest
	case errors.Is(err, interfaces.ErrTransportFailure),
		errors.Is(err, interfaces.ErrSigningFailure),
		errors.Is(err, interfaces.ErrRootPathConflict):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)

	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		status = reqErr.StatusCode
	}

	resp := api.ErrorResponse{Error: err.Error()}
	var immutable *interfaces.ImmutableFieldViolation
	if errors.As(err, &immutable) {
		resp.Field = immutable.Field
	}

	if status == http.StatusInternalServerError {
		h.log.Error("Bucket request failed", "err", err)
		resp.Error = "Internal server error"
	}

	if err := api.WriteJSON(w, status, resp); err != nil {
		h.log.Error("Failed to encode response", "err", err)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	if err := api.WriteJSON(w, status, v); err != nil {
		h.log.Error("Failed to encode response", "err", err)
	}
}

// writeProvisioned answers a create or reprovision call. A bucket returned
// together with an error was persisted but failed provisioning.
func (h *Handler) writeProvisioned(w http.ResponseWriter, successStatus int, b *interfaces.Bucket, err error) {
	switch {
	case err == nil:
		h.writeJSON(w, successStatus, b)
	case b != nil:
		h.writeJSON(w, http.StatusBadGateway, api.ProvisionFailedResponse{Error: err.Error(), Bucket: b})
	default:
		h.writeError(w, err)
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &RequestError{StatusCode: http.StatusBadRequest, Err: err}
	}
	return nil
}

func bucketID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, &RequestError{StatusCode: http.StatusBadRequest, Err: err}
	}
	return id, nil
}

// HandleCreate creates a bucket and provisions it.
//
// URL format: POST /api/v1/buckets
//
// Request body: JSON, see interfaces.BucketSpec
//
// Response: 201 with the provisioned bucket. If the bucket was persisted but
// provisioning failed the response is 502 with api.ProvisionFailedResponse.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var spec interfaces.BucketSpec
	if err := decodeBody(w, r, &spec); err != nil {
		h.writeError(w, err)
		return
	}

	b, err := h.registry.Create(r.Context(), spec)
	h.writeProvisioned(w, http.StatusCreated, b, err)
}

// HandleList lists buckets.
//
// URL format: GET /api/v1/buckets[?state=provision_failed][?name=logs]
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	if name := r.URL.Query().Get("name"); name != "" {
		b, err := h.registry.GetByName(r.Context(), name)
		if errors.Is(err, interfaces.ErrNotFound) {
			h.writeJSON(w, http.StatusOK, []*interfaces.Bucket{})
			return
		} else if err != nil {
			h.writeError(w, err)
			return
		}
		h.writeJSON(w, http.StatusOK, []*interfaces.Bucket{b})
		return
	}

	filter := interfaces.BucketFilter{State: interfaces.BucketState(r.URL.Query().Get("state"))}
	buckets, err := h.registry.List(r.Context(), filter)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, buckets)
}

// HandleGet returns a single bucket.
//
// URL format: GET /api/v1/buckets/{id}
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := bucketID(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	b, err := h.registry.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, b)
}

// HandleUpdate applies a partial update.
//
// URL format: PATCH /api/v1/buckets/{id}
//
// Request body: JSON, see interfaces.BucketUpdate. Changing an identity field
// is answered with 400 naming the field.
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := bucketID(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	var update interfaces.BucketUpdate
	if err := decodeBody(w, r, &update); err != nil {
		h.writeError(w, err)
		return
	}

	b, err := h.registry.Update(r.Context(), id, update)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, b)
}

// HandleReprovision retries provisioning of a bucket in provision_failed.
//
// URL format: POST /api/v1/buckets/{id}/reprovision
func (h *Handler) HandleReprovision(w http.ResponseWriter, r *http.Request) {
	id, err := bucketID(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	b, err := h.registry.Reprovision(r.Context(), id)
	h.writeProvisioned(w, http.StatusOK, b, err)
}
