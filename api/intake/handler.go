package intake

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/ruteri/bucket-provisioning-backend/api"
	"github.com/ruteri/bucket-provisioning-backend/interfaces"
	"github.com/ruteri/bucket-provisioning-backend/metrics"
)

// maxBodySize is the maximum allowed request body size (1MB).
const maxBodySize = 1024 * 1024

// Intake results, used as metric labels.
const (
	resultCreated          = "created"
	resultExists           = "exists"
	resultConflict         = "conflict"
	resultBadRequest       = "bad_request"
	resultInvalidSignature = "invalid_signature"
	resultError            = "error"
)

// RequestError provides structured error information for HTTP responses.
type RequestError struct {
	// StatusCode is the HTTP status code to return.
	StatusCode int

	// Err is the underlying error.
	Err error

	// Missing lists absent payload fields, if that is why the request failed.
	Missing []string
}

func (e *RequestError) Error() string {
	return e.Err.Error()
}

func badRequest(format string, args ...any) *RequestError {
	return &RequestError{StatusCode: http.StatusBadRequest, Err: fmt.Errorf(format, args...)}
}

// Handler is the instance intake endpoint. It accepts signed provisioning
// envelopes, verifies them, and records a bucket instance for each.
//
// The handler keeps no state between requests. Replays are resolved by the
// UNIQUE root_path constraint of the instance repository.
type Handler struct {
	verifier     interfaces.Verifier
	instances    interfaces.InstanceRepository
	materializer interfaces.Materializer
	log          *slog.Logger
}

// NewHandler creates the intake handler.
//
// Parameters:
//   - verifier: checks envelope signatures against the registry's public key
//   - instances: stores accepted bucket instances
//   - materializer: creates physical storage for new instances, may be nil
//   - log: structured logger
func NewHandler(verifier interfaces.Verifier, instances interfaces.InstanceRepository, materializer interfaces.Materializer, log *slog.Logger) *Handler {
	return &Handler{
		verifier:     verifier,
		instances:    instances,
		materializer: materializer,
		log:          log,
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post(api.IntakeCreatePath, h.HandleCreate)
	r.Get(api.InstancesPath, h.HandleList)
	r.Get(api.InstancesPath+"/{id:[0-9]+}", h.HandleGet)
}

// instanceRequest is the verified payload, shape-checked into concrete types.
type instanceRequest struct {
	Name             string
	RootPath         string
	BucketType       interfaces.BucketType
	ExternalProvider *string
	MountPermissions string
}

func (r *instanceRequest) instance() *interfaces.BucketInstance {
	return &interfaces.BucketInstance{
		Name:             r.Name,
		RootPath:         r.RootPath,
		BucketType:       r.BucketType,
		ExternalProvider: r.ExternalProvider,
		MountPermissions: r.MountPermissions,
	}
}

// HandleCreate accepts a signed provisioning envelope.
//
// URL format: POST /bucketinst/create
//
// Request body: {"signed_data": "<compact JWS>"}
//
// Response: 200 {"message": "...", "id": N} once the instance exists. A
// replay of an already accepted envelope answers 200 with the existing id.
// Malformed requests get 400, a bad signature 401, and an envelope
// conflicting with an existing instance at the same root path 409.
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	token, reqErr := readEnvelope(w, r)
	if reqErr != nil {
		h.reject(w, resultBadRequest, reqErr)
		return
	}

	// Nothing in the payload is looked at before the signature is checked.
	claims, err := h.verifier.Verify(token)
	if err != nil {
		h.log.Warn("Rejected envelope with invalid signature", "err", err, "remote", r.RemoteAddr)
		h.reject(w, resultInvalidSignature, &RequestError{StatusCode: http.StatusUnauthorized, Err: errors.New("Invalid signature")})
		return
	}

	req, reqErr := decodeInstanceRequest(claims)
	if reqErr != nil {
		h.reject(w, resultBadRequest, reqErr)
		return
	}

	receipt, reqErr := h.createInstance(r, req)
	if reqErr != nil {
		result := resultError
		if reqErr.StatusCode == http.StatusConflict {
			result = resultConflict
		}
		h.reject(w, result, reqErr)
		return
	}

	if err := api.WriteJSON(w, http.StatusOK, receipt); err != nil {
		h.log.Error("Failed to encode response", "err", err)
	}
}

// readEnvelope extracts signed_data from the request body.
func readEnvelope(w http.ResponseWriter, r *http.Request) (string, *RequestError) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)

	dec := json.NewDecoder(r.Body)
	var body map[string]json.RawMessage
	if err := dec.Decode(&body); err != nil {
		return "", badRequest("Invalid JSON format")
	}
	// The body must hold exactly one JSON value.
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return "", badRequest("Invalid JSON format")
	}

	raw, ok := body["signed_data"]
	if !ok {
		return "", badRequest("Missing signed_data")
	}

	var token string
	if err := json.Unmarshal(raw, &token); err != nil {
		return "", badRequest("signed_data must be a string")
	}
	if token == "" {
		return "", badRequest("Missing signed_data")
	}
	return token, nil
}

// decodeInstanceRequest checks that every required field is present and of
// the expected type. All absent fields are reported at once. A null
// external_provider is present.
func decodeInstanceRequest(claims map[string]any) (*instanceRequest, *RequestError) {
	var missing []string
	for _, field := range interfaces.RequiredClaims {
		if _, ok := claims[field]; !ok {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return nil, &RequestError{
			StatusCode: http.StatusBadRequest,
			Err:        &interfaces.MissingFieldError{Fields: missing},
			Missing:    missing,
		}
	}

	stringField := func(field string) (string, *RequestError) {
		s, ok := claims[field].(string)
		if !ok {
			return "", badRequest("%s must be a string", field)
		}
		return s, nil
	}

	var (
		req    instanceRequest
		reqErr *RequestError
	)
	if req.Name, reqErr = stringField(interfaces.ClaimName); reqErr != nil {
		return nil, reqErr
	}
	if req.RootPath, reqErr = stringField(interfaces.ClaimRootPath); reqErr != nil {
		return nil, reqErr
	}
	bucketType, reqErr := stringField(interfaces.ClaimBucketType)
	if reqErr != nil {
		return nil, reqErr
	}
	req.BucketType = interfaces.BucketType(bucketType)
	if !req.BucketType.Valid() {
		return nil, badRequest("unknown bucket_type %q", bucketType)
	}
	if req.MountPermissions, reqErr = stringField(interfaces.ClaimMountPermissions); reqErr != nil {
		return nil, reqErr
	}

	switch provider := claims[interfaces.ClaimExternalProvider].(type) {
	case nil:
	case string:
		req.ExternalProvider = &provider
	default:
		return nil, badRequest("%s must be a string or null", interfaces.ClaimExternalProvider)
	}

	return &req, nil
}

// createInstance materializes and records a new instance, or resolves a
// replay against the instance already recorded at the same root path.
func (h *Handler) createInstance(r *http.Request, req *instanceRequest) (*interfaces.InstanceReceipt, *RequestError) {
	ctx := r.Context()
	inst := req.instance()

	existing, err := h.instances.GetByRootPath(ctx, inst.RootPath)
	switch {
	case err == nil:
		return h.resolveReplay(inst, existing)
	case !errors.Is(err, interfaces.ErrNotFound):
		h.log.Error("Failed to look up bucket instance", "err", err, "root_path", inst.RootPath)
		return nil, &RequestError{StatusCode: http.StatusInternalServerError, Err: errors.New("Internal server error")}
	}

	if h.materializer != nil {
		if err := h.materializer.Materialize(ctx, inst); err != nil {
			h.log.Error("Failed to materialize bucket instance", "err", err, "backend", h.materializer.Name(), "root_path", inst.RootPath)
			return nil, &RequestError{StatusCode: http.StatusInternalServerError, Err: errors.New("Failed to materialize bucket instance")}
		}
	}

	created, err := h.instances.Create(ctx, inst)
	if errors.Is(err, interfaces.ErrDuplicateInstance) {
		// lost a race against a concurrent replay
		existing, getErr := h.instances.GetByRootPath(ctx, inst.RootPath)
		if getErr != nil {
			h.log.Error("Failed to look up bucket instance", "err", getErr, "root_path", inst.RootPath)
			return nil, &RequestError{StatusCode: http.StatusInternalServerError, Err: errors.New("Internal server error")}
		}
		return h.resolveReplay(inst, existing)
	}
	if err != nil {
		h.log.Error("Failed to create bucket instance", "err", err, "root_path", inst.RootPath)
		return nil, &RequestError{StatusCode: http.StatusInternalServerError, Err: errors.New("Internal server error")}
	}

	metrics.IntakeRequests.WithLabelValues(resultCreated).Inc()
	h.log.Info("Bucket instance created", "id", created.ID, "name", created.Name, "root_path", created.RootPath)
	return &interfaces.InstanceReceipt{ID: created.ID, Message: api.MsgInstanceCreated}, nil
}

func (h *Handler) resolveReplay(inst, existing *interfaces.BucketInstance) (*interfaces.InstanceReceipt, *RequestError) {
	if !existing.SameAs(inst) {
		h.log.Warn("Conflicting envelope for existing root path", "root_path", inst.RootPath, "existing_id", existing.ID)
		return nil, &RequestError{
			StatusCode: http.StatusConflict,
			Err:        fmt.Errorf("%w with different fields at %s", interfaces.ErrDuplicateInstance, inst.RootPath),
		}
	}

	metrics.IntakeRequests.WithLabelValues(resultExists).Inc()
	h.log.Info("Replayed envelope for existing instance", "id", existing.ID, "root_path", existing.RootPath)
	return &interfaces.InstanceReceipt{ID: existing.ID, Message: api.MsgInstanceExists}, nil
}

func (h *Handler) reject(w http.ResponseWriter, result string, reqErr *RequestError) {
	metrics.IntakeRequests.WithLabelValues(result).Inc()
	if err := api.WriteJSON(w, reqErr.StatusCode, api.ErrorResponse{Error: reqErr.Error(), Missing: reqErr.Missing}); err != nil {
		h.log.Error("Failed to encode response", "err", err)
	}
}

// HandleGet returns a recorded bucket instance.
//
// URL format: GET /bucketinst/{id}
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid instance id", http.StatusBadRequest)
		return
	}

	inst, err := h.instances.Get(r.Context(), id)
	if errors.Is(err, interfaces.ErrNotFound) {
		http.Error(w, "Bucket instance not found", http.StatusNotFound)
		return
	} else if err != nil {
		h.log.Error("Failed to get bucket instance", "err", err, "id", id)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if err := api.WriteJSON(w, http.StatusOK, inst); err != nil {
		h.log.Error("Failed to encode response", "err", err)
	}
}

// HandleList returns every recorded bucket instance.
//
// URL format: GET /bucketinst
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	instances, err := h.instances.List(r.Context())
	if err != nil {
		h.log.Error("Failed to list bucket instances", "err", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	if err := api.WriteJSON(w, http.StatusOK, instances); err != nil {
		h.log.Error("Failed to encode response", "err", err)
	}
}
