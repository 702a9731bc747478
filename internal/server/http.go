package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/glassline/configurator/internal/core"
	"github.com/glassline/configurator/internal/repository"
	"github.com/glassline/configurator/internal/service"
)

const defaultMaxJSONBodyBytes = 1 << 20

var errJSONBodyTooLarge = errors.New("json request body too large")

type HTTPServer struct {
	service      Service
	maxBodyBytes int64
}

type resolveJSONRequest struct {
	ProductID  int64          `json:"product_id"`
	Selections core.Selection `json:"selections,omitempty"`
}

type parseSKUJSONRequest struct {
	SKU string `json:"sku"`
}

type listProductsJSONResponse struct {
	Products []repository.ProductCandidate `json:"products"`
}

func NewHTTPHandler(svc Service) http.Handler {
	return NewHTTPHandlerWithBodyLimit(svc, defaultMaxJSONBodyBytes)
}

func NewHTTPHandlerWithBodyLimit(svc Service, maxBodyBytes int64) http.Handler {
	if svc == nil {
		panic("service is nil")
	}

	if maxBodyBytes <= 0 {
		maxBodyBytes = defaultMaxJSONBodyBytes
	}

	server := &HTTPServer{
		service:      svc,
		maxBodyBytes: maxBodyBytes,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/configurations/resolve", server.handleResolve)
	mux.HandleFunc("POST /v1/sku/parse", server.handleParseSKU)
	mux.HandleFunc("GET /v1/product-lines/{id}/products", server.handleListProducts)
	mux.HandleFunc("GET /healthz", server.handleHealthz)

	return mux
}

func (s *HTTPServer) handleResolve(w http.ResponseWriter, r *http.Request) {
	var request resolveJSONRequest
	if err := s.decodeJSONBody(w, r, &request); err != nil {
		writeJSONDecodeError(w, err)
		return
	}

	if request.ProductID <= 0 {
		writeJSONError(w, http.StatusBadRequest, "product_id is required")
		return
	}

	result, err := s.service.ResolveConfiguration(r.Context(), request.ProductID, request.Selections)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleParseSKU(w http.ResponseWriter, r *http.Request) {
	var request parseSKUJSONRequest
	if err := s.decodeJSONBody(w, r, &request); err != nil {
		writeJSONDecodeError(w, err)
		return
	}

	if strings.TrimSpace(request.SKU) == "" {
		writeJSONError(w, http.StatusBadRequest, "sku is required")
		return
	}

	result, err := s.service.ParseSKU(r.Context(), request.SKU)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handleListProducts(w http.ResponseWriter, r *http.Request) {
	lineID, err := parsePathID(r.PathValue("id"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid product line id")
		return
	}

	filter, err := parseSelectionFilter(r.URL.Query())
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid selection filter")
		return
	}

	candidates, err := s.service.ListCandidates(r.Context(), lineID, filter)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	if candidates == nil {
		candidates = []repository.ProductCandidate{}
	}
	writeJSON(w, http.StatusOK, listProductsJSONResponse{Products: candidates})
}

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func parsePathID(value string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid id")
	}
	return id, nil
}

// parseSelectionFilter converts query parameters into an attribute filter.
// Each parameter names a stored attribute field and carries a single option
// id; repeated or non-numeric values are rejected.
func parseSelectionFilter(values url.Values) (map[string]int64, error) {
	if len(values) == 0 {
		return nil, nil
	}

	filter := make(map[string]int64, len(values))
	for field, raw := range values {
		if strings.TrimSpace(field) == "" {
			return nil, errors.New("blank filter field")
		}
		if len(raw) != 1 {
			return nil, errors.New("repeated filter field")
		}
		id, err := strconv.ParseInt(strings.TrimSpace(raw[0]), 10, 64)
		if err != nil || id <= 0 {
			return nil, errors.New("invalid option id")
		}
		filter[field] = id
	}

	return filter, nil
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrProductNotFound), errors.Is(err, service.ErrLineNotFound):
		writeJSONError(w, http.StatusNotFound, serviceErrorMessage(err))
	case errors.Is(err, context.Canceled):
		writeJSONError(w, http.StatusRequestTimeout, serviceErrorMessage(err))
	default:
		writeJSONError(w, http.StatusInternalServerError, serviceErrorMessage(err))
	}
}

func serviceErrorMessage(err error) string {
	switch {
	case errors.Is(err, service.ErrProductNotFound):
		return "product not found"
	case errors.Is(err, service.ErrLineNotFound):
		return "product line not found"
	case errors.Is(err, context.Canceled):
		return "request canceled"
	default:
		return "internal server error"
	}
}

func writeJSONError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSONDecodeError(w http.ResponseWriter, err error) {
	if errors.Is(err, errJSONBodyTooLarge) {
		writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	writeJSONError(w, http.StatusBadRequest, "invalid JSON body")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *HTTPServer) decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) error {
	if r.Body == nil {
		return io.EOF
	}

	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.maxBodyBytes))
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		return normalizeJSONDecodeError(err)
	}

	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("request body must contain a single JSON object")
		}
		return normalizeJSONDecodeError(err)
	}

	return nil
}

func normalizeJSONDecodeError(err error) error {
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return errJSONBodyTooLarge
	}
	return err
}
