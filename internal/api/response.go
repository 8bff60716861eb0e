package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/xtrntr/nuamexchange/internal/models"
)

// writeJSON writes data with the given status code
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

type errorResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func writeFailure(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Success: false, Message: message})
}

// writeError maps a service error onto a status code. Internal details of
// store failures are logged, not returned.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		writeFailure(w, http.StatusBadRequest, verr.Message)
	case errors.Is(err, models.ErrInvalidArgument):
		writeFailure(w, http.StatusBadRequest, "Solicitud inválida")
	case errors.Is(err, models.ErrUnauthenticated):
		writeFailure(w, http.StatusUnauthorized, "Sesión inválida o expirada")
	case errors.Is(err, models.ErrForbidden):
		writeFailure(w, http.StatusForbidden, "No tiene permisos para esta operación")
	case errors.Is(err, models.ErrNotFound):
		writeFailure(w, http.StatusNotFound, "Recurso no encontrado")
	case errors.Is(err, models.ErrStoreUnavailable):
		h.Logger.Error("store unavailable", slog.String("path", r.URL.Path), slog.String("error", err.Error()))
		writeFailure(w, http.StatusServiceUnavailable, "Servicio de datos no disponible")
	default:
		h.Logger.Error("request failed", slog.String("path", r.URL.Path), slog.String("error", err.Error()))
		writeFailure(w, http.StatusInternalServerError, "Error interno del servidor")
	}
}

// decodeJSON reads the request body into v
func decodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return models.Invalidf("Cuerpo de la solicitud inválido")
	}
	return nil
}

// queryLimit reads the limite query parameter; absent means 0 (use default)
func queryLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limite")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, models.Invalidf("limite must be a positive integer")
	}
	return n, nil
}

type transactionView struct {
	models.Transaction
	Amount float64 `json:"monto"`
}

func viewTransaction(t models.Transaction) transactionView {
	return transactionView{Transaction: t, Amount: t.Amount()}
}

func viewTransactions(ts []models.Transaction) []transactionView {
	views := make([]transactionView, 0, len(ts))
	for _, t := range ts {
		views = append(views, viewTransaction(t))
	}
	return views
}

func formatRate(rate float64) string {
	return fmt.Sprintf("%g", rate)
}
