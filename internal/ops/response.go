package ops

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Коды ошибок в ErrorResponse.
const (
	CodeNotFound      = "NOT_FOUND"
	CodeInternalError = "INTERNAL_ERROR"
)

// ErrorResponse — тело ответа с ошибкой: {"error": {"code", "message"}}.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// JSON пишет data со статусом status.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// NotFound — 404 для неизвестного маршрута.
func NotFound(w http.ResponseWriter, message string) {
	JSON(w, http.StatusNotFound, ErrorResponse{Error: ErrorDetail{Code: CodeNotFound, Message: message}})
}

// InternalError логирует err и отвечает 500 без деталей.
func InternalError(w http.ResponseWriter, logger *slog.Logger, err error) {
	logger.Error("internal error", "error", err)
	JSON(w, http.StatusInternalServerError, ErrorResponse{
		Error: ErrorDetail{Code: CodeInternalError, Message: "internal server error"},
	})
}
