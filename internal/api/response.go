package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/shaiso/flowrun/internal/engine"
	"github.com/shaiso/flowrun/internal/queue"
	"github.com/shaiso/flowrun/internal/telemetry"
)

// ErrorCode — код ошибки API.
type ErrorCode string

const (
	ErrCodeBadRequest     ErrorCode = "BAD_REQUEST"
	ErrCodeNotFound       ErrorCode = "NOT_FOUND"
	ErrCodeNotImplemented ErrorCode = "NOT_IMPLEMENTED"
	ErrCodeInvalidState   ErrorCode = "INVALID_STATE"
	ErrCodeInternalError  ErrorCode = "INTERNAL_ERROR"
)

// ErrorResponse — структура ответа с ошибкой.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail — детали ошибки.
type ErrorDetail struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
}

// DataResponse — структура успешного ответа.
type DataResponse struct {
	Data any `json:"data"`
}

// ListResponse — структура ответа со списком.
type ListResponse struct {
	Data  any `json:"data"`
	Total int `json:"total,omitempty"`
}

// JSON отправляет JSON ответ.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Success отправляет успешный ответ с данными.
func Success(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, DataResponse{Data: data})
}

// Created отправляет ответ о создании ресурса.
func Created(w http.ResponseWriter, data any) {
	JSON(w, http.StatusCreated, DataResponse{Data: data})
}

// Accepted отправляет ответ о принятой асинхронной операции (202).
func Accepted(w http.ResponseWriter, data any) {
	JSON(w, http.StatusAccepted, DataResponse{Data: data})
}

// List отправляет ответ со списком.
func List(w http.ResponseWriter, data any, total int) {
	JSON(w, http.StatusOK, ListResponse{Data: data, Total: total})
}

// Error отправляет ответ с ошибкой.
func Error(w http.ResponseWriter, status int, code ErrorCode, message string) {
	JSON(w, status, ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// BadRequest отправляет ошибку 400.
func BadRequest(w http.ResponseWriter, message string) {
	Error(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// NotFound отправляет ошибку 404.
func NotFound(w http.ResponseWriter, message string) {
	Error(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// InvalidState отправляет ошибку 422.
func InvalidState(w http.ResponseWriter, message string) {
	Error(w, http.StatusUnprocessableEntity, ErrCodeInvalidState, message)
}

// InternalError отправляет ошибку 500 и пишет её в лог запроса.
func InternalError(w http.ResponseWriter, r *http.Request, err error) {
	telemetry.FromContext(r.Context()).Error("internal error", "error", err)
	Error(w, http.StatusInternalServerError, ErrCodeInternalError, "internal server error")
}

// NotImplemented отправляет ошибку 501.
func NotImplemented(w http.ResponseWriter, message string) {
	Error(w, http.StatusNotImplemented, ErrCodeNotImplemented, message)
}

// HandleError преобразует ошибку очереди или движка в HTTP ответ.
// Возвращает false, если ошибки нет.
func HandleError(w http.ResponseWriter, r *http.Request, err error) bool {
	if err == nil {
		return false
	}

	logger := telemetry.FromContext(r.Context())
	switch {
	case errors.Is(err, queue.ErrInvalidJobID):
		BadRequest(w, err.Error())
	case errors.Is(err, queue.ErrNoResult):
		NotFound(w, err.Error())
	case errors.Is(err, engine.ErrDocumentNotFound):
		logger.Warn("flow document not found", "error", err)
		NotFound(w, err.Error())
	case errors.Is(err, engine.ErrInvalidDocument), errors.Is(err, engine.ErrNoEntryNode):
		logger.Warn("flow document rejected", "error", err)
		InvalidState(w, err.Error())
	default:
		InternalError(w, r, err)
	}
	return true
}
