package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/johnwmail/pasties/internal/services"
	"go.uber.org/zap"
)

// DefaultReturn is the envelope of every /api response
type DefaultReturn struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Payload any    `json:"payload"`
}

func respond(c *gin.Context, status int, message string, payload any) {
	c.JSON(status, DefaultReturn{
		Success: status < http.StatusBadRequest,
		Message: message,
		Payload: payload,
	})
}

// StatusFor maps a PasteError kind onto an HTTP status
func StatusFor(kind services.ErrorKind) int {
	switch kind {
	case services.KindInvalidValue:
		return http.StatusBadRequest
	case services.KindPasswordIncorrect, services.KindViewPasswordRequired, services.KindUnauthorized:
		return http.StatusUnauthorized
	case services.KindNotFound:
		return http.StatusNotFound
	case services.KindAlreadyExists:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err as an error envelope. Causes of internal errors are logged
// and never sent to the client.
func fail(c *gin.Context, logger *zap.Logger, err error) {
	var pe *services.PasteError
	if !errors.As(err, &pe) {
		pe = &services.PasteError{Kind: services.KindOther, Err: err}
	}

	status := StatusFor(pe.Kind)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Error(err))
	}
	respond(c, status, pe.Message(), nil)
}

// badRequest reports an undecodable body. Bodies cut off by the size limit
// get 413 instead of 400.
func badRequest(c *gin.Context, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		respond(c, http.StatusRequestEntityTooLarge, "Request body too large", nil)
		return
	}
	respond(c, http.StatusBadRequest, "Invalid request body", nil)
}

// NotFound answers every path without a route
func NotFound(c *gin.Context) {
	respond(c, http.StatusNotFound, "Path does not exist", http.StatusNotFound)
}
