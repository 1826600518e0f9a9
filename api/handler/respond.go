package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/use-agent/tcees/models"
)

// respondError maps a ScrapeError to the correct HTTP status code and writes
// a structured JSON error response.
func respondError(c *gin.Context, se *models.ScrapeError, resp models.ScrapeResponse) {
	resp.Success = false
	resp.Error = se.ToDetail()
	c.JSON(mapErrorToStatus(se), resp)
}

// mapErrorToStatus translates error codes to HTTP status codes.
func mapErrorToStatus(e *models.ScrapeError) int {
	switch e.Code {
	case models.ErrCodeInvalidInput, models.ErrCodeNoFile, models.ErrCodeNotPDF:
		return http.StatusBadRequest // 400
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized // 401
	case models.ErrCodeTargetNotFound:
		return http.StatusNotFound // 404
	case models.ErrCodeFileTooLarge:
		return http.StatusRequestEntityTooLarge // 413
	case models.ErrCodeValidation:
		return http.StatusUnprocessableEntity // 422
	case models.ErrCodeRateLimited:
		return http.StatusTooManyRequests // 429
	case models.ErrCodeNavigation, models.ErrCodeStructuralMismatch, models.ErrCodeElementNotFound:
		return http.StatusBadGateway // 502
	case models.ErrCodeBrowserCrash:
		return http.StatusServiceUnavailable // 503
	case models.ErrCodeTimeout:
		return http.StatusGatewayTimeout // 504
	default:
		return http.StatusInternalServerError // 500
	}
}

// conformityAbort writes an error in the body shape of POST /validate.
func conformityAbort(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{
		"resultado_final": models.VerdictError,
		"erro":            message,
		"erro_codigo":     code,
	})
}

// ConformityReject answers refused POST /validate requests the way
// existing clients expect.
func ConformityReject(c *gin.Context, status int, code, message string) {
	switch status {
	case http.StatusUnauthorized:
		conformityAbort(c, status, "AUTH_ERROR", "Não autorizado.")
	case http.StatusTooManyRequests:
		conformityAbort(c, status, code, "Muitas requisições. Tente novamente em instantes.")
	default:
		conformityAbort(c, status, code, message)
	}
}
