package allowance

import (
	"net/http"
	"time"

	"payrolliq/internal/shared/apperror"
	"payrolliq/internal/shared/response"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	service Service
}

func NewHandler(service Service) *Handler {
	return &Handler{service: service}
}

func writeServiceError(c *gin.Context, err error) {
	httpErr := apperror.ToHTTP(err)
	response.Error(c, httpErr.Status, httpErr.Code, httpErr.Message, httpErr.Details)
}

func (h *Handler) Create(c *gin.Context) {
	organizationID := c.GetString("organization_id")

	var req CreateAllowanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeServiceError(c, apperror.MapValidationError(err))
		return
	}

	resp, err := h.service.Create(c.Request.Context(), organizationID, req)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, resp, nil)
}

func (h *Handler) GetAll(c *gin.Context) {
	organizationID := c.GetString("organization_id")

	asOf := time.Now().UTC()
	if q := c.Query("as_of"); q != "" {
		parsed, err := time.Parse("2006-01-02", q)
		if err != nil {
			response.Error(c, http.StatusBadRequest, apperror.CodeInvalidInput, "as_of must be YYYY-MM-DD", nil)
			return
		}
		asOf = parsed
	}

	resp, err := h.service.GetAll(c.Request.Context(), organizationID, asOf)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	response.Success(c, http.StatusOK, resp, nil)
}
