package handlers

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	apierrors "github.com/contentdesk/contentdesk/pkg/api/errors"
	custommw "github.com/contentdesk/contentdesk/pkg/api/middleware"
	"github.com/contentdesk/contentdesk/pkg/content"
	"github.com/contentdesk/contentdesk/pkg/models"
	"github.com/contentdesk/contentdesk/pkg/store"
)

// Resume uploads are capped well below typical PDF sizes for safety.
const maxResumeSize = 10 << 20 // 10 MB

// ResumeHandler handles resume upload and enhancement endpoints
type ResumeHandler struct {
	resumes   *content.ResumeService
	validator *validator.Validate
}

// NewResumeHandler creates a new resume handler
func NewResumeHandler(svc *content.ResumeService) *ResumeHandler {
	return &ResumeHandler{
		resumes:   svc,
		validator: validator.New(),
	}
}

// Upload stores a resume file sent as multipart form data.
func (h *ResumeHandler) Upload(c echo.Context) error {
	sess, ok := custommw.CurrentSession(c)
	if !ok {
		return apierrors.UnauthorizedError(c)
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "missing_file",
			Message: "A resume file is required",
		})
	}
	if fileHeader.Size > maxResumeSize {
		return c.JSON(http.StatusRequestEntityTooLarge, models.ErrorResponse{
			Error:   "file_too_large",
			Message: "Resume files are limited to 10 MB",
		})
	}

	file, err := fileHeader.Open()
	if err != nil {
		return apierrors.InternalError(c, err)
	}
	defer file.Close()

	rec, err := h.resumes.Upload(c.Request().Context(), sess, fileHeader.Filename, file)
	if err != nil {
		return apierrors.InternalError(c, err)
	}

	return c.JSON(http.StatusCreated, resumeResponse(rec))
}

// Enhance requests an enhanced version of an uploaded resume.
func (h *ResumeHandler) Enhance(c echo.Context) error {
	sess, ok := custommw.CurrentSession(c)
	if !ok {
		return apierrors.UnauthorizedError(c)
	}

	var req models.EnhanceResumeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request body",
		})
	}
	if err := h.validator.Struct(req); err != nil {
		return apierrors.ValidationError(c, err)
	}

	rec, err := h.resumes.Enhance(c.Request().Context(), sess, req.ResumeID, store.ResumeType(req.ResumeType), req.JobURL)
	if err != nil {
		return mapContentError(c, err)
	}

	return c.JSON(http.StatusCreated, resumeResponse(rec))
}

// List returns the caller's resume records.
func (h *ResumeHandler) List(c echo.Context) error {
	sess, ok := custommw.CurrentSession(c)
	if !ok {
		return apierrors.UnauthorizedError(c)
	}

	statuses, err := statusFilter(c.QueryParam("status"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_status",
			Message: err.Error(),
		})
	}

	items, err := h.resumes.ListResumes(c.Request().Context(), sess, statuses)
	if err != nil {
		return apierrors.StoreError(c, err)
	}

	resp := make([]models.ResumeResponse, 0, len(items))
	for _, item := range items {
		resp = append(resp, resumeResponse(item))
	}
	return c.JSON(http.StatusOK, resp)
}

func resumeResponse(r *store.ResumeRecord) models.ResumeResponse {
	return models.ResumeResponse{
		ID:               r.ID,
		OriginalFilename: r.OriginalFilename,
		FileURL:          r.FileURL,
		Type:             string(r.Type),
		JobURL:           r.JobURL,
		Status:           string(r.Status),
		Output:           r.Output,
		CreatedAt:        r.CreatedAt.Format(time.RFC3339),
	}
}
