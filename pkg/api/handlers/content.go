package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	apierrors "github.com/contentdesk/contentdesk/pkg/api/errors"
	custommw "github.com/contentdesk/contentdesk/pkg/api/middleware"
	"github.com/contentdesk/contentdesk/pkg/content"
	"github.com/contentdesk/contentdesk/pkg/entitlement"
	"github.com/contentdesk/contentdesk/pkg/export"
	"github.com/contentdesk/contentdesk/pkg/metrics"
	"github.com/contentdesk/contentdesk/pkg/models"
	"github.com/contentdesk/contentdesk/pkg/store"
)

// ContentHandler handles content request endpoints
type ContentHandler struct {
	content   *content.Service
	metrics   *metrics.Metrics
	validator *validator.Validate
}

// NewContentHandler creates a new content handler. m may be nil.
func NewContentHandler(svc *content.Service, m *metrics.Metrics) *ContentHandler {
	return &ContentHandler{
		content:   svc,
		metrics:   m,
		validator: validator.New(),
	}
}

// Create submits a new content generation request.
func (h *ContentHandler) Create(c echo.Context) error {
	sess, ok := custommw.CurrentSession(c)
	if !ok {
		return apierrors.UnauthorizedError(c)
	}

	var req models.CreateContentRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request body",
		})
	}
	if err := h.validator.Struct(req); err != nil {
		return apierrors.ValidationError(c, err)
	}

	contentType := store.ContentType(req.ContentType)
	details, err := detailsFromRequest(h.validator, req.Blog, req.Seo, req.Social)
	if err != nil {
		return apierrors.ValidationError(c, err)
	}

	created, err := h.content.Create(c.Request().Context(), sess, contentType, details)
	if err != nil {
		return mapContentError(c, err)
	}

	if h.metrics != nil {
		h.metrics.RecordContentRequest(string(contentType))
		h.metrics.RecordTokensDebited(entitlement.Cost(contentType, details.WordCount()))
	}

	return c.JSON(http.StatusCreated, contentResponse(created))
}

// List returns the caller's request history. ?status= filters to one status,
// ?status=all includes cancelled requests.
func (h *ContentHandler) List(c echo.Context) error {
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

	items, err := h.content.List(c.Request().Context(), sess, statuses)
	if err != nil {
		return apierrors.StoreError(c, err)
	}

	resp := models.ContentListResponse{Items: make([]models.ContentResponse, 0, len(items)), Total: len(items)}
	for _, item := range items {
		resp.Items = append(resp.Items, contentResponse(item))
	}
	return c.JSON(http.StatusOK, resp)
}

// Get returns a single request.
func (h *ContentHandler) Get(c echo.Context) error {
	sess, ok := custommw.CurrentSession(c)
	if !ok {
		return apierrors.UnauthorizedError(c)
	}

	item, err := h.content.Get(c.Request().Context(), sess, c.Param("id"))
	if err != nil {
		return mapContentError(c, err)
	}
	return c.JSON(http.StatusOK, contentResponse(item))
}

// Cancel withdraws an unfinished request.
func (h *ContentHandler) Cancel(c echo.Context) error {
	sess, ok := custommw.CurrentSession(c)
	if !ok {
		return apierrors.UnauthorizedError(c)
	}

	item, err := h.content.Cancel(c.Request().Context(), sess, c.Param("id"))
	if err != nil {
		return mapContentError(c, err)
	}
	return c.JSON(http.StatusOK, contentResponse(item))
}

// Resubmit retries a failed request, optionally with edited parameters.
func (h *ContentHandler) Resubmit(c echo.Context) error {
	sess, ok := custommw.CurrentSession(c)
	if !ok {
		return apierrors.UnauthorizedError(c)
	}

	var req models.ResubmitContentRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request body",
		})
	}

	var details *store.Details
	if req.Blog != nil || req.Seo != nil || req.Social != nil {
		d, err := detailsFromRequest(h.validator, req.Blog, req.Seo, req.Social)
		if err != nil {
			return apierrors.ValidationError(c, err)
		}
		details = &d
	}

	item, err := h.content.Resubmit(c.Request().Context(), sess, c.Param("id"), details)
	if err != nil {
		return mapContentError(c, err)
	}
	return c.JSON(http.StatusOK, contentResponse(item))
}

// Update edits a completed request, regenerating when asked to.
func (h *ContentHandler) Update(c echo.Context) error {
	sess, ok := custommw.CurrentSession(c)
	if !ok {
		return apierrors.UnauthorizedError(c)
	}

	var req models.UpdateContentRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request body",
		})
	}

	details, err := detailsFromRequest(h.validator, req.Blog, req.Seo, req.Social)
	if err != nil {
		return apierrors.ValidationError(c, err)
	}

	var item *store.ContentRequest
	if req.Regenerate {
		item, err = h.content.SaveAndRegenerate(c.Request().Context(), sess, c.Param("id"), details)
	} else {
		item, err = h.content.SaveChanges(c.Request().Context(), sess, c.Param("id"), details, req.Output)
	}
	if err != nil {
		return mapContentError(c, err)
	}
	return c.JSON(http.StatusOK, contentResponse(item))
}

// Export streams the caller's content history as CSV or Excel.
func (h *ContentHandler) Export(c echo.Context) error {
	sess, ok := custommw.CurrentSession(c)
	if !ok {
		return apierrors.UnauthorizedError(c)
	}

	format := export.Format(c.QueryParam("format"))
	if format == "" {
		format = export.FormatCSV
	}
	if !format.Valid() {
		return c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "invalid_format",
			Message: "Supported formats: csv, xlsx",
		})
	}

	items, err := h.content.List(c.Request().Context(), sess, nil)
	if err != nil {
		return apierrors.StoreError(c, err)
	}

	filename := fmt.Sprintf("content-history-%s.%s", time.Now().Format("20060102"), format)
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", filename))
	c.Response().Header().Set(echo.HeaderContentType, format.ContentType())
	c.Response().WriteHeader(http.StatusOK)

	return export.Write(c.Response(), format, items)
}

func mapContentError(c echo.Context, err error) error {
	var insufficientErr *entitlement.InsufficientTokensError
	switch {
	case errors.As(err, &insufficientErr):
		return apierrors.InsufficientTokensError(c, insufficientErr)
	case errors.Is(err, content.ErrNotOwner), errors.Is(err, store.ErrNotFound):
		// Treat other users' records as absent
		return apierrors.NotFoundError(c, "Content request")
	case errors.Is(err, content.ErrInvalidState):
		return c.JSON(http.StatusConflict, models.ErrorResponse{
			Error:   "invalid_state",
			Message: "This operation is not allowed in the request's current status",
		})
	case errors.Is(err, content.ErrDetailsMismatch):
		return apierrors.ValidationError(c, err)
	case errors.Is(err, content.ErrJobURLRequired):
		return apierrors.ValidationError(c, err)
	default:
		return apierrors.StoreError(c, err)
	}
}

// statusFilter maps the ?status= query parameter to store statuses. Empty
// means the default view (everything except Cancelled).
func statusFilter(raw string) ([]store.Status, error) {
	switch raw {
	case "":
		return nil, nil
	case "all":
		return []store.Status{
			store.StatusRequested, store.StatusInProgress, store.StatusCompleted,
			store.StatusFailed, store.StatusCancelled,
		}, nil
	}

	status := store.Status(raw)
	switch status {
	case store.StatusRequested, store.StatusInProgress, store.StatusCompleted,
		store.StatusFailed, store.StatusCancelled:
		return []store.Status{status}, nil
	}
	return nil, fmt.Errorf("unknown status %q", raw)
}

func detailsFromRequest(v *validator.Validate, blog *models.BlogParamsRequest, seo *models.SeoParamsRequest, social *models.SocialParamsRequest) (store.Details, error) {
	var d store.Details
	switch {
	case blog != nil:
		if err := v.Struct(blog); err != nil {
			return d, err
		}
		d.Blog = &store.BlogParams{Topic: blog.Topic, Keywords: blog.Keywords, WordCount: blog.WordCount}
	case seo != nil:
		if err := v.Struct(seo); err != nil {
			return d, err
		}
		d.Seo = &store.SeoParams{Topic: seo.Topic, Keywords: seo.Keywords, WordCount: seo.WordCount}
	case social != nil:
		if err := v.Struct(social); err != nil {
			return d, err
		}
		d.Social = &store.SocialParams{Platform: social.Platform, Topic: social.Topic}
	default:
		return d, fmt.Errorf("details are required")
	}
	return d, nil
}

func contentResponse(r *store.ContentRequest) models.ContentResponse {
	var details interface{}
	switch {
	case r.Details.Blog != nil:
		details = r.Details.Blog
	case r.Details.Seo != nil:
		details = r.Details.Seo
	case r.Details.Social != nil:
		details = r.Details.Social
	}
	return models.ContentResponse{
		ID:          r.ID,
		ContentType: string(r.ContentType),
		Details:     details,
		Status:      string(r.Status),
		Output:      r.Output,
		CreatedAt:   r.CreatedAt.Format(time.RFC3339),
	}
}
