// Package content implements the content-request lifecycle: creation with
// token debit, listing, cancellation, resubmission and edits of completed
// drafts. Status transitions to In Progress, Completed and Failed are made
// by the external generation worker directly against the record store; this
// service never writes those statuses.
package content

import (
	"context"
	"errors"
	"fmt"

	"github.com/contentdesk/contentdesk/pkg/entitlement"
	"github.com/contentdesk/contentdesk/pkg/fulfillment"
	"github.com/contentdesk/contentdesk/pkg/logger"
	"github.com/contentdesk/contentdesk/pkg/session"
	"github.com/contentdesk/contentdesk/pkg/store"
)

var (
	// ErrNotOwner is returned when a record belongs to another user.
	ErrNotOwner = errors.New("record does not belong to this user")
	// ErrInvalidState is returned when an operation is not allowed from the
	// record's current status.
	ErrInvalidState = errors.New("operation not allowed in current status")
	// ErrDetailsMismatch is returned when the details payload does not match
	// the declared content type.
	ErrDetailsMismatch = errors.New("details do not match content type")
)

// Service orchestrates content requests end to end.
type Service struct {
	content     store.ContentStore
	entitlement *entitlement.Service
	dispatcher  *fulfillment.Dispatcher
	log         logger.Logger
}

// NewService creates a new content service.
func NewService(content store.ContentStore, ent *entitlement.Service, dispatcher *fulfillment.Dispatcher, log logger.Logger) *Service {
	return &Service{
		content:     content,
		entitlement: ent,
		dispatcher:  dispatcher,
		log:         log,
	}
}

// validateDetails checks exactly one branch is set and matches the type.
func validateDetails(contentType store.ContentType, d store.Details) error {
	switch contentType {
	case store.ContentBlogPost:
		if d.Blog == nil || d.Seo != nil || d.Social != nil {
			return ErrDetailsMismatch
		}
	case store.ContentSEOArticle:
		if d.Seo == nil || d.Blog != nil || d.Social != nil {
			return ErrDetailsMismatch
		}
	case store.ContentSocialPost:
		if d.Social == nil || d.Blog != nil || d.Seo != nil {
			return ErrDetailsMismatch
		}
	default:
		return fmt.Errorf("unknown content type %q", contentType)
	}
	return nil
}

// Create debits the token cost, records the request and hands it to the
// generation pipeline. If the handoff fails the record stays Requested and
// the debit stands; the pipeline picks stranded records up from the store.
func (s *Service) Create(ctx context.Context, sess session.Session, contentType store.ContentType, details store.Details) (*store.ContentRequest, error) {
	if err := validateDetails(contentType, details); err != nil {
		return nil, err
	}

	cost := entitlement.Cost(contentType, details.WordCount())
	if _, err := s.entitlement.Debit(ctx, sess.UserID, cost); err != nil {
		return nil, err
	}

	req := &store.ContentRequest{
		UserID:      sess.UserID,
		UserEmail:   sess.Email,
		ContentType: contentType,
		Details:     details,
		Status:      store.StatusRequested,
	}
	id, err := s.content.Create(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to create content request: %w", err)
	}
	req.ID = id

	if err := s.dispatch(ctx, req, cost); err != nil {
		return req, err
	}

	s.log.Info("content request created", "record_id", id, "type", contentType, "cost", cost)
	return req, nil
}

// List returns the user's request history, newest first. With no filter,
// cancelled requests are hidden.
func (s *Service) List(ctx context.Context, sess session.Session, statuses []store.Status) ([]*store.ContentRequest, error) {
	if len(statuses) == 0 {
		statuses = []store.Status{
			store.StatusRequested,
			store.StatusInProgress,
			store.StatusCompleted,
			store.StatusFailed,
		}
	}
	items, err := s.content.ListByUser(ctx, sess.Email, store.ListOptions{Statuses: statuses})
	if err != nil {
		return nil, fmt.Errorf("failed to list content requests: %w", err)
	}
	return items, nil
}

// Get returns a single request after an ownership check.
func (s *Service) Get(ctx context.Context, sess session.Session, id string) (*store.ContentRequest, error) {
	req, err := s.content.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.UserID != sess.UserID {
		return nil, ErrNotOwner
	}
	return req, nil
}

// Cancel withdraws a request that has not finished. Spent tokens are not
// refunded.
func (s *Service) Cancel(ctx context.Context, sess session.Session, id string) (*store.ContentRequest, error) {
	req, err := s.Get(ctx, sess, id)
	if err != nil {
		return nil, err
	}
	if req.Status != store.StatusRequested && req.Status != store.StatusInProgress {
		return nil, ErrInvalidState
	}

	if err := s.content.Update(ctx, id, store.Fields{"Status": store.StatusCancelled}); err != nil {
		return nil, fmt.Errorf("failed to cancel content request: %w", err)
	}
	req.Status = store.StatusCancelled

	s.log.Info("content request cancelled", "record_id", id)
	return req, nil
}

// Resubmit sends a failed request back to the pipeline. The original debit
// already paid for the generation, so no tokens are charged. Details may be
// edited before resubmission; nil keeps the original parameters.
func (s *Service) Resubmit(ctx context.Context, sess session.Session, id string, details *store.Details) (*store.ContentRequest, error) {
	req, err := s.Get(ctx, sess, id)
	if err != nil {
		return nil, err
	}
	if req.Status != store.StatusFailed {
		return nil, ErrInvalidState
	}

	if details != nil {
		if err := validateDetails(req.ContentType, *details); err != nil {
			return nil, err
		}
		req.Details = *details
	}
	req.Status = store.StatusRequested
	req.Output = ""

	fields := store.Fields{
		"Status":  store.StatusRequested,
		"Output":  "",
		"Details": req.Details,
	}
	if err := s.content.Update(ctx, id, fields); err != nil {
		return nil, fmt.Errorf("failed to resubmit content request: %w", err)
	}

	cost := entitlement.Cost(req.ContentType, req.Details.WordCount())
	if err := s.dispatch(ctx, req, cost); err != nil {
		return req, err
	}

	s.log.Info("content request resubmitted", "record_id", id)
	return req, nil
}

// SaveChanges updates the draft of a completed request in place.
func (s *Service) SaveChanges(ctx context.Context, sess session.Session, id string, details store.Details, output string) (*store.ContentRequest, error) {
	req, err := s.Get(ctx, sess, id)
	if err != nil {
		return nil, err
	}
	if req.Status != store.StatusCompleted {
		return nil, ErrInvalidState
	}
	if err := validateDetails(req.ContentType, details); err != nil {
		return nil, err
	}

	fields := store.Fields{
		"Details": details,
		"Output":  output,
	}
	if err := s.content.Update(ctx, id, fields); err != nil {
		return nil, fmt.Errorf("failed to save content request: %w", err)
	}
	req.Details = details
	req.Output = output

	s.log.Info("content request saved", "record_id", id)
	return req, nil
}

// SaveAndRegenerate saves edited parameters on a completed request and sends
// it back through generation. This is a new generation run, so a fresh debit
// applies.
func (s *Service) SaveAndRegenerate(ctx context.Context, sess session.Session, id string, details store.Details) (*store.ContentRequest, error) {
	req, err := s.Get(ctx, sess, id)
	if err != nil {
		return nil, err
	}
	if req.Status != store.StatusCompleted {
		return nil, ErrInvalidState
	}
	if err := validateDetails(req.ContentType, details); err != nil {
		return nil, err
	}

	cost := entitlement.Cost(req.ContentType, details.WordCount())
	if _, err := s.entitlement.Debit(ctx, sess.UserID, cost); err != nil {
		return nil, err
	}

	fields := store.Fields{
		"Details": details,
		"Status":  store.StatusRequested,
		"Output":  "",
	}
	if err := s.content.Update(ctx, id, fields); err != nil {
		return nil, fmt.Errorf("failed to update content request: %w", err)
	}
	req.Details = details
	req.Status = store.StatusRequested
	req.Output = ""

	if err := s.dispatch(ctx, req, cost); err != nil {
		return req, err
	}

	s.log.Info("content request regenerating", "record_id", id, "cost", cost)
	return req, nil
}

func (s *Service) dispatch(ctx context.Context, req *store.ContentRequest, cost int) error {
	err := s.dispatcher.DispatchContent(ctx, fulfillment.ContentJob{
		RecordID:    req.ID,
		UserID:      req.UserID,
		UserEmail:   req.UserEmail,
		ContentType: req.ContentType,
		Details:     req.Details,
		TokenCost:   cost,
	})
	if err != nil {
		// Record stays Requested and the debit stands; the pipeline
		// sweeps the store for records it never received.
		s.log.Error("fulfillment handoff failed", "record_id", req.ID, "error", err)
		return fmt.Errorf("request recorded but handoff failed: %w", err)
	}
	return nil
}
