package content

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/contentdesk/contentdesk/pkg/entitlement"
	"github.com/contentdesk/contentdesk/pkg/fulfillment"
	"github.com/contentdesk/contentdesk/pkg/logger"
	"github.com/contentdesk/contentdesk/pkg/session"
	"github.com/contentdesk/contentdesk/pkg/storage"
	"github.com/contentdesk/contentdesk/pkg/store"
)

// ErrJobURLRequired is returned when a targeted enhancement lacks a job
// posting URL.
var ErrJobURLRequired = errors.New("targeted enhancement requires a job URL")

// ResumeService manages resume uploads and enhancement requests.
type ResumeService struct {
	resumes     store.ResumeStore
	files       storage.Store
	entitlement *entitlement.Service
	dispatcher  *fulfillment.Dispatcher
	log         logger.Logger
}

// NewResumeService creates a new resume service.
func NewResumeService(resumes store.ResumeStore, files storage.Store, ent *entitlement.Service, dispatcher *fulfillment.Dispatcher, log logger.Logger) *ResumeService {
	return &ResumeService{
		resumes:     resumes,
		files:       files,
		entitlement: ent,
		dispatcher:  dispatcher,
		log:         log,
	}
}

// Upload stores the user's own resume file. Uploads cost nothing and are
// recorded Completed since there is nothing to generate.
func (s *ResumeService) Upload(ctx context.Context, sess session.Session, filename string, file io.Reader) (*store.ResumeRecord, error) {
	url, err := s.files.Save(ctx, sess.UserID, filename, file)
	if err != nil {
		return nil, fmt.Errorf("failed to store resume file: %w", err)
	}

	rec := &store.ResumeRecord{
		UserID:           sess.UserID,
		UserEmail:        sess.Email,
		OriginalFilename: filename,
		FileURL:          url,
		Type:             store.ResumeUploaded,
		Status:           store.StatusCompleted,
	}
	id, err := s.resumes.Create(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("failed to create resume record: %w", err)
	}
	rec.ID = id

	s.log.Info("resume uploaded", "record_id", id, "filename", filename)
	return rec, nil
}

// Enhance debits the flat enhancement cost and dispatches the source resume
// to the pipeline. Targeted enhancements tailor the resume to a specific job
// posting and require its URL.
func (s *ResumeService) Enhance(ctx context.Context, sess session.Session, sourceID string, resumeType store.ResumeType, jobURL string) (*store.ResumeRecord, error) {
	if resumeType != store.ResumeBasicEnhanced && resumeType != store.ResumeTargetEnhanced {
		return nil, fmt.Errorf("unknown resume type %q", resumeType)
	}
	if resumeType == store.ResumeTargetEnhanced && jobURL == "" {
		return nil, ErrJobURLRequired
	}

	source, err := s.resumes.Get(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	if source.UserID != sess.UserID {
		return nil, ErrNotOwner
	}

	cost := entitlement.ResumeCost(resumeType)
	if _, err := s.entitlement.Debit(ctx, sess.UserID, cost); err != nil {
		return nil, err
	}

	rec := &store.ResumeRecord{
		UserID:           sess.UserID,
		UserEmail:        sess.Email,
		OriginalFilename: source.OriginalFilename,
		FileURL:          source.FileURL,
		Type:             resumeType,
		JobURL:           jobURL,
		Status:           store.StatusRequested,
	}
	id, err := s.resumes.Create(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("failed to create resume record: %w", err)
	}
	rec.ID = id

	err = s.dispatcher.DispatchResume(ctx, fulfillment.ResumeJob{
		RecordID:   id,
		UserID:     sess.UserID,
		UserEmail:  sess.Email,
		ResumeType: resumeType,
		FileURL:    rec.FileURL,
		JobURL:     jobURL,
		TokenCost:  cost,
	})
	if err != nil {
		s.log.Error("fulfillment handoff failed", "record_id", id, "error", err)
		return rec, fmt.Errorf("request recorded but handoff failed: %w", err)
	}

	s.log.Info("resume enhancement requested", "record_id", id, "type", resumeType, "cost", cost)
	return rec, nil
}

// ListResumes returns the user's resume records, newest first. Cancelled
// records are hidden by default, matching content listing.
func (s *ResumeService) ListResumes(ctx context.Context, sess session.Session, statuses []store.Status) ([]*store.ResumeRecord, error) {
	if len(statuses) == 0 {
		statuses = []store.Status{
			store.StatusRequested,
			store.StatusInProgress,
			store.StatusCompleted,
			store.StatusFailed,
		}
	}
	items, err := s.resumes.ListByUser(ctx, sess.Email, store.ListOptions{Statuses: statuses})
	if err != nil {
		return nil, fmt.Errorf("failed to list resumes: %w", err)
	}
	return items, nil
}
