package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Memory is an in-memory implementation of all three stores. It backs tests,
// the seed command and local development without record store credentials.
// Semantics match the hosted store: per-record last-write-wins updates, no
// cross-record transactions.
type Memory struct {
	mu      sync.Mutex
	nextID  int
	users   map[string]*User
	content map[string]*ContentRequest
	resumes map[string]*ResumeRecord
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{
		users:   make(map[string]*User),
		content: make(map[string]*ContentRequest),
		resumes: make(map[string]*ResumeRecord),
	}
}

func (m *Memory) newID(prefix string) string {
	m.nextID++
	return fmt.Sprintf("%s%06d", prefix, m.nextID)
}

// Users returns the UserStore view of the memory store
func (m *Memory) Users() UserStore { return (*memoryUsers)(m) }

// Content returns the ContentStore view of the memory store
func (m *Memory) Content() ContentStore { return (*memoryContent)(m) }

// Resumes returns the ResumeStore view of the memory store
func (m *Memory) Resumes() ResumeStore { return (*memoryResumes)(m) }

type memoryUsers Memory

func (s *memoryUsers) FindByEmail(_ context.Context, email string) (*User, error) {
	m := (*Memory)(s)
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memoryUsers) Get(_ context.Context, id string) (*User, error) {
	m := (*Memory)(s)
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *memoryUsers) Create(_ context.Context, u *User) (string, error) {
	m := (*Memory)(s)
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *u
	cp.ID = m.newID("recUsr")
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	m.users[cp.ID] = &cp
	return cp.ID, nil
}

func (s *memoryUsers) Update(_ context.Context, id string, fields Fields) error {
	m := (*Memory)(s)
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}

	for k, v := range fields {
		switch k {
		case "Email":
			u.Email = v.(string)
		case "Password":
			u.PasswordHash = v.(string)
		case "Subscription":
			u.Tier = asTier(v)
		case "SubscriptionEnd":
			u.SubscriptionEnd = asTimePtr(v)
		case "Tokens":
			u.Tokens = v.(int)
		case "LastReset":
			if t := asTimePtr(v); t != nil {
				u.LastReset = *t
			}
		case "Name":
			u.Name = v.(string)
		case "Phone":
			u.Phone = v.(string)
		case "CompanyName":
			u.CompanyName = v.(string)
		case "Website":
			u.Website = v.(string)
		default:
			return fmt.Errorf("unknown user field %q", k)
		}
	}
	return nil
}

type memoryContent Memory

func (s *memoryContent) ListByUser(_ context.Context, userEmail string, opts ListOptions) ([]*ContentRequest, error) {
	m := (*Memory)(s)
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*ContentRequest
	for _, r := range m.content {
		if !strings.EqualFold(r.UserEmail, userEmail) {
			continue
		}
		if !statusMatches(r.Status, opts.Statuses) {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	sortContentByCreatedAt(out)
	return out, nil
}

func (s *memoryContent) Get(_ context.Context, id string) (*ContentRequest, error) {
	m := (*Memory)(s)
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.content[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *memoryContent) Create(_ context.Context, r *ContentRequest) (string, error) {
	m := (*Memory)(s)
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *r
	cp.ID = m.newID("recCnt")
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	m.content[cp.ID] = &cp
	return cp.ID, nil
}

func (s *memoryContent) Update(_ context.Context, id string, fields Fields) error {
	m := (*Memory)(s)
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.content[id]
	if !ok {
		return ErrNotFound
	}

	for k, v := range fields {
		switch k {
		case "Status":
			r.Status = asStatus(v)
		case "Details":
			r.Details = v.(Details)
		case "Output":
			r.Output = v.(string)
		case "ContentType":
			r.ContentType = v.(ContentType)
		default:
			return fmt.Errorf("unknown content field %q", k)
		}
	}
	return nil
}

type memoryResumes Memory

func (s *memoryResumes) ListByUser(_ context.Context, userEmail string, opts ListOptions) ([]*ResumeRecord, error) {
	m := (*Memory)(s)
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*ResumeRecord
	for _, r := range m.resumes {
		if !strings.EqualFold(r.UserEmail, userEmail) {
			continue
		}
		if !statusMatches(r.Status, opts.Statuses) {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	sortResumesByCreatedAt(out)
	return out, nil
}

func (s *memoryResumes) Get(_ context.Context, id string) (*ResumeRecord, error) {
	m := (*Memory)(s)
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.resumes[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *memoryResumes) Create(_ context.Context, r *ResumeRecord) (string, error) {
	m := (*Memory)(s)
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *r
	cp.ID = m.newID("recRes")
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	m.resumes[cp.ID] = &cp
	return cp.ID, nil
}

func (s *memoryResumes) Update(_ context.Context, id string, fields Fields) error {
	m := (*Memory)(s)
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.resumes[id]
	if !ok {
		return ErrNotFound
	}

	for k, v := range fields {
		switch k {
		case "Status":
			r.Status = asStatus(v)
		case "Output":
			r.Output = v.(string)
		case "FileURL":
			r.FileURL = v.(string)
		case "JobURL":
			r.JobURL = v.(string)
		default:
			return fmt.Errorf("unknown resume field %q", k)
		}
	}
	return nil
}

func statusMatches(st Status, filter []Status) bool {
	if len(filter) == 0 {
		return true
	}
	for _, f := range filter {
		if st == f {
			return true
		}
	}
	return false
}

func asTier(v any) Tier {
	switch tv := v.(type) {
	case Tier:
		return tv
	case string:
		return Tier(tv)
	}
	return TierFree
}

func asStatus(v any) Status {
	switch sv := v.(type) {
	case Status:
		return sv
	case string:
		return Status(sv)
	}
	return ""
}

func asTimePtr(v any) *time.Time {
	switch tv := v.(type) {
	case time.Time:
		return &tv
	case *time.Time:
		return tv
	case nil:
		return nil
	}
	return nil
}

// Newest first, matching the hosted store's view ordering
func sortContentByCreatedAt(items []*ContentRequest) {
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
}

func sortResumesByCreatedAt(items []*ResumeRecord) {
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
}
