package store

import (
	"context"
	"errors"
	"time"
)

// The application persists nothing locally: users, content requests and resume
// records live in an external hosted record store reached over HTTP. Services
// depend on the narrow interfaces below; the Airtable-backed implementation is
// in airtable.go and an in-memory implementation (tests, seeding, local dev)
// in memory.go.

var (
	// ErrNotFound is returned when a record does not exist
	ErrNotFound = errors.New("record not found")
	// ErrRateLimited is returned when the record store rejects the call with 429
	ErrRateLimited = errors.New("record store rate limit exceeded")
)

// Tier is a subscription level
type Tier string

const (
	TierFree    Tier = "Free"
	TierPremium Tier = "Premium"
)

// Status is the lifecycle state of a content request or resume record.
// The application only ever writes Requested and Cancelled (and the
// clear-and-reset back to Requested); In Progress, Completed and Failed are
// written by the external fulfillment worker out of band.
type Status string

const (
	StatusRequested  Status = "Requested"
	StatusInProgress Status = "In Progress"
	StatusCompleted  Status = "Completed"
	StatusFailed     Status = "Failed"
	StatusCancelled  Status = "Cancelled"
)

// ContentType identifies what kind of content a request is for
type ContentType string

const (
	ContentBlogPost   ContentType = "Blog Post"
	ContentSEOArticle ContentType = "SEO Article"
	ContentSocialPost ContentType = "Social Media Post"
)

// ResumeType identifies the kind of resume record
type ResumeType string

const (
	ResumeUploaded       ResumeType = "User Uploaded"
	ResumeBasicEnhanced  ResumeType = "Basic Enhanced"
	ResumeTargetEnhanced ResumeType = "Targeted Enhanced"
)

// User is an account record.
// Store columns: Email, Password, Subscription, SubscriptionEnd, Tokens,
// LastReset, Name, Phone, CompanyName, Website.
type User struct {
	ID              string
	Email           string
	PasswordHash    string
	Tier            Tier
	SubscriptionEnd *time.Time // nil for Free
	Tokens          int
	LastReset       time.Time
	Name            string
	Phone           string
	CompanyName     string
	Website         string
	CreatedAt       time.Time
}

// BlogParams are the typed details of a Blog Post request
type BlogParams struct {
	Topic     string   `json:"topic"`
	Keywords  []string `json:"keywords,omitempty"`
	WordCount int      `json:"word_count"`
}

// SeoParams are the typed details of an SEO Article request
type SeoParams struct {
	Topic     string   `json:"topic"`
	Keywords  []string `json:"keywords,omitempty"`
	WordCount int      `json:"word_count"`
}

// SocialParams are the typed details of a Social Media Post request
type SocialParams struct {
	Platform string `json:"platform"`
	Topic    string `json:"topic"`
}

// Details is a tagged payload: exactly one branch is set, and it must match
// the request's ContentType. It is stored JSON-encoded in the Details column.
type Details struct {
	Blog   *BlogParams   `json:"blog,omitempty"`
	Seo    *SeoParams    `json:"seo,omitempty"`
	Social *SocialParams `json:"social,omitempty"`
}

// WordCount returns the requested word count, or 0 for types without one
func (d Details) WordCount() int {
	switch {
	case d.Blog != nil:
		return d.Blog.WordCount
	case d.Seo != nil:
		return d.Seo.WordCount
	}
	return 0
}

// ContentRequest is a content-generation request record.
// Store columns: UserID, UserEmail, ContentType, Details, Status, Output.
type ContentRequest struct {
	ID          string
	UserID      string
	UserEmail   string
	ContentType ContentType
	Details     Details
	Status      Status
	Output      string
	CreatedAt   time.Time
}

// ResumeRecord is an uploaded or enhanced resume record
type ResumeRecord struct {
	ID               string
	UserID           string
	UserEmail        string
	OriginalFilename string
	FileURL          string
	Type             ResumeType
	JobURL           string // Targeted Enhanced only
	Status           Status
	Output           string
	CreatedAt        time.Time
}

// Fields is a partial update: column name to new value
type Fields map[string]any

// ListOptions filters a listing. Zero value means no filter.
type ListOptions struct {
	Statuses []Status
}

// UserStore persists account records
type UserStore interface {
	// FindByEmail returns ErrNotFound when no account uses the email
	FindByEmail(ctx context.Context, email string) (*User, error)
	Get(ctx context.Context, id string) (*User, error)
	Create(ctx context.Context, u *User) (string, error)
	Update(ctx context.Context, id string, fields Fields) error
}

// ContentStore persists content requests
type ContentStore interface {
	ListByUser(ctx context.Context, userEmail string, opts ListOptions) ([]*ContentRequest, error)
	Get(ctx context.Context, id string) (*ContentRequest, error)
	Create(ctx context.Context, r *ContentRequest) (string, error)
	Update(ctx context.Context, id string, fields Fields) error
}

// ResumeStore persists resume records
type ResumeStore interface {
	ListByUser(ctx context.Context, userEmail string, opts ListOptions) ([]*ResumeRecord, error)
	Get(ctx context.Context, id string) (*ResumeRecord, error)
	Create(ctx context.Context, r *ResumeRecord) (string, error)
	Update(ctx context.Context, id string, fields Fields) error
}
