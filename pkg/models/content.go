package models

// BlogParamsRequest carries blog post parameters
type BlogParamsRequest struct {
	Topic     string   `json:"topic" validate:"required,min=3"`
	Keywords  []string `json:"keywords,omitempty"`
	WordCount int      `json:"word_count" validate:"required,min=100,max=10000"`
}

// SeoParamsRequest carries SEO article parameters
type SeoParamsRequest struct {
	Topic     string   `json:"topic" validate:"required,min=3"`
	Keywords  []string `json:"keywords" validate:"required,min=1"`
	WordCount int      `json:"word_count" validate:"required,min=100,max=10000"`
}

// SocialParamsRequest carries social media post parameters
type SocialParamsRequest struct {
	Platform string `json:"platform" validate:"required,oneof=LinkedIn Twitter Facebook Instagram"`
	Topic    string `json:"topic" validate:"required,min=3"`
}

// CreateContentRequest represents a new content generation request
type CreateContentRequest struct {
	ContentType string               `json:"content_type" validate:"required"`
	Blog        *BlogParamsRequest   `json:"blog,omitempty"`
	Seo         *SeoParamsRequest    `json:"seo,omitempty"`
	Social      *SocialParamsRequest `json:"social,omitempty"`
}

// UpdateContentRequest edits a completed request
type UpdateContentRequest struct {
	Blog       *BlogParamsRequest   `json:"blog,omitempty"`
	Seo        *SeoParamsRequest    `json:"seo,omitempty"`
	Social     *SocialParamsRequest `json:"social,omitempty"`
	Output     string               `json:"output"`
	Regenerate bool                 `json:"regenerate"`
}

// ResubmitContentRequest optionally edits parameters before a failed
// request is retried
type ResubmitContentRequest struct {
	Blog   *BlogParamsRequest   `json:"blog,omitempty"`
	Seo    *SeoParamsRequest    `json:"seo,omitempty"`
	Social *SocialParamsRequest `json:"social,omitempty"`
}

// ContentResponse represents a content request in responses
type ContentResponse struct {
	ID          string      `json:"id"`
	ContentType string      `json:"content_type"`
	Details     interface{} `json:"details"`
	Status      string      `json:"status"`
	Output      string      `json:"output,omitempty"`
	CreatedAt   string      `json:"created_at"`
}

// ContentListResponse wraps a content listing
type ContentListResponse struct {
	Items []ContentResponse `json:"items"`
	Total int               `json:"total"`
}

// EnhanceResumeRequest asks for an enhancement of an uploaded resume
type EnhanceResumeRequest struct {
	ResumeID   string `json:"resume_id" validate:"required"`
	ResumeType string `json:"resume_type" validate:"required,oneof='Basic Enhanced' 'Targeted Enhanced'"`
	JobURL     string `json:"job_url,omitempty" validate:"omitempty,url"`
}

// ResumeResponse represents a resume record in responses
type ResumeResponse struct {
	ID               string `json:"id"`
	OriginalFilename string `json:"original_filename"`
	FileURL          string `json:"file_url"`
	Type             string `json:"type"`
	JobURL           string `json:"job_url,omitempty"`
	Status           string `json:"status"`
	Output           string `json:"output,omitempty"`
	CreatedAt        string `json:"created_at"`
}
