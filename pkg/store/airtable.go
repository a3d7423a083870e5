package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is an HTTP client for an Airtable-compatible record store API.
// Every operation is a synchronous round-trip; failures are returned to the
// caller, never swallowed.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	baseID     string
	observer   RequestObserver
}

// RequestObserver is called after every record store round-trip.
type RequestObserver func(table, operation string, duration time.Duration)

// NewClient creates a record store client
func NewClient(baseURL, token, baseID string) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		baseID:  baseID,
	}
}

// SetObserver installs a round-trip observer, typically a metrics recorder.
func (c *Client) SetObserver(fn RequestObserver) {
	c.observer = fn
}

func (c *Client) observe(table, operation string, start time.Time) {
	if c.observer != nil {
		c.observer(table, operation, time.Since(start))
	}
}

// record is the wire shape of a single stored record
type record struct {
	ID          string         `json:"id"`
	Fields      map[string]any `json:"fields"`
	CreatedTime time.Time      `json:"createdTime"`
}

type recordList struct {
	Records []record `json:"records"`
	Offset  string   `json:"offset,omitempty"`
}

func (c *Client) tableURL(table string) string {
	return fmt.Sprintf("%s/%s/%s", c.baseURL, c.baseID, url.PathEscape(table))
}

func (c *Client) do(ctx context.Context, method, rawURL string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("record store request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests:
		return ErrRateLimited
	case resp.StatusCode >= 400:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("record store returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

func (c *Client) getRecord(ctx context.Context, table, id string) (*record, error) {
	defer c.observe(table, "get", time.Now())
	var rec record
	if err := c.do(ctx, http.MethodGet, c.tableURL(table)+"/"+url.PathEscape(id), nil, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// listRecords fetches all records matching the formula, following pagination
func (c *Client) listRecords(ctx context.Context, table, formula string) ([]record, error) {
	defer c.observe(table, "list", time.Now())
	var all []record
	offset := ""

	for {
		q := url.Values{}
		q.Set("pageSize", "100")
		if formula != "" {
			q.Set("filterByFormula", formula)
		}
		if offset != "" {
			q.Set("offset", offset)
		}

		var page recordList
		if err := c.do(ctx, http.MethodGet, c.tableURL(table)+"?"+q.Encode(), nil, &page); err != nil {
			return nil, err
		}

		all = append(all, page.Records...)
		if page.Offset == "" {
			return all, nil
		}
		offset = page.Offset
	}
}

func (c *Client) createRecord(ctx context.Context, table string, fields map[string]any) (*record, error) {
	defer c.observe(table, "create", time.Now())
	body := map[string]any{
		"fields":   fields,
		"typecast": true,
	}
	var rec record
	if err := c.do(ctx, http.MethodPost, c.tableURL(table), body, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *Client) updateRecord(ctx context.Context, table, id string, fields map[string]any) error {
	defer c.observe(table, "update", time.Now())
	body := map[string]any{
		"fields":   fields,
		"typecast": true,
	}
	return c.do(ctx, http.MethodPatch, c.tableURL(table)+"/"+url.PathEscape(id), body, nil)
}

// escapeFormulaValue escapes a value for use inside a single-quoted formula string
func escapeFormulaValue(v string) string {
	return strings.ReplaceAll(v, "'", "\\'")
}

// Field access helpers. The store API returns numbers as float64 and
// timestamps as RFC3339 strings.

func fieldString(fields map[string]any, key string) string {
	if v, ok := fields[key].(string); ok {
		return v
	}
	return ""
}

func fieldInt(fields map[string]any, key string) int {
	switch v := fields[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}

func fieldTime(fields map[string]any, key string) (time.Time, bool) {
	s := fieldString(fields, key)
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// AirtableUserStore implements UserStore against the record store API
type AirtableUserStore struct {
	client *Client
	table  string
}

// NewUserStore creates a UserStore backed by the given table
func NewUserStore(client *Client, table string) *AirtableUserStore {
	return &AirtableUserStore{client: client, table: table}
}

// FindByEmail queries the table by formula on the Email column
func (s *AirtableUserStore) FindByEmail(ctx context.Context, email string) (*User, error) {
	formula := fmt.Sprintf("{Email}='%s'", escapeFormulaValue(email))
	records, err := s.client.listRecords(ctx, s.table, formula)
	if err != nil {
		return nil, fmt.Errorf("failed to query user by email: %w", err)
	}
	if len(records) == 0 {
		return nil, ErrNotFound
	}
	return userFromRecord(&records[0]), nil
}

// Get fetches a user by record ID
func (s *AirtableUserStore) Get(ctx context.Context, id string) (*User, error) {
	rec, err := s.client.getRecord(ctx, s.table, id)
	if err != nil {
		return nil, err
	}
	return userFromRecord(rec), nil
}

// Create persists a new user and returns its record ID
func (s *AirtableUserStore) Create(ctx context.Context, u *User) (string, error) {
	fields := map[string]any{
		"Email":        u.Email,
		"Password":     u.PasswordHash,
		"Subscription": string(u.Tier),
		"Tokens":       u.Tokens,
		"LastReset":    u.LastReset.Format(time.RFC3339),
	}
	if u.SubscriptionEnd != nil {
		fields["SubscriptionEnd"] = u.SubscriptionEnd.Format(time.RFC3339)
	}
	if u.Name != "" {
		fields["Name"] = u.Name
	}
	if u.Phone != "" {
		fields["Phone"] = u.Phone
	}
	if u.CompanyName != "" {
		fields["CompanyName"] = u.CompanyName
	}
	if u.Website != "" {
		fields["Website"] = u.Website
	}

	rec, err := s.client.createRecord(ctx, s.table, fields)
	if err != nil {
		return "", fmt.Errorf("failed to create user: %w", err)
	}
	return rec.ID, nil
}

// Update applies a partial update to a user record
func (s *AirtableUserStore) Update(ctx context.Context, id string, fields Fields) error {
	if err := s.client.updateRecord(ctx, s.table, id, normalizeFields(fields)); err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return nil
}

func userFromRecord(rec *record) *User {
	u := &User{
		ID:           rec.ID,
		Email:        fieldString(rec.Fields, "Email"),
		PasswordHash: fieldString(rec.Fields, "Password"),
		Tier:         Tier(fieldString(rec.Fields, "Subscription")),
		Tokens:       fieldInt(rec.Fields, "Tokens"),
		Name:         fieldString(rec.Fields, "Name"),
		Phone:        fieldString(rec.Fields, "Phone"),
		CompanyName:  fieldString(rec.Fields, "CompanyName"),
		Website:      fieldString(rec.Fields, "Website"),
		CreatedAt:    rec.CreatedTime,
	}
	if u.Tier == "" {
		u.Tier = TierFree
	}
	if end, ok := fieldTime(rec.Fields, "SubscriptionEnd"); ok {
		u.SubscriptionEnd = &end
	}
	if reset, ok := fieldTime(rec.Fields, "LastReset"); ok {
		u.LastReset = reset
	} else {
		u.LastReset = rec.CreatedTime
	}
	return u
}

// normalizeFields converts Go values into their wire representation
func normalizeFields(fields Fields) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		switch tv := v.(type) {
		case time.Time:
			out[k] = tv.Format(time.RFC3339)
		case *time.Time:
			if tv == nil {
				out[k] = nil
			} else {
				out[k] = tv.Format(time.RFC3339)
			}
		case Tier:
			out[k] = string(tv)
		case Status:
			out[k] = string(tv)
		case ContentType:
			out[k] = string(tv)
		case ResumeType:
			out[k] = string(tv)
		case Details:
			out[k] = encodeDetails(tv)
		default:
			out[k] = v
		}
	}
	return out
}

func encodeDetails(d Details) string {
	buf, err := json.Marshal(d)
	if err != nil {
		return ""
	}
	return string(buf)
}

func decodeDetails(s string) Details {
	var d Details
	if s == "" {
		return d
	}
	// Legacy records hold free text in the Details column; keep it readable
	// as a topic-only blog payload rather than failing the whole listing.
	if err := json.Unmarshal([]byte(s), &d); err != nil {
		return Details{Blog: &BlogParams{Topic: s}}
	}
	return d
}

// AirtableContentStore implements ContentStore against the record store API
type AirtableContentStore struct {
	client *Client
	table  string
}

// NewContentStore creates a ContentStore backed by the given table
func NewContentStore(client *Client, table string) *AirtableContentStore {
	return &AirtableContentStore{client: client, table: table}
}

// ListByUser returns the user's content requests, optionally filtered by status
func (s *AirtableContentStore) ListByUser(ctx context.Context, userEmail string, opts ListOptions) ([]*ContentRequest, error) {
	formula := listFormula(userEmail, opts)
	records, err := s.client.listRecords(ctx, s.table, formula)
	if err != nil {
		return nil, fmt.Errorf("failed to list content requests: %w", err)
	}

	out := make([]*ContentRequest, 0, len(records))
	for i := range records {
		out = append(out, contentFromRecord(&records[i]))
	}
	return out, nil
}

// Get fetches a content request by record ID
func (s *AirtableContentStore) Get(ctx context.Context, id string) (*ContentRequest, error) {
	rec, err := s.client.getRecord(ctx, s.table, id)
	if err != nil {
		return nil, err
	}
	return contentFromRecord(rec), nil
}

// Create persists a new content request and returns its record ID
func (s *AirtableContentStore) Create(ctx context.Context, r *ContentRequest) (string, error) {
	fields := map[string]any{
		"UserID":      r.UserID,
		"UserEmail":   r.UserEmail,
		"ContentType": string(r.ContentType),
		"Details":     encodeDetails(r.Details),
		"Status":      string(r.Status),
	}
	if r.Output != "" {
		fields["Output"] = r.Output
	}

	rec, err := s.client.createRecord(ctx, s.table, fields)
	if err != nil {
		return "", fmt.Errorf("failed to create content request: %w", err)
	}
	return rec.ID, nil
}

// Update applies a partial update to a content request record
func (s *AirtableContentStore) Update(ctx context.Context, id string, fields Fields) error {
	if err := s.client.updateRecord(ctx, s.table, id, normalizeFields(fields)); err != nil {
		return fmt.Errorf("failed to update content request: %w", err)
	}
	return nil
}

func contentFromRecord(rec *record) *ContentRequest {
	return &ContentRequest{
		ID:          rec.ID,
		UserID:      fieldString(rec.Fields, "UserID"),
		UserEmail:   fieldString(rec.Fields, "UserEmail"),
		ContentType: ContentType(fieldString(rec.Fields, "ContentType")),
		Details:     decodeDetails(fieldString(rec.Fields, "Details")),
		Status:      Status(fieldString(rec.Fields, "Status")),
		Output:      fieldString(rec.Fields, "Output"),
		CreatedAt:   rec.CreatedTime,
	}
}

// AirtableResumeStore implements ResumeStore against the record store API
type AirtableResumeStore struct {
	client *Client
	table  string
}

// NewResumeStore creates a ResumeStore backed by the given table
func NewResumeStore(client *Client, table string) *AirtableResumeStore {
	return &AirtableResumeStore{client: client, table: table}
}

// ListByUser returns the user's resume records, optionally filtered by status
func (s *AirtableResumeStore) ListByUser(ctx context.Context, userEmail string, opts ListOptions) ([]*ResumeRecord, error) {
	formula := listFormula(userEmail, opts)
	records, err := s.client.listRecords(ctx, s.table, formula)
	if err != nil {
		return nil, fmt.Errorf("failed to list resume records: %w", err)
	}

	out := make([]*ResumeRecord, 0, len(records))
	for i := range records {
		out = append(out, resumeFromRecord(&records[i]))
	}
	return out, nil
}

// Get fetches a resume record by record ID
func (s *AirtableResumeStore) Get(ctx context.Context, id string) (*ResumeRecord, error) {
	rec, err := s.client.getRecord(ctx, s.table, id)
	if err != nil {
		return nil, err
	}
	return resumeFromRecord(rec), nil
}

// Create persists a new resume record and returns its record ID
func (s *AirtableResumeStore) Create(ctx context.Context, r *ResumeRecord) (string, error) {
	fields := map[string]any{
		"UserID":           r.UserID,
		"UserEmail":        r.UserEmail,
		"OriginalFilename": r.OriginalFilename,
		"FileURL":          r.FileURL,
		"Type":             string(r.Type),
		"Status":           string(r.Status),
	}
	if r.JobURL != "" {
		fields["JobURL"] = r.JobURL
	}
	if r.Output != "" {
		fields["Output"] = r.Output
	}

	rec, err := s.client.createRecord(ctx, s.table, fields)
	if err != nil {
		return "", fmt.Errorf("failed to create resume record: %w", err)
	}
	return rec.ID, nil
}

// Update applies a partial update to a resume record
func (s *AirtableResumeStore) Update(ctx context.Context, id string, fields Fields) error {
	if err := s.client.updateRecord(ctx, s.table, id, normalizeFields(fields)); err != nil {
		return fmt.Errorf("failed to update resume record: %w", err)
	}
	return nil
}

func resumeFromRecord(rec *record) *ResumeRecord {
	return &ResumeRecord{
		ID:               rec.ID,
		UserID:           fieldString(rec.Fields, "UserID"),
		UserEmail:        fieldString(rec.Fields, "UserEmail"),
		OriginalFilename: fieldString(rec.Fields, "OriginalFilename"),
		FileURL:          fieldString(rec.Fields, "FileURL"),
		Type:             ResumeType(fieldString(rec.Fields, "Type")),
		JobURL:           fieldString(rec.Fields, "JobURL"),
		Status:           Status(fieldString(rec.Fields, "Status")),
		Output:           fieldString(rec.Fields, "Output"),
		CreatedAt:        rec.CreatedTime,
	}
}

// listFormula builds the filterByFormula expression for a per-user listing
func listFormula(userEmail string, opts ListOptions) string {
	base := fmt.Sprintf("{UserEmail}='%s'", escapeFormulaValue(userEmail))
	if len(opts.Statuses) == 0 {
		return base
	}

	clauses := make([]string, 0, len(opts.Statuses))
	for _, st := range opts.Statuses {
		clauses = append(clauses, fmt.Sprintf("{Status}='%s'", escapeFormulaValue(string(st))))
	}
	if len(clauses) == 1 {
		return fmt.Sprintf("AND(%s,%s)", base, clauses[0])
	}
	return fmt.Sprintf("AND(%s,OR(%s))", base, strings.Join(clauses, ","))
}
