package handlers

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	custommw "github.com/contentdesk/contentdesk/pkg/api/middleware"
	"github.com/contentdesk/contentdesk/pkg/content"
	"github.com/contentdesk/contentdesk/pkg/entitlement"
	"github.com/contentdesk/contentdesk/pkg/fulfillment"
	"github.com/contentdesk/contentdesk/pkg/logger"
	"github.com/contentdesk/contentdesk/pkg/models"
	"github.com/contentdesk/contentdesk/pkg/session"
	"github.com/contentdesk/contentdesk/pkg/store"
)

type contentFixture struct {
	handler *ContentHandler
	mem     *store.Memory
	sess    session.Session
}

func setupContent(t *testing.T) *contentFixture {
	t.Helper()

	endpoint := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(endpoint.Close)

	mem := store.NewMemory()
	log := logger.Default()
	ent := entitlement.NewService(mem.Users(), nil, log)
	dispatcher := fulfillment.NewDispatcher(endpoint.URL, "test-secret", nil, log)
	svc := content.NewService(mem.Content(), ent, dispatcher, log)

	id, err := mem.Users().Create(context.Background(), &store.User{
		Email:     "writer@example.com",
		Name:      "Writer",
		Tier:      store.TierFree,
		Tokens:    entitlement.StarterTokens,
		LastReset: time.Now(),
	})
	require.NoError(t, err)

	return &contentFixture{
		handler: NewContentHandler(svc, nil),
		mem:     mem,
		sess:    session.Session{UserID: id, Email: "writer@example.com", Tier: store.TierFree},
	}
}

func (f *contentFixture) newContext(t *testing.T, method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()

	e := echo.New()
	var req *http.Request
	if body != "" {
		req = jsonRequest(method, target, body)
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set(custommw.SessionKey, f.sess)
	return c, rec
}

func (f *contentFixture) seedRequest(t *testing.T, status store.Status) string {
	t.Helper()

	id, err := f.mem.Content().Create(context.Background(), &store.ContentRequest{
		UserID:      f.sess.UserID,
		UserEmail:   f.sess.Email,
		ContentType: store.ContentSocialPost,
		Details:     store.Details{Social: &store.SocialParams{Platform: "LinkedIn", Topic: "launch"}},
		Status:      status,
	})
	require.NoError(t, err)
	return id
}

func TestContentCreate_SocialPost(t *testing.T) {
	f := setupContent(t)

	c, rec := f.newContext(t, http.MethodPost, "/api/content",
		`{"content_type":"Social Media Post","social":{"platform":"LinkedIn","topic":"product launch"}}`)

	err := f.handler.Create(c)
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, rec.Code)

	var resp models.ContentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(store.StatusRequested), resp.Status)
	assert.NotEmpty(t, resp.ID)

	u, err := f.mem.Users().Get(context.Background(), f.sess.UserID)
	require.NoError(t, err)
	assert.Equal(t, entitlement.StarterTokens-2, u.Tokens)
}

func TestContentCreate_InsufficientTokens(t *testing.T) {
	f := setupContent(t)
	require.NoError(t, f.mem.Users().Update(context.Background(), f.sess.UserID, store.Fields{"Tokens": 1}))

	c, rec := f.newContext(t, http.MethodPost, "/api/content",
		`{"content_type":"Social Media Post","social":{"platform":"LinkedIn","topic":"product launch"}}`)

	err := f.handler.Create(c)
	require.NoError(t, err)
	assert.Equal(t, http.StatusPaymentRequired, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "insufficient_tokens", resp["error"])
	assert.Equal(t, float64(2), resp["required"])
	assert.Equal(t, float64(1), resp["available"])
}

func TestContentCreate_DetailsMismatch(t *testing.T) {
	f := setupContent(t)

	// Blog details on a social request must be rejected before any debit
	c, rec := f.newContext(t, http.MethodPost, "/api/content",
		`{"content_type":"Social Media Post","blog":{"topic":"wrong branch","word_count":500}}`)

	err := f.handler.Create(c)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	u, err := f.mem.Users().Get(context.Background(), f.sess.UserID)
	require.NoError(t, err)
	assert.Equal(t, entitlement.StarterTokens, u.Tokens)
}

func TestContentList_DefaultHidesCancelled(t *testing.T) {
	f := setupContent(t)
	f.seedRequest(t, store.StatusRequested)
	f.seedRequest(t, store.StatusCompleted)
	f.seedRequest(t, store.StatusCancelled)

	c, rec := f.newContext(t, http.MethodGet, "/api/content", "")
	require.NoError(t, f.handler.List(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp models.ContentListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Total)
	for _, item := range resp.Items {
		assert.NotEqual(t, string(store.StatusCancelled), item.Status)
	}
}

func TestContentList_StatusAll(t *testing.T) {
	f := setupContent(t)
	f.seedRequest(t, store.StatusRequested)
	f.seedRequest(t, store.StatusCancelled)

	c, rec := f.newContext(t, http.MethodGet, "/api/content?status=all", "")
	require.NoError(t, f.handler.List(c))

	var resp models.ContentListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Total)
}

func TestContentList_UnknownStatus(t *testing.T) {
	f := setupContent(t)

	c, rec := f.newContext(t, http.MethodGet, "/api/content?status=Bogus", "")
	require.NoError(t, f.handler.List(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "invalid_status", resp.Error)
}

func TestContentGet_OtherUserLooksAbsent(t *testing.T) {
	f := setupContent(t)

	otherID, err := f.mem.Content().Create(context.Background(), &store.ContentRequest{
		UserID:      "recUsrOther",
		UserEmail:   "other@example.com",
		ContentType: store.ContentSocialPost,
		Details:     store.Details{Social: &store.SocialParams{Platform: "Twitter", Topic: "x"}},
		Status:      store.StatusRequested,
	})
	require.NoError(t, err)

	c, rec := f.newContext(t, http.MethodGet, "/api/content/"+otherID, "")
	c.SetParamNames("id")
	c.SetParamValues(otherID)

	require.NoError(t, f.handler.Get(c))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestContentCancel_CompletedConflicts(t *testing.T) {
	f := setupContent(t)
	id := f.seedRequest(t, store.StatusCompleted)

	c, rec := f.newContext(t, http.MethodPost, "/api/content/"+id+"/cancel", "")
	c.SetParamNames("id")
	c.SetParamValues(id)

	require.NoError(t, f.handler.Cancel(c))
	assert.Equal(t, http.StatusConflict, rec.Code)

	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "invalid_state", resp.Error)
}

func TestContentResubmit_FailedRequest(t *testing.T) {
	f := setupContent(t)
	id := f.seedRequest(t, store.StatusFailed)

	c, rec := f.newContext(t, http.MethodPost, "/api/content/"+id+"/resubmit", `{}`)
	c.SetParamNames("id")
	c.SetParamValues(id)

	require.NoError(t, f.handler.Resubmit(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp models.ContentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(store.StatusRequested), resp.Status)

	// No second debit on retry
	u, err := f.mem.Users().Get(context.Background(), f.sess.UserID)
	require.NoError(t, err)
	assert.Equal(t, entitlement.StarterTokens, u.Tokens)
}

func TestContentUpdate_Regenerate(t *testing.T) {
	f := setupContent(t)
	id := f.seedRequest(t, store.StatusCompleted)

	c, rec := f.newContext(t, http.MethodPut, "/api/content/"+id,
		`{"regenerate":true,"social":{"platform":"LinkedIn","topic":"updated angle"}}`)
	c.SetParamNames("id")
	c.SetParamValues(id)

	require.NoError(t, f.handler.Update(c))
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp models.ContentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(store.StatusRequested), resp.Status)
	assert.Empty(t, resp.Output)

	u, err := f.mem.Users().Get(context.Background(), f.sess.UserID)
	require.NoError(t, err)
	assert.Equal(t, entitlement.StarterTokens-2, u.Tokens)
}

func TestContentExport_CSV(t *testing.T) {
	f := setupContent(t)
	f.seedRequest(t, store.StatusCompleted)

	c, rec := f.newContext(t, http.MethodGet, "/api/content/export?format=csv", "")
	require.NoError(t, f.handler.Export(c))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentDisposition), "content-history-")

	rows, err := csv.NewReader(rec.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Type", rows[0][1])
	assert.Equal(t, string(store.ContentSocialPost), rows[1][1])
}

func TestContentExport_UnknownFormat(t *testing.T) {
	f := setupContent(t)

	c, rec := f.newContext(t, http.MethodGet, "/api/content/export?format=pdf", "")
	require.NoError(t, f.handler.Export(c))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
