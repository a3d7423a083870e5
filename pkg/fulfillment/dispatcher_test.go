package fulfillment

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contentdesk/contentdesk/pkg/logger"
	"github.com/contentdesk/contentdesk/pkg/metrics"
	"github.com/contentdesk/contentdesk/pkg/store"
)

func TestDispatchContent(t *testing.T) {
	var gotBody []byte
	var gotEvent, gotSignature string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotEvent = r.Header.Get("X-Webhook-Event")
		gotSignature = r.Header.Get("X-Webhook-Signature")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewDispatcher(srv.URL, "test-secret", nil, logger.Default())
	job := ContentJob{
		RecordID:    "recCnt1",
		UserID:      "recUsr1",
		UserEmail:   "user@example.com",
		ContentType: store.ContentSocialPost,
		Details: store.Details{
			Social: &store.SocialParams{Platform: "LinkedIn", Topic: "launch"},
		},
		TokenCost: 2,
	}

	err := d.DispatchContent(context.Background(), job)
	require.NoError(t, err)

	assert.Equal(t, EventContentRequested, gotEvent)
	assert.True(t, VerifySignature(gotBody, gotSignature, "test-secret"))

	var decoded ContentJob
	require.NoError(t, json.Unmarshal(gotBody, &decoded))
	assert.Equal(t, "recCnt1", decoded.RecordID)
	assert.Equal(t, store.ContentSocialPost, decoded.ContentType)
	require.NotNil(t, decoded.Details.Social)
	assert.Equal(t, "LinkedIn", decoded.Details.Social.Platform)
	assert.Equal(t, 2, decoded.TokenCost)
}

func TestDispatchResume(t *testing.T) {
	var gotEvent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotEvent = r.Header.Get("X-Webhook-Event")
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	d := NewDispatcher(srv.URL, "test-secret", nil, logger.Default())
	err := d.DispatchResume(context.Background(), ResumeJob{
		RecordID:   "recRes1",
		UserID:     "recUsr1",
		UserEmail:  "user@example.com",
		ResumeType: store.ResumeTargetEnhanced,
		FileURL:    "https://files.example.com/resume.pdf",
		JobURL:     "https://jobs.example.com/123",
		TokenCost:  8,
	})
	require.NoError(t, err)
	assert.Equal(t, EventResumeRequested, gotEvent)
}

func TestDispatch_Non2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	d := NewDispatcher(srv.URL, "test-secret", nil, logger.Default())
	err := d.DispatchContent(context.Background(), ContentJob{RecordID: "recCnt1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestDispatch_UnreachableEndpoint(t *testing.T) {
	d := NewDispatcher("http://127.0.0.1:1", "test-secret", nil, logger.Default())
	err := d.DispatchContent(context.Background(), ContentJob{RecordID: "recCnt1"})
	assert.Error(t, err)
}

func TestDispatch_CountsDeliveries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := metrics.NewWithRegistry(prometheus.NewRegistry())
	d := NewDispatcher(srv.URL, "test-secret", m, logger.Default())

	require.NoError(t, d.DispatchContent(context.Background(), ContentJob{RecordID: "recCnt1"}))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.WebhookDispatches.WithLabelValues("success")))
	assert.Equal(t, float64(0), testutil.ToFloat64(m.WebhookDispatches.WithLabelValues("failed")))

	failing := NewDispatcher("http://127.0.0.1:1", "test-secret", m, logger.Default())
	require.Error(t, failing.DispatchContent(context.Background(), ContentJob{RecordID: "recCnt2"}))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.WebhookDispatches.WithLabelValues("failed")))
}

func TestVerifySignature(t *testing.T) {
	payload := []byte(`{"record_id":"recCnt1"}`)
	sig := Sign(payload, "secret")

	assert.True(t, VerifySignature(payload, sig, "secret"))
	assert.False(t, VerifySignature(payload, sig, "other-secret"))
	assert.False(t, VerifySignature([]byte(`tampered`), sig, "secret"))
}
