package httpserver_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/oj-problem-hub/internal/domain"
	"github.com/fairyhunter13/oj-problem-hub/internal/usecase"
)

func postJSON(h http.HandlerFunc, target, body string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h(w, r)
	return w
}

func waitSlotIdle(t *testing.T, status func() usecase.SlotStatus) {
	t.Helper()
	require.Eventually(t, func() bool { return !status().Running }, 3*time.Second, 5*time.Millisecond)
}

func TestTriggerCrawlerHandler(t *testing.T) {
	ts := newTestServer(t)
	h := ts.TriggerCrawlerHandler()

	w := postJSON(h, "/admin/api/crawlers/trigger", `{"source":"leetcode","args":["--daily"]}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	var doc map[string]string
	decodeJSON(t, w, &doc)
	require.NotEmpty(t, doc["job_id"])
	assert.Equal(t, "leetcode.py", ts.launcher.script(0))
	assert.Equal(t, []string{"--daily"}, ts.launcher.args(0))

	waitSlotIdle(t, ts.Crawlers.Status)
}

func TestTriggerCrawlerHandler_BadRequests(t *testing.T) {
	ts := newTestServer(t)
	h := ts.TriggerCrawlerHandler()

	w := postJSON(h, "/admin/api/crawlers/trigger", `{"source":`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid JSON body", problemDoc(t, w)["detail"])

	w = postJSON(h, "/admin/api/crawlers/trigger", `{"source":"hackerrank"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = postJSON(h, "/admin/api/crawlers/trigger", `{"source":"leetcode","args":["--frobnicate"]}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	assert.Equal(t, 0, ts.launcher.started())
}

func TestTriggerCrawlerHandler_ConflictWhileRunning(t *testing.T) {
	ts := newTestServer(t)
	ts.launcher.hold = true
	h := ts.TriggerCrawlerHandler()

	w := postJSON(h, "/admin/api/crawlers/trigger", `{"source":"leetcode","args":["--daily"]}`)
	require.Equal(t, http.StatusAccepted, w.Code)

	w = postJSON(h, "/admin/api/crawlers/trigger", `{"source":"atcoder"}`)
	require.Equal(t, http.StatusConflict, w.Code)
	doc := problemDoc(t, w)
	assert.Equal(t, "a crawler is already running", doc["detail"])
	assert.Equal(t, 1, ts.launcher.started())
}

func TestCrawlerStatusHandler(t *testing.T) {
	ts := newTestServer(t)
	ts.launcher.hold = true

	w := postJSON(ts.TriggerCrawlerHandler(), "/admin/api/crawlers/trigger", `{"source":"codeforces","args":["--sync-problemset"]}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	var trig map[string]string
	decodeJSON(t, w, &trig)

	w = httptest.NewRecorder()
	ts.CrawlerStatusHandler()(w, httptest.NewRequest(http.MethodGet, "/admin/api/crawlers/status", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var doc struct {
		Running    bool         `json:"running"`
		CurrentJob *domain.Job  `json:"current_job"`
		LastJob    *domain.Job  `json:"last_job"`
		History    []domain.Job `json:"history"`
	}
	decodeJSON(t, w, &doc)
	assert.True(t, doc.Running)
	require.NotNil(t, doc.CurrentJob)
	assert.Equal(t, trig["job_id"], doc.CurrentJob.ID)
	assert.Equal(t, domain.SourceCodeforces, doc.CurrentJob.Source)
	assert.Equal(t, domain.TriggerAdmin, doc.CurrentJob.Trigger)
	assert.Empty(t, doc.History)

	ts.launcher.releaseAll()
	waitSlotIdle(t, ts.Crawlers.Status)

	w = httptest.NewRecorder()
	ts.CrawlerStatusHandler()(w, httptest.NewRequest(http.MethodGet, "/admin/api/crawlers/status", nil))
	decodeJSON(t, w, &doc)
	assert.False(t, doc.Running)
	assert.Nil(t, doc.CurrentJob)
	require.NotNil(t, doc.LastJob)
	assert.Equal(t, domain.JobCompleted, doc.LastJob.Status)
	require.Len(t, doc.History, 1)
}

func TestCancelCrawlerHandler(t *testing.T) {
	ts := newTestServer(t)
	ts.launcher.hold = true
	cancel := ts.CancelCrawlerHandler()

	// nothing running yet
	w := httptest.NewRecorder()
	cancel(w, httptest.NewRequest(http.MethodPost, "/admin/api/crawlers/cancel", nil))
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "no running crawler job", problemDoc(t, w)["detail"])

	w = postJSON(ts.TriggerCrawlerHandler(), "/admin/api/crawlers/trigger", `{"source":"luogu","args":["--sync"]}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	var trig map[string]string
	decodeJSON(t, w, &trig)

	w = httptest.NewRecorder()
	cancel(w, httptest.NewRequest(http.MethodPost, "/admin/api/crawlers/cancel", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var doc map[string]string
	decodeJSON(t, w, &doc)
	assert.Equal(t, trig["job_id"], doc["job_id"])
	assert.Equal(t, "cancelled", doc["status"])

	waitSlotIdle(t, ts.Crawlers.Status)
	last := ts.Crawlers.Status().LastJob
	require.NotNil(t, last)
	assert.Equal(t, domain.JobCancelled, last.Status)
}

func TestCrawlerOutputHandler(t *testing.T) {
	ts := newTestServer(t)
	ts.launcher.stdout = []byte("fetched 42 problems\n")
	h := ts.CrawlerOutputHandler()

	w := postJSON(ts.TriggerCrawlerHandler(), "/admin/api/crawlers/trigger", `{"source":"leetcode"}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	var trig map[string]string
	decodeJSON(t, w, &trig)
	waitSlotIdle(t, ts.Crawlers.Status)

	r := httptest.NewRequest(http.MethodGet, "/admin/api/crawlers/"+trig["job_id"]+"/output", nil)
	w = httptest.NewRecorder()
	h(w, withURLParams(r, map[string]string{"job_id": trig["job_id"]}))
	require.Equal(t, http.StatusOK, w.Code)
	var out usecase.JobOutput
	decodeJSON(t, w, &out)
	assert.Equal(t, trig["job_id"], out.JobID)
	require.NotNil(t, out.Stdout)
	assert.Equal(t, "fetched 42 problems\n", *out.Stdout)

	// malformed id
	r = httptest.NewRequest(http.MethodGet, "/admin/api/crawlers/nope/output", nil)
	w = httptest.NewRecorder()
	h(w, withURLParams(r, map[string]string{"job_id": "nope"}))
	require.Equal(t, http.StatusBadRequest, w.Code)

	// unknown but well-formed id
	unknown := "7b8a1f9c-0d2e-4c3b-9a8f-6e5d4c3b2a19"
	r = httptest.NewRequest(http.MethodGet, "/admin/api/crawlers/"+unknown+"/output", nil)
	w = httptest.NewRecorder()
	h(w, withURLParams(r, map[string]string{"job_id": unknown}))
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestTriggerEmbeddingHandler(t *testing.T) {
	ts := newTestServer(t)
	h := ts.TriggerEmbeddingHandler()

	w := postJSON(h, "/admin/api/embeddings/trigger",
		`{"source":"leetcode","rebuild":true,"dry_run":true,"batch_size":32,"filter":"two-sum"}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	var doc map[string]string
	decodeJSON(t, w, &doc)
	require.NotEmpty(t, doc["job_id"])

	assert.Equal(t, domain.EmbeddingScript, ts.launcher.script(0))
	args := ts.launcher.args(0)
	assert.Contains(t, args, "--rebuild")
	assert.Contains(t, args, "--dry-run")
	assert.Contains(t, args, "--job-id")

	waitSlotIdle(t, func() usecase.SlotStatus { return ts.Embeddings.Status().SlotStatus })
}

func TestTriggerEmbeddingHandler_Validation(t *testing.T) {
	ts := newTestServer(t)
	h := ts.TriggerEmbeddingHandler()

	for _, tc := range []struct {
		body  string
		field string
	}{
		{`{"batch_size":1000}`, "BatchSize"},
		{`{"filter":"` + strings.Repeat("x", 201) + `"}`, "Filter"},
		{`{"source":"` + strings.Repeat("s", 33) + `"}`, "Source"},
	} {
		w := postJSON(h, "/admin/api/embeddings/trigger", tc.body)
		require.Equal(t, http.StatusBadRequest, w.Code)
		var doc struct {
			Title  string `json:"title"`
			Errors []struct {
				Field   string `json:"field"`
				Message string `json:"message"`
			} `json:"errors"`
		}
		decodeJSON(t, w, &doc)
		assert.Equal(t, "Validation Error", doc.Title)
		require.Len(t, doc.Errors, 1)
		assert.Equal(t, tc.field, doc.Errors[0].Field)
	}

	w := postJSON(h, "/admin/api/embeddings/trigger", `not json`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	assert.Equal(t, 0, ts.launcher.started())
}

func TestTriggerEmbeddingHandler_Conflict(t *testing.T) {
	ts := newTestServer(t)
	ts.launcher.hold = true
	h := ts.TriggerEmbeddingHandler()

	w := postJSON(h, "/admin/api/embeddings/trigger", `{}`)
	require.Equal(t, http.StatusAccepted, w.Code)

	w = postJSON(h, "/admin/api/embeddings/trigger", `{"rebuild":true}`)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "an embedding job is already running", problemDoc(t, w)["detail"])
}

func TestEmbeddingStatusHandler_CarriesProgress(t *testing.T) {
	ts := newTestServer(t)
	ts.launcher.hold = true

	w := postJSON(ts.TriggerEmbeddingHandler(), "/admin/api/embeddings/trigger", `{}`)
	require.Equal(t, http.StatusAccepted, w.Code)

	w = httptest.NewRecorder()
	ts.EmbeddingStatusHandler()(w, httptest.NewRequest(http.MethodGet, "/admin/api/embeddings/status", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var doc struct {
		Running  bool            `json:"running"`
		Progress json.RawMessage `json:"progress"`
	}
	decodeJSON(t, w, &doc)
	assert.True(t, doc.Running)
	assert.JSONEq(t, `{"phase":"unknown"}`, string(doc.Progress),
		"progress defaults before the helper writes its file")
}

func TestCancelEmbeddingHandler(t *testing.T) {
	ts := newTestServer(t)
	h := ts.CancelEmbeddingHandler()

	w := httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodPost, "/admin/api/embeddings/cancel", nil))
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "no running embedding job", problemDoc(t, w)["detail"])

	ts.launcher.hold = true
	w = postJSON(ts.TriggerEmbeddingHandler(), "/admin/api/embeddings/trigger", `{}`)
	require.Equal(t, http.StatusAccepted, w.Code)

	w = httptest.NewRecorder()
	h(w, httptest.NewRequest(http.MethodPost, "/admin/api/embeddings/cancel", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var doc map[string]string
	decodeJSON(t, w, &doc)
	assert.Equal(t, "cancelled", doc["status"])
}

func TestEmbeddingProgressHandler(t *testing.T) {
	ts := newTestServer(t)
	h := ts.EmbeddingProgressHandler()

	w := postJSON(ts.TriggerEmbeddingHandler(), "/admin/api/embeddings/trigger", `{}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	var trig map[string]string
	decodeJSON(t, w, &trig)

	r := httptest.NewRequest(http.MethodGet, "/admin/api/embeddings/"+trig["job_id"]+"/progress", nil)
	w = httptest.NewRecorder()
	h(w, withURLParams(r, map[string]string{"job_id": trig["job_id"]}))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
	var doc map[string]any
	decodeJSON(t, w, &doc)
	assert.Contains(t, doc, "phase")

	r = httptest.NewRequest(http.MethodGet, "/admin/api/embeddings/zzz/progress", nil)
	w = httptest.NewRecorder()
	h(w, withURLParams(r, map[string]string{"job_id": "zzz"}))
	require.Equal(t, http.StatusBadRequest, w.Code)

	waitSlotIdle(t, func() usecase.SlotStatus { return ts.Embeddings.Status().SlotStatus })
}

func TestTokenHandlers(t *testing.T) {
	ts := newTestServer(t)

	w := postJSON(ts.CreateTokenHandler(), "/admin/api/tokens", `{"label":"ci pipeline"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var created domain.APIToken
	decodeJSON(t, w, &created)
	assert.Equal(t, "tok-1", created.Token)
	require.NotNil(t, created.Label)
	assert.Equal(t, "ci pipeline", *created.Label)
	assert.True(t, created.IsActive)

	// a second, unlabeled token
	w = postJSON(ts.CreateTokenHandler(), "/admin/api/tokens", `{}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = httptest.NewRecorder()
	ts.ListTokensHandler()(w, httptest.NewRequest(http.MethodGet, "/admin/api/tokens", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var tokens []domain.APIToken
	decodeJSON(t, w, &tokens)
	require.Len(t, tokens, 2)
	assert.Nil(t, tokens[1].Label)

	revoke := ts.RevokeTokenHandler()
	r := httptest.NewRequest(http.MethodDelete, "/admin/api/tokens/tok-1", nil)
	w = httptest.NewRecorder()
	revoke(w, withURLParams(r, map[string]string{"token": "tok-1"}))
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, w.Body.String())

	// revoking again reports not found
	r = httptest.NewRequest(http.MethodDelete, "/admin/api/tokens/tok-1", nil)
	w = httptest.NewRecorder()
	revoke(w, withURLParams(r, map[string]string{"token": "tok-1"}))
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "token not found", problemDoc(t, w)["detail"])
}

func TestCreateTokenHandler_Validation(t *testing.T) {
	ts := newTestServer(t)
	h := ts.CreateTokenHandler()

	w := postJSON(h, "/admin/api/tokens", `{"label":"`+strings.Repeat("l", 101)+`"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Validation Error", problemDoc(t, w)["title"])

	w = postJSON(h, "/admin/api/tokens", `{`)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSettingsHandlers(t *testing.T) {
	ts := newTestServer(t)

	w := httptest.NewRecorder()
	ts.GetSettingsHandler()(w, httptest.NewRequest(http.MethodGet, "/admin/api/settings", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var doc map[string]bool
	decodeJSON(t, w, &doc)
	assert.False(t, doc["token_auth_enabled"])

	w = postJSON(ts.UpdateSettingsHandler(), "/admin/api/settings", `{"token_auth_enabled":true}`)
	require.Equal(t, http.StatusOK, w.Code)
	decodeJSON(t, w, &doc)
	assert.True(t, doc["token_auth_enabled"])
	assert.True(t, ts.TokenAuth.Enabled(), "the live switch flips immediately")

	v, err := ts.settings.Get(context.Background(), domain.SettingTokenAuthEnabled)
	require.NoError(t, err)
	assert.Equal(t, "1", v, "the flag persists for the next boot")

	w = postJSON(ts.UpdateSettingsHandler(), "/admin/api/settings", `{"token_auth_enabled":false}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, ts.TokenAuth.Enabled())

	w = postJSON(ts.UpdateSettingsHandler(), "/admin/api/settings", `"on"`)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestProblemCRUDHandlers(t *testing.T) {
	ts := newTestServer(t)

	body := `{"id":"1","source":"leetcode","slug":"two-sum","title":"Two Sum","tags":["array"]}`
	w := postJSON(ts.CreateProblemHandler(), "/admin/api/problems", body)
	require.Equal(t, http.StatusCreated, w.Code)
	var created domain.Problem
	decodeJSON(t, w, &created)
	assert.Equal(t, "two-sum", created.Slug)

	// duplicate insert conflicts
	w = postJSON(ts.CreateProblemHandler(), "/admin/api/problems", body)
	require.Equal(t, http.StatusConflict, w.Code)

	update := ts.UpdateProblemHandler()
	r := httptest.NewRequest(http.MethodPut, "/admin/api/problems/leetcode/1",
		strings.NewReader(`{"id":"1","source":"leetcode","slug":"two-sum","title":"Two Sum (updated)"}`))
	w = httptest.NewRecorder()
	update(w, withURLParams(r, map[string]string{"source": "leetcode", "id": "1"}))
	require.Equal(t, http.StatusOK, w.Code)

	got, err := ts.problems.Get(r.Context(), "leetcode", "1")
	require.NoError(t, err)
	require.NotNil(t, got.Title)
	assert.Equal(t, "Two Sum (updated)", *got.Title)

	r = httptest.NewRequest(http.MethodPut, "/admin/api/problems/leetcode/404",
		strings.NewReader(`{"id":"404","source":"leetcode","slug":"missing"}`))
	w = httptest.NewRecorder()
	update(w, withURLParams(r, map[string]string{"source": "leetcode", "id": "404"}))
	require.Equal(t, http.StatusNotFound, w.Code)

	del := ts.DeleteProblemHandler()
	r = httptest.NewRequest(http.MethodDelete, "/admin/api/problems/leetcode/1", nil)
	w = httptest.NewRecorder()
	del(w, withURLParams(r, map[string]string{"source": "leetcode", "id": "1"}))
	require.Equal(t, http.StatusNoContent, w.Code)

	r = httptest.NewRequest(http.MethodDelete, "/admin/api/problems/leetcode/1", nil)
	w = httptest.NewRecorder()
	del(w, withURLParams(r, map[string]string{"source": "leetcode", "id": "1"}))
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestProblemCRUDHandlers_BadBodies(t *testing.T) {
	ts := newTestServer(t)
	h := ts.CreateProblemHandler()

	w := postJSON(h, "/admin/api/problems", `{"id":`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid JSON body", problemDoc(t, w)["detail"])

	w = postJSON(h, "/admin/api/problems", `{"id":"1","source":"topcoder","slug":"x"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = postJSON(h, "/admin/api/problems", `{"id":"1","source":"leetcode"}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "id and slug are required", problemDoc(t, w)["detail"])
}
