package daemon_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"ingest/internal/api"
	"ingest/internal/config"
	"ingest/internal/testsupport"
)

type apiClient struct {
	t       *testing.T
	base    string
	token   string
	project string
	user    string
}

func newAPIClient(t *testing.T, cfg *config.Config) *apiClient {
	t.Helper()
	d, _ := newDaemon(t, cfg)
	srv := httptest.NewServer(d.Handler())
	t.Cleanup(srv.Close)
	return &apiClient{t: t, base: srv.URL, token: cfg.API.Token, project: "project-1", user: "user-1"}
}

func (c *apiClient) do(method, path string, body io.Reader, header map[string]string) *http.Response {
	c.t.Helper()
	req, err := http.NewRequest(method, c.base+path, body)
	if err != nil {
		c.t.Fatalf("new request: %v", err)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("X-Project-ID", c.project)
	req.Header.Set("X-User-ID", c.user)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		c.t.Fatalf("%s %s: %v", method, path, err)
	}
	c.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func (c *apiClient) json(method, path string, payload any, wantStatus int, out any) *http.Response {
	c.t.Helper()
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			c.t.Fatalf("marshal: %v", err)
		}
		body = bytes.NewReader(data)
	}
	resp := c.do(method, path, body, map[string]string{"Content-Type": "application/json"})
	if resp.StatusCode != wantStatus {
		raw, _ := io.ReadAll(resp.Body)
		c.t.Fatalf("%s %s: expected %d, got %d: %s", method, path, wantStatus, resp.StatusCode, raw)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			c.t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp
}

func TestAPIWorkerRoundTrip(t *testing.T) {
	client := newAPIClient(t, testsupport.NewConfig(t))

	var created api.Record
	resp := client.json(http.MethodPost, "/api/records", api.CreateRecordRequest{SourceType: "gpx", SourceID: "ride-1"}, http.StatusCreated, &created)
	if resp.Header.Get("Location") != api.RecordURL(created.ID) {
		t.Fatalf("unexpected location %q", resp.Header.Get("Location"))
	}
	if created.Status != "INCOMPLETE" || created.Revision != 1 || created.ProjectID != "project-1" {
		t.Fatalf("unexpected created record: %+v", created)
	}

	upload := client.do(http.MethodPut, fmt.Sprintf("/api/records/%d/contents/ride.gpx", created.ID),
		strings.NewReader("<gpx/>"), map[string]string{
			"Content-Type":    "application/gpx+xml",
			"X-Declared-Time": "2024-05-01T10:00:00+02:00",
		})
	if upload.StatusCode != http.StatusOK {
		t.Fatalf("upload status %d", upload.StatusCode)
	}
	var uploaded api.Record
	if err := json.NewDecoder(upload.Body).Decode(&uploaded); err != nil {
		t.Fatalf("decode upload: %v", err)
	}
	if uploaded.Status != "READY" || uploaded.Revision != 2 || len(uploaded.Contents) != 1 {
		t.Fatalf("unexpected uploaded record: %+v", uploaded)
	}
	if uploaded.TimeOffset == nil || *uploaded.TimeOffset != 7200 {
		t.Fatalf("expected declared offset 7200, got %v", uploaded.TimeOffset)
	}

	var polled api.PollResponse
	client.json(http.MethodPost, "/api/queue/poll", api.PollRequest{}, http.StatusOK, &polled)
	if len(polled.Records) != 1 || polled.Records[0].Status != "QUEUED" || polled.Records[0].Revision != 3 {
		t.Fatalf("unexpected poll response: %+v", polled)
	}

	var started api.TransactionResponse
	client.json(http.MethodPost, "/api/queue/transactions",
		api.TransactionRequest{ID: created.ID, Revision: 3, Status: "PROCESSING", Message: "converting"},
		http.StatusOK, &started)
	if started.Revision != 4 || started.Status != "PROCESSING" {
		t.Fatalf("unexpected start response: %+v", started)
	}

	var conflict api.ErrorResponse
	client.json(http.MethodPost, "/api/queue/transactions",
		api.TransactionRequest{ID: created.ID, Revision: 3, Status: "PROCESSING"},
		http.StatusConflict, &conflict)
	if conflict.Kind != "conflict" {
		t.Fatalf("unexpected conflict kind %q", conflict.Kind)
	}

	logs := "converted 120 points"
	var done api.TransactionResponse
	client.json(http.MethodPost, "/api/queue/transactions",
		api.TransactionRequest{ID: created.ID, Revision: 4, Status: "SUCCEEDED", Message: "done", Logs: &logs},
		http.StatusOK, &done)
	if done.Revision != 5 || done.LogsURL != api.LogsURL(created.ID) {
		t.Fatalf("unexpected finalize response: %+v", done)
	}

	var gotLogs api.LogsResponse
	client.json(http.MethodGet, done.LogsURL, nil, http.StatusOK, &gotLogs)
	if gotLogs.Logs != logs {
		t.Fatalf("unexpected logs %q", gotLogs.Logs)
	}

	var page api.QueryResponse
	client.json(http.MethodGet, "/api/records?status=succeeded", nil, http.StatusOK, &page)
	if len(page.Records) != 1 || page.Records[0].ID != created.ID {
		t.Fatalf("unexpected query page: %+v", page)
	}

	content := client.do(http.MethodGet, uploaded.Contents[0].URL, nil, nil)
	data, _ := io.ReadAll(content.Body)
	if content.StatusCode != http.StatusOK || string(data) != "<gpx/>" {
		t.Fatalf("unexpected content %d %q", content.StatusCode, data)
	}
	if ct := content.Header.Get("Content-Type"); ct != "application/gpx+xml" {
		t.Fatalf("unexpected content type %q", ct)
	}
}

func TestAPIErrorMapping(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.API.MaxContentBytes = 8
	client := newAPIClient(t, cfg)

	var created api.Record
	client.json(http.MethodPost, "/api/records", api.CreateRecordRequest{SourceType: "gpx", SourceID: "x"}, http.StatusCreated, &created)

	var errResp api.ErrorResponse
	client.json(http.MethodGet, "/api/records/abc", nil, http.StatusBadRequest, &errResp)
	if errResp.Kind != "validation" {
		t.Fatalf("unexpected kind %q", errResp.Kind)
	}
	client.json(http.MethodGet, "/api/records/9999", nil, http.StatusNotFound, &errResp)
	client.json(http.MethodPost, "/api/queue/transactions",
		api.TransactionRequest{ID: created.ID, Revision: 1, Status: "READY"},
		http.StatusUnprocessableEntity, &errResp)
	if errResp.Kind != "invalid_transition" {
		t.Fatalf("unexpected kind %q", errResp.Kind)
	}
	client.json(http.MethodPost, "/api/queue/transactions",
		api.TransactionRequest{ID: created.ID, Revision: 1, Status: "SUCCEEDED"},
		http.StatusConflict, nil)
	client.json(http.MethodPost, "/api/queue/poll", map[string]any{"limit": 1, "bogus": true}, http.StatusBadRequest, nil)
	client.json(http.MethodPost, "/api/queue/poll", api.PollRequest{Limit: 100000}, http.StatusBadRequest, nil)
	client.json(http.MethodGet, "/api/records?limit=ten", nil, http.StatusBadRequest, nil)

	big := client.do(http.MethodPut, fmt.Sprintf("/api/records/%d/contents/big.bin", created.ID),
		bytes.NewReader(testsupport.Payload(64)), nil)
	if big.StatusCode != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", big.StatusCode)
	}

	client.project = "project-2"
	client.json(http.MethodDelete, fmt.Sprintf("/api/records/%d", created.ID), nil, http.StatusNotFound, nil)
	client.project = "project-1"
	client.json(http.MethodDelete, fmt.Sprintf("/api/records/%d", created.ID), nil, http.StatusNoContent, nil)
	client.json(http.MethodGet, fmt.Sprintf("/api/records/%d", created.ID), nil, http.StatusNotFound, nil)
}

func TestAPIRequiresToken(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithAPIToken("s3cret"))
	client := newAPIClient(t, cfg)

	client.json(http.MethodGet, "/api/status", nil, http.StatusOK, nil)

	client.token = "wrong"
	client.json(http.MethodGet, "/api/status", nil, http.StatusUnauthorized, nil)

	client.token = ""
	client.json(http.MethodGet, "/api/status", nil, http.StatusUnauthorized, nil)

	// metrics stay reachable for scrapers
	client.json(http.MethodGet, "/metrics", nil, http.StatusOK, nil)
}

func TestAPIStatusAndMetrics(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithSourceTypes("gpx", "fit"))
	client := newAPIClient(t, cfg)

	client.json(http.MethodPost, "/api/records", api.CreateRecordRequest{SourceType: "tcx", SourceID: "x"}, http.StatusBadRequest, nil)
	client.json(http.MethodPost, "/api/records", api.CreateRecordRequest{SourceType: "fit", SourceID: "x"}, http.StatusCreated, nil)

	var status api.DaemonStatus
	resp := client.json(http.MethodGet, "/api/status", nil, http.StatusOK, &status)
	if resp.Header.Get("X-Request-ID") == "" {
		t.Fatal("expected generated request id")
	}
	if status.Queue.Total != 1 || status.Queue.Counts["INCOMPLETE"] != 1 {
		t.Fatalf("unexpected queue stats: %+v", status.Queue)
	}
	if len(status.SourceTypes) != 2 || status.SourceTypes[0].Name != "fit" {
		t.Fatalf("unexpected source types: %+v", status.SourceTypes)
	}
	if !status.Store.Reachable {
		t.Fatalf("expected reachable store: %+v", status.Store)
	}

	echo := client.do(http.MethodGet, "/api/status", nil, map[string]string{"X-Request-ID": "req-123"})
	if got := echo.Header.Get("X-Request-ID"); got != "req-123" {
		t.Fatalf("expected request id echoed, got %q", got)
	}

	metricsResp := client.do(http.MethodGet, "/metrics", nil, nil)
	body, _ := io.ReadAll(metricsResp.Body)
	for _, want := range []string{
		`ingest_records{status="INCOMPLETE"} 1`,
		`route="/api/records"`,
		`ingest_http_requests_total`,
	} {
		if !strings.Contains(string(body), want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}
}

func TestAPIRefusesChangesToClaimedRecord(t *testing.T) {
	client := newAPIClient(t, testsupport.NewConfig(t))

	var created api.Record
	client.json(http.MethodPost, "/api/records", api.CreateRecordRequest{SourceType: "gpx", SourceID: "held"}, http.StatusCreated, &created)
	upload := client.do(http.MethodPut, fmt.Sprintf("/api/records/%d/contents/ride.gpx", created.ID),
		strings.NewReader("<gpx/>"), map[string]string{"Content-Type": "application/gpx+xml"})
	if upload.StatusCode != http.StatusOK {
		t.Fatalf("upload: expected 200, got %d", upload.StatusCode)
	}
	var polled api.PollResponse
	client.json(http.MethodPost, "/api/queue/poll", api.PollRequest{Limit: 1}, http.StatusOK, &polled)
	if len(polled.Records) != 1 {
		t.Fatalf("expected one claimed record, got %d", len(polled.Records))
	}

	var errResp api.ErrorResponse
	client.json(http.MethodDelete, fmt.Sprintf("/api/records/%d", created.ID), nil, http.StatusConflict, &errResp)
	if errResp.Kind != "conflict" {
		t.Fatalf("unexpected kind %q", errResp.Kind)
	}
	replace := client.do(http.MethodPut, fmt.Sprintf("/api/records/%d/contents/ride.gpx", created.ID),
		strings.NewReader("<gpx>changed</gpx>"), nil)
	if replace.StatusCode != http.StatusConflict {
		t.Fatalf("replace: expected 409, got %d", replace.StatusCode)
	}

	var current api.Record
	client.json(http.MethodGet, fmt.Sprintf("/api/records/%d", created.ID), nil, http.StatusOK, &current)
	if current.Status != "QUEUED" {
		t.Fatalf("expected QUEUED, got %s", current.Status)
	}
}
