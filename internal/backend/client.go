// Package backend is the HTTP client for the remote analysis service.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/resumail/resumail/internal/platform/httpx"
	"github.com/resumail/resumail/internal/report"
)

var (
	// ErrNotJSON is returned when the backend answers with something other
	// than JSON.
	ErrNotJSON = errors.New("backend: response is not JSON")
	// ErrReportNotFound is returned by StoredReport for unknown ids.
	ErrReportNotFound = fmt.Errorf("backend: report %w", httpx.ErrNotFound)
)

// StatusError is a non-2xx backend response.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend: status %d", e.Status)
	}
	return fmt.Sprintf("backend: status %d: %s", e.Status, e.Message)
}

// Unwrap maps the status onto the shared HTTP sentinels.
func (e *StatusError) Unwrap() error {
	switch {
	case e.Status == http.StatusNotFound:
		return httpx.ErrNotFound
	case e.Status == http.StatusPaymentRequired:
		return httpx.ErrPayment
	case e.Status == http.StatusBadRequest || e.Status == http.StatusUnprocessableEntity:
		return httpx.ErrValidation
	default:
		return httpx.ErrUnavailable
	}
}

// Client wraps interactions with the analysis backend.
type Client struct {
	baseURL    string
	httpClient *http.Client
	cache      *Cache
	group      singleflight.Group
}

// NewClient constructs a new client. cache may be nil.
func NewClient(baseURL string, timeout time.Duration, cache *Cache) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		cache:      cache,
	}
}

// Ping checks if the backend is reachable.
func (c *Client) Ping(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil, nil)
}

// Emails lists the user's messages.
func (c *Client) Emails(ctx context.Context, user string, maxResults int) ([]Email, error) {
	query := url.Values{"user": {user}}
	if maxResults > 0 {
		query.Set("maxResults", strconv.Itoa(maxResults))
	}
	var body struct {
		Messages []Email `json:"messages"`
	}
	if err := c.do(ctx, http.MethodGet, "/emails", query, nil, &body); err != nil {
		return nil, err
	}
	return body.Messages, nil
}

// Analyze submits emails for analysis.
func (c *Client) Analyze(ctx context.Context, req AnalyzeRequest) (AnalyzeResponse, error) {
	var resp AnalyzeResponse
	if err := c.do(ctx, http.MethodPost, "/analyzev2", nil, req, &resp); err != nil {
		return AnalyzeResponse{}, err
	}
	return resp, nil
}

// Credits returns the user's remaining credit balance.
func (c *Client) Credits(ctx context.Context, userID string) (int, error) {
	var body creditsBody
	if err := c.do(ctx, http.MethodGet, "/credits", url.Values{"userId": {userID}}, nil, &body); err != nil {
		return 0, err
	}
	return body.value, nil
}

// ReportsByIDs fetches reports in the order of ids. Results are cached per id
// set and concurrent identical lookups share one request.
func (c *Client) ReportsByIDs(ctx context.Context, ids []string) ([]report.Payload, error) {
	clean := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			clean = append(clean, id)
		}
	}
	if len(clean) == 0 {
		return nil, nil
	}
	key := Key("reports", clean...)
	v, err, _ := c.group.Do(key, func() (any, error) {
		var reports []report.Payload
		err := c.cache.FetchJSON(ctx, key, &reports, func(ctx context.Context) (any, error) {
			var body reportsBody
			query := url.Values{"ids": {strings.Join(clean, ",")}}
			if err := c.do(ctx, http.MethodGet, "/reports/byIds", query, nil, &body); err != nil {
				return nil, err
			}
			return body.reports, nil
		})
		return reports, err
	})
	if err != nil {
		return nil, err
	}
	return v.([]report.Payload), nil
}

// UserReports lists the reports stored for a user, newest first as the backend
// returns them.
func (c *Client) UserReports(ctx context.Context, userID string) ([]report.Payload, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("backend: user id required: %w", httpx.ErrValidation)
	}
	var body reportsBody
	if err := c.do(ctx, http.MethodGet, "/reports/user/"+url.PathEscape(userID), nil, nil, &body); err != nil {
		return nil, err
	}
	return body.reports, nil
}

// UserStats returns the aggregate the backend keeps for a user. The payload
// is passed through untouched.
func (c *Client) UserStats(ctx context.Context, userID string) (report.Payload, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("backend: user id required: %w", httpx.ErrValidation)
	}
	var body report.Payload
	if err := c.do(ctx, http.MethodGet, "/stats/"+url.PathEscape(userID), nil, nil, &body); err != nil {
		return nil, err
	}
	return body, nil
}

// StoredReport loads a final report and attaches its mini reports under
// mini_reports when the backend only lists their ids.
func (c *Client) StoredReport(ctx context.Context, id string) (report.Payload, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, ErrReportNotFound
	}
	reports, err := c.ReportsByIDs(ctx, []string{id})
	if err != nil {
		if errors.Is(err, httpx.ErrNotFound) {
			return nil, ErrReportNotFound
		}
		return nil, err
	}
	if len(reports) == 0 || reports[0] == nil {
		return nil, ErrReportNotFound
	}
	final := reports[0]
	if _, ok := final["mini_reports"]; ok {
		return final, nil
	}
	ids := miniReportIDs(final)
	if len(ids) == 0 {
		return final, nil
	}
	minis, err := c.ReportsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("backend: mini reports of %s: %w", id, err)
	}
	out := make(report.Payload, len(final)+1)
	for k, v := range final {
		out[k] = v
	}
	items := make([]any, 0, len(minis))
	for _, m := range minis {
		items = append(items, map[string]any(m))
	}
	out["mini_reports"] = items
	return out, nil
}

func miniReportIDs(p report.Payload) []string {
	for _, key := range []string{"mini_report_ids", "miniReportIds"} {
		v, ok := p[key]
		if !ok || v == nil {
			continue
		}
		raw, err := json.Marshal(v)
		if err != nil {
			continue
		}
		var ids IDList
		if err := json.Unmarshal(raw, &ids); err != nil {
			continue
		}
		return ids.Strings()
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	endpoint := c.baseURL + path
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("backend: %s %s: %w: %w", method, path, httpx.ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Status: resp.StatusCode, Message: errorMessage(data)}
	}
	if out == nil {
		return nil
	}
	if !isJSON(resp.Header.Get("Content-Type"), data) {
		return fmt.Errorf("%w: %s %s", ErrNotJSON, method, path)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("backend: decode %s: %w", path, err)
	}
	return nil
}

func isJSON(contentType string, data []byte) bool {
	if contentType != "" {
		mediaType, _, err := mime.ParseMediaType(contentType)
		if err == nil && (mediaType == "application/json" || strings.HasSuffix(mediaType, "+json")) {
			return true
		}
		if err == nil && mediaType != "text/plain" {
			return false
		}
	}
	return json.Valid(data)
}

func errorMessage(data []byte) string {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &body); err == nil {
		if body.Error != "" {
			return body.Error
		}
		return body.Message
	}
	msg := strings.TrimSpace(string(data))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}
