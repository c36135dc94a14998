// Package bitrix implements a client for the Bitrix24 REST webhook API.
// It covers the three operations the bot needs: uploading files to a Disk
// folder, creating tasks, and listing tasks by creator.
package bitrix

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const defaultTimeout = 20 * time.Second

// Client calls the Bitrix24 REST API through an inbound webhook URL.
type Client struct {
	base   string
	http   *http.Client
	logger *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout overrides the default 20s request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger attaches a logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a Client for the given webhook base URL, e.g.
// https://portal.bitrix24.ru/rest/1/secret/.
func New(webhookBase string, opts ...Option) *Client {
	c := &Client{
		base:   strings.TrimSuffix(webhookBase, "/") + "/",
		http:   &http.Client{Timeout: defaultTimeout},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// apiEnvelope is the common shape of every Bitrix REST reply.
type apiEnvelope struct {
	Result           json.RawMessage `json:"result"`
	Error            string          `json:"error"`
	ErrorDescription string          `json:"error_description"`
}

// call POSTs a form-encoded request to the given REST method and returns
// the raw result payload.
func (c *Client) call(ctx context.Context, method string, form url.Values) (json.RawMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+method, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("building %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling %s: %w", method, err)
	}
	defer resp.Body.Close()

	return c.decodeEnvelope(method, resp)
}

// decodeEnvelope parses a REST reply body into its result payload,
// converting API-level and gateway-level failures into typed errors.
func (c *Client) decodeEnvelope(method string, resp *http.Response) (json.RawMessage, error) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading %s response: %w", method, err)
	}

	var envelope apiEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		// Gateways in front of Bitrix answer 5xx with HTML pages. Surface
		// those as API errors carrying the status marker so the retry
		// vocabulary can see them; anything else is a malformed reply.
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, &Error{
				Code:        fmt.Sprintf("HTTP_%d", resp.StatusCode),
				Description: http.StatusText(resp.StatusCode),
			}
		}
		c.logger.Error("bitrix returned non-JSON response",
			zap.String("method", method),
			zap.Int("status", resp.StatusCode),
			zap.ByteString("body", truncate(body, 512)))
		return nil, &ShapeError{
			Reason:  fmt.Sprintf("non-JSON response (HTTP %d)", resp.StatusCode),
			Payload: string(truncate(body, 2048)),
		}
	}

	if envelope.Error != "" {
		return nil, &Error{Code: envelope.Error, Description: envelope.ErrorDescription}
	}
	return envelope.Result, nil
}

// UploadToFolder uploads a local file into a Bitrix Disk folder and
// returns the created file's Disk object id. Retrying after a failure may
// create duplicate remote entries; callers accept that tradeoff.
func (c *Client) UploadToFolder(ctx context.Context, folderID int, localPath, displayName string) (int, error) {
	if displayName == "" {
		displayName = lastPathElement(localPath)
	}

	f, err := os.Open(localPath)
	if err != nil {
		return 0, fmt.Errorf("opening %s: %w", localPath, err)
	}
	defer f.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	if err := writer.WriteField("id", strconv.Itoa(folderID)); err != nil {
		return 0, fmt.Errorf("writing folder id field: %w", err)
	}
	part, err := writer.CreateFormFile("file", displayName)
	if err != nil {
		return 0, fmt.Errorf("creating file part: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return 0, fmt.Errorf("reading %s: %w", localPath, err)
	}
	if err := writer.Close(); err != nil {
		return 0, fmt.Errorf("finalizing multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"disk.folder.uploadfile", &buf)
	if err != nil {
		return 0, fmt.Errorf("building upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("uploading %s: %w", displayName, err)
	}
	defer resp.Body.Close()

	result, err := c.decodeEnvelope("disk.folder.uploadfile", resp)
	if err != nil {
		return 0, err
	}

	var file struct {
		ID *flexInt `json:"ID"`
	}
	if err := json.Unmarshal(result, &file); err != nil || file.ID == nil {
		return 0, &ShapeError{Reason: "disk file id missing from result", Payload: string(result)}
	}
	return int(*file.ID), nil
}

// TaskRequest describes a task to create. Zero-valued optional fields
// (GroupID, Priority, CreatedBy) are omitted from the API call.
type TaskRequest struct {
	Title         string
	Description   string
	ResponsibleID int
	GroupID       int
	Priority      int
	CreatedBy     int
	FileIDs       []int
}

// CreateTask creates a task via tasks.task.add and returns its id.
func (c *Client) CreateTask(ctx context.Context, req TaskRequest) (int, error) {
	form := url.Values{}
	form.Set("fields[TITLE]", req.Title)
	form.Set("fields[DESCRIPTION]", req.Description)
	form.Set("fields[RESPONSIBLE_ID]", strconv.Itoa(req.ResponsibleID))
	if req.GroupID > 0 {
		form.Set("fields[GROUP_ID]", strconv.Itoa(req.GroupID))
	}
	if req.Priority > 0 {
		form.Set("fields[PRIORITY]", strconv.Itoa(req.Priority))
	}
	if req.CreatedBy > 0 {
		form.Set("fields[CREATED_BY]", strconv.Itoa(req.CreatedBy))
	}
	// Disk attachments go in as "n"-prefixed object ids.
	for i, id := range req.FileIDs {
		form.Set(fmt.Sprintf("fields[UF_TASK_WEBDAV_FILES][%d]", i), "n"+strconv.Itoa(id))
	}

	result, err := c.call(ctx, "tasks.task.add", form)
	if err != nil {
		return 0, err
	}

	// Current portals answer {"result":{"task":{"id":"123"}}}; older ones
	// answer {"result":{"id":123}}.
	var nested struct {
		Task struct {
			ID *flexInt `json:"id"`
		} `json:"task"`
		ID *flexInt `json:"id"`
	}
	if err := json.Unmarshal(result, &nested); err != nil {
		return 0, &ShapeError{Reason: "tasks.task.add result is not an object", Payload: string(result)}
	}
	raw := nested.Task.ID
	if raw == nil {
		raw = nested.ID
	}
	if raw == nil {
		return 0, &ShapeError{Reason: "task id missing from result", Payload: string(result)}
	}
	id := int(*raw)

	c.logger.Info("task created", zap.Int("task_id", id), zap.Int("attachments", len(req.FileIDs)))
	return id, nil
}

// Task is a single entry from a task listing.
type Task struct {
	ID       int
	Title    string
	Status   int
	Deadline string
}

// UnmarshalJSON tolerates both the camelCase keys of current portals and
// the upper-case keys of legacy ones.
func (t *Task) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	t.ID = intField(fields, "id", "ID")
	t.Title = stringField(fields, "title", "TITLE")
	t.Status = intField(fields, "realStatus", "REAL_STATUS", "status", "STATUS")
	t.Deadline = stringField(fields, "deadline", "DEADLINE")
	return nil
}

// ListTasksCreatedBy returns up to limit tasks created by the given
// Bitrix user, newest first.
func (c *Client) ListTasksCreatedBy(ctx context.Context, userID, limit int) ([]Task, error) {
	form := url.Values{}
	form.Set("filter[CREATED_BY]", strconv.Itoa(userID))
	form.Set("order[ID]", "desc")
	for i, field := range []string{"ID", "TITLE", "STATUS", "REAL_STATUS", "DEADLINE"} {
		form.Set(fmt.Sprintf("select[%d]", i), field)
	}

	result, err := c.call(ctx, "tasks.task.list", form)
	if err != nil {
		return nil, err
	}

	var listing struct {
		Tasks []Task `json:"tasks"`
	}
	if err := json.Unmarshal(result, &listing); err != nil {
		return nil, &ShapeError{Reason: "tasks.task.list result is not an object", Payload: string(truncate(result, 2048))}
	}
	tasks := listing.Tasks
	if limit > 0 && len(tasks) > limit {
		tasks = tasks[:limit]
	}
	return tasks, nil
}

// flexInt decodes a JSON number or a numeric string. Bitrix is not
// consistent about which one it sends for ids and statuses.
type flexInt int

func (f *flexInt) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	*f = flexInt(n)
	return nil
}

func intField(fields map[string]json.RawMessage, keys ...string) int {
	for _, key := range keys {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		var n flexInt
		if err := json.Unmarshal(raw, &n); err == nil && n != 0 {
			return int(n)
		}
	}
	return 0
}

func stringField(fields map[string]json.RawMessage, keys ...string) string {
	for _, key := range keys {
		raw, ok := fields[key]
		if !ok {
			continue
		}
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	return ""
}

func lastPathElement(path string) string {
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
