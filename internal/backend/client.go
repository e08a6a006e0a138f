// Package backend is the HTTP client for the catalog API: batch extraction,
// price matching, server-tracked jobs, bulk product creation and upload
// history.
package backend

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/jungwonlee1988/wedealize-sub000/internal/domain"
)

const maxErrorBody = 2048

// Client talks to the catalog API.
type Client struct {
	baseURL    string
	token      string
	timeout    time.Duration
	httpClient *http.Client
}

// NewClient creates a catalog API client. timeout bounds requests that carry
// no deadline of their own; zero means no client-side limit.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		timeout:    timeout,
		httpClient: &http.Client{},
	}
}

type batchImage struct {
	PageNumber int    `json:"pageNumber"`
	MIMEType   string `json:"mimeType"`
	Data       string `json:"data"`
}

// ExtractBatch sends one batch of page images to the extraction endpoint.
func (c *Client) ExtractBatch(ctx context.Context, req domain.ExtractionRequest) ([]*domain.ExtractedProduct, error) {
	images := make([]batchImage, len(req.Images))
	for i, p := range req.Images {
		images[i] = batchImage{
			PageNumber: p.PageNumber,
			MIMEType:   p.MIMEType,
			Data:       base64.StdEncoding.EncodeToString(p.Data),
		}
	}

	payload := map[string]interface{}{
		"fileName":     req.FileName,
		"batchIndex":   req.BatchIndex,
		"totalBatches": req.TotalBatches,
		"images":       images,
	}

	var result struct {
		Products []*domain.ExtractedProduct `json:"products"`
	}
	if err := c.doJSONRequest(ctx, http.MethodPost, "/api/catalog/extract-batch", payload, &result); err != nil {
		return nil, err
	}
	return result.Products, nil
}

// MatchPrices uploads a price list together with the current products.
func (c *Client) MatchPrices(ctx context.Context, req domain.PriceListRequest) ([]domain.PriceMatch, error) {
	products, err := json.Marshal(req.Products)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal products: %w", err)
	}

	var result struct {
		Matched []domain.PriceMatch `json:"matched"`
		Matches []domain.PriceMatch `json:"matches"` // older services
	}
	fields := map[string]string{"products": string(products)}
	if err := c.doMultipartRequest(ctx, "/api/catalog/match-prices", req.FileName, req.Data, fields, &result); err != nil {
		return nil, err
	}
	if result.Matched == nil {
		return result.Matches, nil
	}
	return result.Matched, nil
}

// SubmitJob uploads a document for server-side processing and returns the job id.
func (c *Client) SubmitJob(ctx context.Context, doc domain.Document) (string, error) {
	var result struct {
		JobID string `json:"jobId"`
	}
	if err := c.doMultipartRequest(ctx, "/api/catalog/jobs", doc.FileName, doc.Data, nil, &result); err != nil {
		return "", err
	}
	if result.JobID == "" {
		return "", domain.APIError("job submission returned no job id", nil)
	}
	return result.JobID, nil
}

// JobStatus returns the current status of a job.
func (c *Client) JobStatus(ctx context.Context, jobID string) (*domain.Job, error) {
	var job domain.Job
	if err := c.doJSONRequest(ctx, http.MethodGet, "/api/catalog/jobs/"+url.PathEscape(jobID), nil, &job); err != nil {
		return nil, err
	}
	if job.JobID == "" {
		job.JobID = jobID
	}
	return &job, nil
}

// JobProducts returns the products extracted by a completed job.
func (c *Client) JobProducts(ctx context.Context, jobID string) ([]*domain.ExtractedProduct, error) {
	var result struct {
		Products []*domain.ExtractedProduct `json:"products"`
	}
	path := "/api/catalog/jobs/" + url.PathEscape(jobID) + "/products"
	if err := c.doJSONRequest(ctx, http.MethodGet, path, nil, &result); err != nil {
		return nil, err
	}
	return result.Products, nil
}

// BulkCreate creates catalog products in a single request.
func (c *Client) BulkCreate(ctx context.Context, items []domain.CommitItem) (int, error) {
	payload := map[string]interface{}{"products": items}

	var result struct {
		Count   *int `json:"count"`
		Created *int `json:"created"`
	}
	if err := c.doJSONRequest(ctx, http.MethodPost, "/api/products/bulk", payload, &result); err != nil {
		return 0, err
	}

	switch {
	case result.Count != nil:
		return *result.Count, nil
	case result.Created != nil:
		return *result.Created, nil
	default:
		return len(items), nil
	}
}

// RecordUpload stores an upload history entry.
func (c *Client) RecordUpload(ctx context.Context, rec domain.UploadRecord) error {
	return c.doJSONRequest(ctx, http.MethodPost, "/api/catalog/uploads", rec, nil)
}

// doJSONRequest performs a JSON request. If result is nil, the response body
// is not decoded.
func (c *Client) doJSONRequest(ctx context.Context, method, path string, payload, result interface{}) error {
	var body io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return c.do(req, result)
}

// doMultipartRequest uploads a file under the "file" field plus extra form fields.
func (c *Client) doMultipartRequest(ctx context.Context, path, fileName string, data []byte, fields map[string]string, result interface{}) error {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	part, err := w.CreateFormFile("file", fileName)
	if err != nil {
		return fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return fmt.Errorf("failed to write form file: %w", err)
	}
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			return fmt.Errorf("failed to write form field %s: %w", k, err)
		}
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	return c.do(req, result)
}

func (c *Client) do(req *http.Request, result interface{}) error {
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	if _, ok := req.Context().Deadline(); !ok && c.timeout > 0 {
		ctx, cancel := context.WithTimeout(req.Context(), c.timeout)
		defer cancel()
		req = req.WithContext(ctx)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.APIError(fmt.Sprintf("%s %s failed", req.Method, req.URL.Path), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		apiErr := &StatusError{Method: req.Method, Path: req.URL.Path, Code: resp.StatusCode, Body: strings.TrimSpace(string(bodyBytes))}
		if resp.StatusCode == http.StatusNotFound && strings.HasPrefix(req.URL.Path, "/api/catalog/jobs/") {
			return fmt.Errorf("%w: %v", domain.ErrJobNotFound, apiErr)
		}
		return domain.APIError(apiErr.Error(), apiErr)
	}

	if result != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return domain.APIError("failed to decode response", err)
		}
	}
	return nil
}

// StatusError is a non-2xx response from the catalog API.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s %s returned %d", e.Method, e.Path, e.Code)
	}
	return fmt.Sprintf("%s %s returned %d: %s", e.Method, e.Path, e.Code, e.Body)
}
