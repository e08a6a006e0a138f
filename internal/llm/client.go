// Package llm extracts catalog products and price matches through an
// OpenRouter-hosted vision model.
package llm

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/jungwonlee1988/wedealize-sub000/internal/domain"
	"github.com/jungwonlee1988/wedealize-sub000/internal/observability"
)

const (
	openRouterURL = "https://openrouter.ai/api/v1/chat/completions"
	defaultModel  = "google/gemini-2.5-flash-preview-09-2025"

	maxErrorBody = 2048
)

// Client handles communication with the OpenRouter API. It implements
// domain.Extractor and domain.PriceMatcher.
type Client struct {
	apiKey     string
	model      string
	url        string
	httpClient *http.Client
	logger     *observability.Logger
}

// Message represents a chat message
type Message struct {
	Role    string        `json:"role"`
	Content []ContentPart `json:"content"`
}

// ContentPart represents a part of message content (text or image)
type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *ImageURL `json:"image_url,omitempty"`
}

// ImageURL represents an image URL in the message
type ImageURL struct {
	URL string `json:"url"`
}

// ResponseFormat asks the model for a JSON object.
type ResponseFormat struct {
	Type string `json:"type"`
}

// Request represents the API request structure
type Request struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Stream         bool            `json:"stream"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
}

// Response represents the API response structure
type Response struct {
	ID      string   `json:"id"`
	Choices []Choice `json:"choices"`
	Error   *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Choice represents a single completion choice
type Choice struct {
	Message      ChoiceMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

// ChoiceMessage is the assistant message of a choice.
type ChoiceMessage struct {
	Content string `json:"content"`
	Role    string `json:"role"`
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the chat completions endpoint.
func WithBaseURL(url string) Option {
	return func(c *Client) {
		if url != "" {
			c.url = url
		}
	}
}

// WithHTTPClient sets the HTTP client used for requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger.
func WithLogger(l *observability.Logger) Option {
	return func(c *Client) { c.logger = l.WithComponent("llm") }
}

// NewClient creates a new LLM client. Per-call deadlines come from the
// caller's context.
func NewClient(apiKey, model string, opts ...Option) *Client {
	if model == "" {
		model = defaultModel
	}

	c := &Client{
		apiKey:     apiKey,
		model:      model,
		url:        openRouterURL,
		httpClient: &http.Client{},
		logger:     observability.NopLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ExtractBatch sends one batch of page images and returns the products the
// model found on them.
func (c *Client) ExtractBatch(ctx context.Context, req domain.ExtractionRequest) ([]*domain.ExtractedProduct, error) {
	if len(req.Images) == 0 {
		return nil, nil
	}

	parts := make([]ContentPart, 0, len(req.Images)+1)
	parts = append(parts, ContentPart{Type: "text", Text: extractionPrompt(req)})
	for _, page := range req.Images {
		mime := page.MIMEType
		if mime == "" {
			mime = "image/jpeg"
		}
		parts = append(parts, ContentPart{
			Type:     "image_url",
			ImageURL: &ImageURL{URL: "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(page.Data)},
		})
	}

	content, err := c.complete(ctx, parts)
	if err != nil {
		return nil, err
	}

	var out struct {
		Products []rawProduct `json:"products"`
	}
	if err := decodeJSON(content, &out); err != nil {
		return nil, domain.ExtractionError("Failed to parse model output", err)
	}

	products := make([]*domain.ExtractedProduct, 0, len(out.Products))
	for _, rp := range out.Products {
		if p := rp.toProduct(); p != nil {
			products = append(products, p)
		}
	}

	c.logger.Debug().
		Int("batch", req.BatchIndex+1).
		Int("total_batches", req.TotalBatches).
		Int("pages", len(req.Images)).
		Int("products", len(products)).
		Msg("Batch extracted")

	return products, nil
}

// MatchPrices matches a text price list (CSV, TSV or plain text) against
// products by asking the model to pair rows with product ids.
func (c *Client) MatchPrices(ctx context.Context, req domain.PriceListRequest) ([]domain.PriceMatch, error) {
	if !isTextPriceList(req) {
		return nil, domain.ValidationError(
			fmt.Sprintf("price list %q is not a text file; use the catalog service for spreadsheets and PDFs", req.FileName), nil)
	}

	type candidate struct {
		ID          string `json:"id"`
		ProductName string `json:"productName"`
		Brand       string `json:"brand,omitempty"`
		UnitSpec    string `json:"unitSpec,omitempty"`
	}
	candidates := make([]candidate, 0, len(req.Products))
	for _, p := range req.Products {
		c := candidate{ID: p.ID, ProductName: p.ProductName}
		if p.Brand != nil {
			c.Brand = *p.Brand
		}
		if p.UnitSpec != nil {
			c.UnitSpec = *p.UnitSpec
		}
		candidates = append(candidates, c)
	}
	productsJSON, err := json.Marshal(candidates)
	if err != nil {
		return nil, domain.APIError("Failed to marshal products", err)
	}

	content, err := c.complete(ctx, []ContentPart{
		{Type: "text", Text: priceMatchPrompt(string(productsJSON), string(req.Data))},
	})
	if err != nil {
		return nil, err
	}

	var out struct {
		Matches []struct {
			ID    string     `json:"id"`
			Price flexString `json:"price"`
		} `json:"matches"`
	}
	if err := decodeJSON(content, &out); err != nil {
		return nil, domain.APIError("Failed to parse model output", err)
	}

	matches := make([]domain.PriceMatch, 0, len(out.Matches))
	for _, m := range out.Matches {
		if m.ID == "" || m.Price == "" {
			continue
		}
		matches = append(matches, domain.PriceMatch{ID: m.ID, Price: string(m.Price)})
	}
	return matches, nil
}

// complete sends one non-streaming chat completion and returns the content
// of the first choice.
func (c *Client) complete(ctx context.Context, parts []ContentPart) (string, error) {
	body, err := json.Marshal(&Request{
		Model:          c.model,
		Messages:       []Message{{Role: "user", Content: parts}},
		Temperature:    0,
		ResponseFormat: &ResponseFormat{Type: "json_object"},
	})
	if err != nil {
		return "", domain.APIError("Failed to marshal request", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", domain.APIError("Failed to build request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("HTTP-Referer", "https://github.com/jungwonlee1988/wedealize-sub000")
	httpReq.Header.Set("X-Title", "Supplier Catalog Ingestion")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", domain.APIError("Failed to send request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", domain.APIError(fmt.Sprintf("API returned status %d: %s", resp.StatusCode, string(bodyBytes)), nil)
	}

	var parsed Response
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", domain.APIError("Failed to decode response", err)
	}
	if parsed.Error != nil {
		return "", domain.APIError("API error: "+parsed.Error.Message, nil)
	}
	if len(parsed.Choices) == 0 {
		return "", domain.APIError("API returned no choices", nil)
	}

	return parsed.Choices[0].Message.Content, nil
}

// rawProduct is a product as the model writes it. Prices may be numbers.
type rawProduct struct {
	ProductName    string     `json:"productName"`
	Brand          flexString `json:"brand"`
	UnitSpec       flexString `json:"unitSpec"`
	Category       flexString `json:"category"`
	UnitPrice      flexString `json:"unitPrice"`
	CasePrice      flexString `json:"casePrice"`
	Currency       flexString `json:"currency"`
	PriceBasis     flexString `json:"priceBasis"`
	ShelfLife      flexString `json:"shelfLife"`
	Certifications []string   `json:"certifications"`
}

func (r rawProduct) toProduct() *domain.ExtractedProduct {
	name := strings.TrimSpace(r.ProductName)
	if name == "" {
		return nil
	}

	certs := make([]string, 0, len(r.Certifications))
	for _, c := range r.Certifications {
		if c = strings.TrimSpace(c); c != "" {
			certs = append(certs, c)
		}
	}

	return &domain.ExtractedProduct{
		ProductName:    name,
		Brand:          r.Brand.ptr(),
		UnitSpec:       r.UnitSpec.ptr(),
		Category:       r.Category.ptr(),
		UnitPrice:      r.UnitPrice.ptr(),
		CasePrice:      r.CasePrice.ptr(),
		Currency:       r.Currency.ptr(),
		PriceBasis:     r.PriceBasis.ptr(),
		ShelfLife:      r.ShelfLife.ptr(),
		Certifications: certs,
	}
}

// flexString accepts a JSON string, number or null.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexString(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", string(b))
	}
	*f = flexString(n.String())
	return nil
}

func (f flexString) ptr() *string {
	return domain.StringPtr(string(f))
}

// decodeJSON parses model output, tolerating a surrounding markdown fence.
func decodeJSON(content string, v any) error {
	s := strings.TrimSpace(content)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	if s == "" {
		return fmt.Errorf("empty model output")
	}
	return json.Unmarshal([]byte(s), v)
}

func isTextPriceList(req domain.PriceListRequest) bool {
	switch (domain.Document{FileName: req.FileName}).FileType() {
	case "csv", "tsv", "txt":
		return true
	case "":
		return http.DetectContentType(req.Data) == "text/plain; charset=utf-8"
	default:
		return false
	}
}

func extractionPrompt(req domain.ExtractionRequest) string {
	var b strings.Builder
	b.WriteString("You are a product catalog extraction expert. The attached images are ")
	first, last := req.Images[0].PageNumber, req.Images[len(req.Images)-1].PageNumber
	if first > 0 && last >= first {
		b.WriteString("pages " + strconv.Itoa(first) + " to " + strconv.Itoa(last) + " ")
	} else {
		b.WriteString("pages ")
	}
	b.WriteString("of a supplier catalog")
	if req.FileName != "" {
		b.WriteString(" named \"" + req.FileName + "\"")
	}
	fmt.Fprintf(&b, " (batch %d of %d).", req.BatchIndex+1, req.TotalBatches)
	b.WriteString(`

Extract every distinct product offered for sale. Return ONLY a JSON object of the form:
{"products": [{
  "productName": "string, required",
  "brand": "string or null",
  "unitSpec": "pack size / unit, e.g. 500g x 12, or null",
  "category": "string or null",
  "unitPrice": "price per unit exactly as printed, or null",
  "casePrice": "price per case exactly as printed, or null",
  "currency": "ISO code such as USD, KRW, EUR, or null",
  "priceBasis": "what the unit price is per, e.g. kg, bottle, or null",
  "shelfLife": "string or null",
  "certifications": ["HACCP", "Organic", ...]
}]}

RULES:
- One entry per product variant; different pack sizes are different products
- Do not invent values; use null when a field is not printed
- Skip contact details, company descriptions, and legal text
- If a page has no products, return {"products": []}`)
	return b.String()
}

func priceMatchPrompt(productsJSON, priceList string) string {
	return `You reconcile a supplier price list against a product catalog.

CATALOG PRODUCTS (JSON):
` + productsJSON + `

PRICE LIST:
` + priceList + `

For each catalog product that clearly appears in the price list, output its id and the price as printed.
Return ONLY a JSON object: {"matches": [{"id": "catalog id", "price": "price as printed"}]}
Never output ids that are not in the catalog. Omit products without a confident match.`
}
