package llm

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

	"github.com/jungwonlee1988/wedealize-sub000/internal/domain"
)

func TestNewClient(t *testing.T) {
	tests := []struct {
		name      string
		model     string
		wantModel string
	}{
		{"default model", "", defaultModel},
		{"custom model", "google/gemini-2.5-pro", "google/gemini-2.5-pro"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewClient("sk-or-test-key", tt.model)
			assert.Equal(t, tt.wantModel, c.model)
			assert.Equal(t, openRouterURL, c.url)
		})
	}
}

// completionServer answers every request with content as the first choice and
// records the decoded request.
func completionServer(t *testing.T, content string, got *Request) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		if got != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(got))
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Response{
			ID:      "gen-1",
			Choices: []Choice{{Message: ChoiceMessage{Role: "assistant", Content: content}, FinishReason: "stop"}},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func batchRequest() domain.ExtractionRequest {
	return domain.ExtractionRequest{
		Images: []domain.SourcePage{
			{PageNumber: 6, Data: []byte{0xff, 0xd8, 0x01}, MIMEType: "image/jpeg"},
			{PageNumber: 7, Data: []byte{0xff, 0xd8, 0x02}},
		},
		FileName:     "catalog.pdf",
		BatchIndex:   1,
		TotalBatches: 3,
	}
}

func TestClient_ExtractBatch(t *testing.T) {
	content := "```json\n" + `{"products": [
		{"productName": "Kimchi", "brand": "Jongga", "unitSpec": "1kg", "unitPrice": 12.5, "currency": "USD", "certifications": ["HACCP", " "]},
		{"productName": "  ", "brand": "skipped"},
		{"productName": "Tofu", "brand": null, "casePrice": "$30.00"}
	]}` + "\n```"

	var got Request
	srv := completionServer(t, content, &got)
	c := NewClient("test-key", "", WithBaseURL(srv.URL))

	products, err := c.ExtractBatch(context.Background(), batchRequest())
	require.NoError(t, err)

	require.Len(t, products, 2)
	assert.Equal(t, "Kimchi", products[0].ProductName)
	assert.Equal(t, "Jongga", *products[0].Brand)
	assert.Equal(t, "12.5", *products[0].UnitPrice)
	assert.Equal(t, []string{"HACCP"}, products[0].Certifications)
	assert.Nil(t, products[1].Brand)
	assert.Equal(t, "$30.00", *products[1].CasePrice)

	require.Len(t, got.Messages, 1)
	parts := got.Messages[0].Content
	require.Len(t, parts, 3, "prompt plus one part per image")
	assert.Contains(t, parts[0].Text, "pages 6 to 7")
	assert.Contains(t, parts[0].Text, "batch 2 of 3")
	assert.True(t, strings.HasPrefix(parts[1].ImageURL.URL, "data:image/jpeg;base64,"))
	assert.True(t, strings.HasPrefix(parts[2].ImageURL.URL, "data:image/jpeg;base64,"))
	assert.Equal(t, "json_object", got.ResponseFormat.Type)
	assert.False(t, got.Stream)
}

func TestClient_ExtractBatchErrors(t *testing.T) {
	t.Run("non-200 status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "rate limited", http.StatusTooManyRequests)
		}))
		defer srv.Close()

		_, err := NewClient("test-key", "", WithBaseURL(srv.URL)).ExtractBatch(context.Background(), batchRequest())
		require.Error(t, err)
		assert.True(t, domain.IsType(err, domain.ErrorTypeAPI))
		assert.Contains(t, err.Error(), "429")
	})

	t.Run("malformed model output", func(t *testing.T) {
		srv := completionServer(t, "Sorry, I cannot read this.", nil)
		_, err := NewClient("test-key", "", WithBaseURL(srv.URL)).ExtractBatch(context.Background(), batchRequest())
		assert.True(t, domain.IsType(err, domain.ErrorTypeExtraction))
	})

	t.Run("context deadline", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			<-r.Context().Done()
		}))
		defer srv.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err := NewClient("test-key", "", WithBaseURL(srv.URL)).ExtractBatch(ctx, batchRequest())
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})
}

func TestClient_ExtractBatchEmpty(t *testing.T) {
	products, err := NewClient("test-key", "").ExtractBatch(context.Background(), domain.ExtractionRequest{})
	assert.NoError(t, err)
	assert.Empty(t, products)
}

func TestClient_MatchPrices(t *testing.T) {
	var got Request
	srv := completionServer(t, `{"matches": [{"id": "a", "price": 9.9}, {"id": "b", "price": "KRW 2,500"}, {"id": "", "price": "1"}]}`, &got)
	c := NewClient("test-key", "", WithBaseURL(srv.URL))

	matches, err := c.MatchPrices(context.Background(), domain.PriceListRequest{
		FileName: "prices.csv",
		Data:     []byte("name,price\nKimchi,9.90\nTofu,\"KRW 2,500\"\n"),
		Products: []*domain.ExtractedProduct{
			{ID: "a", ProductName: "Kimchi", Brand: domain.StringPtr("Jongga")},
			{ID: "b", ProductName: "Tofu"},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, []domain.PriceMatch{{ID: "a", Price: "9.9"}, {ID: "b", Price: "KRW 2,500"}}, matches)
	assert.Contains(t, got.Messages[0].Content[0].Text, `"id":"a"`)
	assert.Contains(t, got.Messages[0].Content[0].Text, "Kimchi,9.90")
}

func TestClient_MatchPricesRejectsBinary(t *testing.T) {
	_, err := NewClient("test-key", "").MatchPrices(context.Background(), domain.PriceListRequest{
		FileName: "prices.xlsx",
		Data:     []byte("PK\x03\x04"),
	})
	assert.True(t, domain.IsType(err, domain.ErrorTypeValidation))
}

func TestFlexString(t *testing.T) {
	var v struct {
		A flexString `json:"a"`
		B flexString `json:"b"`
		C flexString `json:"c"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a": " x ", "b": 12.50, "c": null}`), &v))
	assert.Equal(t, flexString("x"), v.A)
	assert.Equal(t, flexString("12.50"), v.B)
	assert.Nil(t, v.C.ptr())
}
