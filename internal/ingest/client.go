package ingest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/lk2023060901/member-qa-backend/internal/qa/types"
)

// Page is one paginated slice of the upstream message feed
type Page struct {
	Total int
	Items []types.Message
}

// MessageClient fetches messages from the upstream member API.
type MessageClient struct {
	baseURL string
	client  *http.Client
}

// NewMessageClient creates a client for the paginated messages endpoint.
func NewMessageClient(baseURL string, timeout time.Duration) *MessageClient {
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &MessageClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

// statusError distinguishes HTTP failures from transport failures
type statusError struct {
	StatusCode int
	Body       string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("upstream returned status %d: %s", e.StatusCode, e.Body)
}

// FetchPage fetches one page. Upstream payloads drift in shape, so parsing
// is tolerant: missing fields become zero values rather than errors.
func (c *MessageClient) FetchPage(ctx context.Context, skip, limit int) (*Page, error) {
	url := fmt.Sprintf("%s/messages/?skip=%d&limit=%d", c.baseURL, skip, limit)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		preview := string(body)
		if len(preview) > 500 {
			preview = preview[:500]
		}
		return nil, &statusError{StatusCode: resp.StatusCode, Body: preview}
	}

	parsed := gjson.ParseBytes(body)
	page := &Page{Total: int(parsed.Get("total").Int())}

	parsed.Get("items").ForEach(func(_, item gjson.Result) bool {
		id := item.Get("id").String()
		if id == "" {
			// Upstream occasionally omits ids; a synthetic one keeps the
			// vector upsert keyed.
			id = uuid.New().String()
		}
		page.Items = append(page.Items, types.Message{
			ID:        id,
			UserID:    item.Get("user_id").String(),
			UserName:  item.Get("user_name").String(),
			Timestamp: item.Get("timestamp").String(),
			Text:      item.Get("message").String(),
		})
		return true
	})

	return page, nil
}
