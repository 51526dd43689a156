package collect

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// DefaultFearGreedURL serves the alternative.me crypto fear & greed index.
const DefaultFearGreedURL = "https://api.alternative.me"

const fngTimeout = 10 * time.Second

// Index is one fear & greed reading. Value runs 0 (extreme fear) to 100
// (extreme greed).
type Index struct {
	Value          float64
	Classification string
	Timestamp      time.Time
}

// FearGreed fetches the crypto fear & greed index. Safe for concurrent use.
type FearGreed struct {
	baseURL    string
	httpClient *http.Client
}

// NewFearGreed creates a client. An empty baseURL selects the public
// alternative.me endpoint.
func NewFearGreed(baseURL string) *FearGreed {
	if baseURL == "" {
		baseURL = DefaultFearGreedURL
	}
	return &FearGreed{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: fngTimeout},
	}
}

// fngResponse mirrors GET /fng/. Value and timestamp arrive as strings.
type fngResponse struct {
	Data []struct {
		Value          string `json:"value"`
		Classification string `json:"value_classification"`
		Timestamp      string `json:"timestamp"`
	} `json:"data"`
}

// Latest returns the most recent index reading.
func (f *FearGreed) Latest(ctx context.Context) (Index, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+"/fng/?limit=1", nil)
	if err != nil {
		return Index{}, fmt.Errorf("collect: fear greed request: %w", err)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return Index{}, fmt.Errorf("collect: fear greed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Index{}, fmt.Errorf("collect: fear greed: read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return Index{}, fmt.Errorf("collect: fear greed: HTTP %d: %s", resp.StatusCode, raw)
	}

	var payload fngResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return Index{}, fmt.Errorf("collect: fear greed: decode response: %w", err)
	}
	if len(payload.Data) == 0 {
		return Index{}, fmt.Errorf("collect: fear greed: empty response")
	}

	entry := payload.Data[0]
	value, err := strconv.ParseFloat(entry.Value, 64)
	if err != nil {
		return Index{}, fmt.Errorf("collect: fear greed: parse value %q: %w", entry.Value, err)
	}
	idx := Index{Value: value, Classification: entry.Classification}
	if secs, perr := strconv.ParseInt(entry.Timestamp, 10, 64); perr == nil {
		idx.Timestamp = time.Unix(secs, 0).UTC()
	} else {
		idx.Timestamp = time.Now().UTC()
	}
	return idx, nil
}
