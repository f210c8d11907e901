package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"ethtrader/internal/apperr"

	"github.com/hashicorp/go-cleanhttp"
)

const (
	DefaultTokenListURL = "https://tokens.uniswap.org"
	DefaultFetchTimeout = 30 * time.Second

	maxTokenListSize = 32 << 20
)

// ListedToken is a single entry of a tokenlists.org document
type ListedToken struct {
	ChainID  uint64 `json:"chainId"`
	Address  string `json:"address"`
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Decimals uint8  `json:"decimals"`
	LogoURI  string `json:"logoURI,omitempty"`
}

type TokenList struct {
	Name   string        `json:"name"`
	Tokens []ListedToken `json:"tokens"`
}

// Fetcher returns the current remote token list
type Fetcher interface {
	Fetch(ctx context.Context) (*TokenList, error)
}

// HTTPFetcher downloads a token list over HTTP
type HTTPFetcher struct {
	url    string
	client *http.Client
}

func NewHTTPFetcher(url string, timeout time.Duration) *HTTPFetcher {
	if url == "" {
		url = DefaultTokenListURL
	}
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}

	client := cleanhttp.DefaultPooledClient()
	client.Timeout = timeout

	return &HTTPFetcher{url: url, client: client}
}

func (f *HTTPFetcher) URL() string {
	return f.url
}

func (f *HTTPFetcher) Fetch(ctx context.Context) (*TokenList, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindTransport, "build token list request", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindTransport, "failed to fetch token list", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// drain so the pooled connection can be reused
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, apperr.Newf(apperr.KindTransport, "token list API returned status: %d", resp.StatusCode)
	}

	var list TokenList
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxTokenListSize)).Decode(&list); err != nil {
		return nil, apperr.Wrap(apperr.KindParse, "failed to parse token list", err)
	}

	return &list, nil
}

func (f *HTTPFetcher) String() string {
	return fmt.Sprintf("HTTPFetcher(%s)", f.url)
}
