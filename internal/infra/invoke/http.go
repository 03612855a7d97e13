package invoke

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vietddude/orchestrator/internal/core/domain"
)

// HTTPError is returned for non-2xx gateway responses.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Body)
}

// HTTPInvoker invokes chaincode through a REST gateway:
// POST {base}/channels/{contract}/chaincodes/{function}.
type HTTPInvoker struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPInvoker creates a new REST gateway invoker.
func NewHTTPInvoker(baseURL string, timeout time.Duration) *HTTPInvoker {
	return &HTTPInvoker{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

type invokeBody struct {
	Peers    []string `json:"peers"`
	Fcn      string   `json:"fcn"`
	Args     []string `json:"args"`
	Username string   `json:"username"`
	Orgname  string   `json:"orgname"`
}

// Invoke submits the request and returns the transaction id.
func (i *HTTPInvoker) Invoke(ctx context.Context, req domain.InvocationRequest) (string, error) {
	args := req.Args
	if args == nil {
		args = []string{}
	}
	jsonData, err := json.Marshal(invokeBody{
		Peers:    req.Endpoints,
		Fcn:      req.Method,
		Args:     args,
		Username: req.Identity,
		Orgname:  req.Org,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/channels/%s/chaincodes/%s",
		i.baseURL, url.PathEscape(req.ContractID), url.PathEscape(req.Function))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := i.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("invoke call: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	return parseTransactionID(body)
}

// parseTransactionID accepts {"transaction": "..."}, {"transactionId": "..."}
// or a bare id, quoted or not.
func parseTransactionID(body []byte) (string, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return "", fmt.Errorf("empty response")
	}

	switch trimmed[0] {
	case '{':
		var resp struct {
			Transaction   string `json:"transaction"`
			TransactionID string `json:"transactionId"`
			Message       string `json:"message"`
		}
		if err := json.Unmarshal(trimmed, &resp); err != nil {
			return "", fmt.Errorf("parse response: %w", err)
		}
		if resp.Transaction != "" {
			return resp.Transaction, nil
		}
		if resp.TransactionID != "" {
			return resp.TransactionID, nil
		}
		return "", fmt.Errorf("response without transaction id: %s", resp.Message)
	case '"':
		var id string
		if err := json.Unmarshal(trimmed, &id); err != nil {
			return "", fmt.Errorf("parse response: %w", err)
		}
		return id, nil
	default:
		return string(trimmed), nil
	}
}
