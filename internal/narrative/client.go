package narrative

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// maxResponseSize は文章生成APIのレスポンスの上限。
const maxResponseSize = 1 << 20

// Completer は指示文から文章を生成する外部API。
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// HTTPClient はJSONの文章生成APIのクライアント。
// POST {endpoint} に {"prompt": ...} を送り、{"text": ...} を受け取る。
type HTTPClient struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPClient はHTTPClientを生成する。
// httpClientには通常SSRF防止付きのクライアントを渡す。
func NewHTTPClient(endpoint, apiKey string, httpClient *http.Client) *HTTPClient {
	return &HTTPClient{endpoint: endpoint, apiKey: apiKey, httpClient: httpClient}
}

type completionRequest struct {
	Prompt string `json:"prompt"`
}

type completionResponse struct {
	Text string `json:"text"`
}

// Complete は文章生成APIを呼び出す。
func (c *HTTPClient) Complete(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(completionRequest{Prompt: prompt})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("リクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "BeetleBase/1.0")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("文章生成APIの呼び出しに失敗しました: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return "", fmt.Errorf("レスポンスの読み取りに失敗しました: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("文章生成APIがステータス %d を返しました", resp.StatusCode)
	}

	var out completionResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("レスポンスの解析に失敗しました: %w", err)
	}
	return out.Text, nil
}

var _ Completer = (*HTTPClient)(nil)
