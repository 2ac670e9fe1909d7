package chat

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/chatman/internal/model"
)

// OpenAIConfig はOpenAI互換エンドポイントの設定。
type OpenAIConfig struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature *float64
	// Timeout はストリーミングを含む1リクエスト全体の上限。ゼロ値の場合は60秒。
	Timeout time.Duration
}

// OpenAIClient はOpenAI互換のchat completions APIを呼び出すCompleter実装。
// OpenRouterやローカルのvLLM等、同一ワイヤフォーマットのプロバイダーでも動作する。
type OpenAIClient struct {
	config     OpenAIConfig
	httpClient *http.Client
}

// NewOpenAIClient はOpenAIClientを生成する。
func NewOpenAIClient(config OpenAIConfig) *OpenAIClient {
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}
	return &OpenAIClient{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature *float64      `json:"temperature,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// streamChunk はSSEのdata行1件分のペイロード。
type streamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// Complete はウィンドウ全体を入力として応答テキストを同期生成する。
func (c *OpenAIClient) Complete(ctx context.Context, window []Turn) (string, error) {
	resp, err := c.send(ctx, window, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read completion response: %w", err)
	}

	var chatResp chatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return "", fmt.Errorf("failed to parse completion response: %w", err)
	}
	if len(chatResp.Choices) == 0 {
		return "", fmt.Errorf("completion response contains no choices")
	}

	return chatResp.Choices[0].Message.Content, nil
}

// CompleteStream は応答をSSEストリームで受信し、チャンクを到着順にonChunkへ渡す。
// "data: [DONE]" 行でストリーム終端とみなす。
func (c *OpenAIClient) CompleteStream(ctx context.Context, window []Turn, onChunk func(chunk string) error) error {
	resp, err := c.send(ctx, window, true)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			return nil
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			return fmt.Errorf("failed to parse stream chunk: %w", err)
		}
		if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
			continue
		}

		if err := onChunk(chunk.Choices[0].Delta.Content); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read completion stream: %w", err)
	}

	// [DONE]前にストリームが閉じた場合もプロバイダー側の完了として扱う
	return nil
}

// send はchat completionsリクエストを送信し、2xxレスポンスを返す。
func (c *OpenAIClient) send(ctx context.Context, window []Turn, stream bool) (*http.Response, error) {
	chatReq := chatRequest{
		Model:       c.config.Model,
		Messages:    toChatMessages(window),
		Temperature: c.config.Temperature,
		Stream:      stream,
	}

	payload, err := json.Marshal(chatReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal completion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.config.BaseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("completion request failed: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, fmt.Errorf("completion endpoint returned status %d", resp.StatusCode)
	}

	return resp, nil
}

// toChatMessages はウィンドウをワイヤフォーマットのメッセージ配列へ変換する。
// ウィンドウ末尾が今回のユーザー発話であるため、別途promptを付加しない。
func toChatMessages(window []Turn) []chatMessage {
	messages := make([]chatMessage, len(window))
	for i, turn := range window {
		role := "assistant"
		if turn.Role == model.RoleUser {
			role = "user"
		}
		messages[i] = chatMessage{Role: role, Content: turn.Content}
	}
	return messages
}

// compile-time interface check
var _ Completer = (*OpenAIClient)(nil)
