// Package classifier decides whether a chat message is an important
// notification and extracts its structured fields, using a remote
// chat-completions model.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/stellarlinkco/groupwatch/internal/config"
	"github.com/stellarlinkco/groupwatch/internal/store"
)

const (
	testPrompt = "请回答'API连接正常'"

	classifyPrompt = "请严格判断以下消息是否为重要通知（如活动通知、紧急通知、重要提醒等），只需回答是或否:\n%s"

	extractPrompt = `请严格从以下通知中提取关键信息，返回规范的JSON格式，确保所有属性名用双引号包围：
{
    "title": "通知标题",
    "time": "时间信息",
    "location": "地点信息",
    "content": "主要内容摘要",
    "action": "需要采取的行动",
    "is_urgent": false
}

通知内容：
%s`

	// Local gate before any remote call: keyword hit or length above this.
	shortMessageRunes = 20

	defaultTitle    = "未知通知"
	contentCapRunes = 200
)

// Classifier is the model-facing surface the monitor depends on.
type Classifier interface {
	TestConnection(ctx context.Context) (string, error)
	IsNotification(ctx context.Context, content string, keywords []string) (bool, error)
	ExtractInfo(ctx context.Context, content string) store.Extracted
}

type Client struct {
	apiKey     string
	baseURL    string
	model      config.ModelConfig
	httpClient *http.Client
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		apiKey:     cfg.Provider.APIKey,
		baseURL:    strings.TrimRight(strings.TrimSpace(cfg.Provider.BaseURL), "/"),
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Model returns the configured model identifier.
func (c *Client) Model() string {
	return c.model.Name
}

// TestConnection sends a canned prompt and returns the model's reply.
func (c *Client) TestConnection(ctx context.Context) (string, error) {
	return c.complete(ctx, testPrompt)
}

// IsNotification reports whether content is an important notification.
// Short, keyword-free content is rejected locally without a remote call;
// everything else is put to the model as a yes/no question.
func (c *Client) IsNotification(ctx context.Context, content string, keywords []string) (bool, error) {
	hasKeyword := false
	for _, kw := range keywords {
		if kw != "" && strings.Contains(content, kw) {
			hasKeyword = true
			break
		}
	}
	if !hasKeyword && len([]rune(content)) <= shortMessageRunes {
		return false, nil
	}

	reply, err := c.complete(ctx, fmt.Sprintf(classifyPrompt, content))
	if err != nil {
		return false, fmt.Errorf("classify: %w", err)
	}
	return strings.Contains(strings.TrimSpace(reply), "是"), nil
}

// ExtractInfo asks the model for the six-field JSON object and parses the
// reply. Model output is unreliable free text, so parsing degrades in
// stages and always lands on a deterministic default record.
func (c *Client) ExtractInfo(ctx context.Context, content string) store.Extracted {
	reply, err := c.complete(ctx, fmt.Sprintf(extractPrompt, content))
	if err != nil {
		return DefaultExtracted(content)
	}
	return ParseExtracted(reply, content)
}

// DefaultExtracted is the fallback record when the model reply is unusable.
func DefaultExtracted(content string) store.Extracted {
	runes := []rune(content)
	if len(runes) > contentCapRunes {
		runes = runes[:contentCapRunes]
	}
	return store.Extracted{
		Title:   defaultTitle,
		Content: string(runes),
	}
}

// ParseExtracted decodes a model reply into an Extracted record: direct
// JSON decode first, then the first-{ last-} substring, then the default.
// Fields absent from a parsed object are backfilled from the default.
func ParseExtracted(reply, original string) store.Extracted {
	def := DefaultExtracted(original)

	raw, ok := decodeObject(reply)
	if !ok {
		start := strings.Index(reply, "{")
		end := strings.LastIndex(reply, "}")
		if start < 0 || end <= start {
			return def
		}
		raw, ok = decodeObject(reply[start : end+1])
		if !ok {
			return def
		}
	}

	out := store.Extracted{
		Title:    stringField(raw, "title", def.Title),
		Time:     stringField(raw, "time", def.Time),
		Location: stringField(raw, "location", def.Location),
		Content:  stringField(raw, "content", def.Content),
		Action:   stringField(raw, "action", def.Action),
		IsUrgent: boolField(raw, "is_urgent"),
	}
	return out
}

func decodeObject(s string) (map[string]any, bool) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(s), &raw); err != nil {
		return nil, false
	}
	return raw, true
}

func stringField(raw map[string]any, key, fallback string) string {
	v, ok := raw[key]
	if !ok {
		return fallback
	}
	s, ok := v.(string)
	if !ok {
		return fallback
	}
	return s
}

// boolField coerces string-valued urgency flags the way the model tends to
// emit them.
func boolField(raw map[string]any, key string) bool {
	switch v := raw[key].(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "是", "yes":
			return true
		}
	}
	return false
}

func (c *Client) complete(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(c.apiKey) == "" {
		return "", fmt.Errorf("missing api key")
	}
	if c.baseURL == "" {
		return "", fmt.Errorf("missing base url")
	}

	body := map[string]any{
		"model": c.model.Name,
		"messages": []map[string]string{{
			"role":    "user",
			"content": prompt,
		}},
		"max_tokens":        c.model.MaxTokens,
		"temperature":       c.model.Temperature,
		"top_p":             c.model.TopP,
		"top_k":             c.model.TopK,
		"min_p":             c.model.MinP,
		"frequency_penalty": c.model.FrequencyPenalty,
		"n":                 1,
		"stream":            false,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("model http %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var decoded struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return "", fmt.Errorf("empty choices in response")
	}
	content := strings.TrimSpace(decoded.Choices[0].Message.Content)
	if content == "" {
		return "", fmt.Errorf("empty content in response")
	}
	return content, nil
}

// SetBaseURL points the client at a different endpoint (for testing).
func (c *Client) SetBaseURL(u string) {
	c.baseURL = strings.TrimRight(strings.TrimSpace(u), "/")
}
