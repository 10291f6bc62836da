package research

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/hyperifyio/deepsearch/internal/cache"
	"github.com/hyperifyio/deepsearch/internal/llm"
	"github.com/hyperifyio/deepsearch/internal/llmclient"
)

// callText issues a single system/user chat completion and returns the raw
// text content, going through the invoker's primary/secondary failover. A
// configured inv.Cache is consulted first, keyed by (model, system+user)
// digest, so an identical prompt replayed against the same model (e.g. a
// reflection loop that re-asks an unchanged question) never re-spends.
func callText(ctx context.Context, inv *llmclient.Invoker, sessionID, nodeName, system, user string) (string, error) {
	return llmclient.Invoke(ctx, inv, sessionID, nodeName, func(ctx context.Context, client llm.Client, model string) (string, error) {
		key := cache.KeyFrom(model, system+"\x00"+user)
		if inv.Cache != nil {
			if cached, ok, err := inv.Cache.Get(ctx, key); err == nil && ok {
				return string(cached), nil
			}
		}

		resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: system},
				{Role: openai.ChatMessageRoleUser, Content: user},
			},
			Temperature: 0.2,
			N:           1,
		})
		if err != nil {
			return "", fmt.Errorf("%s call: %w", nodeName, err)
		}
		if len(resp.Choices) == 0 {
			return "", fmt.Errorf("%s: no choices", nodeName)
		}
		out := strings.TrimSpace(resp.Choices[0].Message.Content)
		if out == "" {
			return "", fmt.Errorf("%s: empty response", nodeName)
		}
		if inv.Cache != nil {
			_ = inv.Cache.Save(ctx, key, []byte(out))
		}
		return out, nil
	})
}

// callJSON issues a system/user chat completion demanding strict JSON and
// unmarshals the response into T. A parse failure counts as an attempt
// failure, triggering the invoker's retry/failover policy exactly like a
// transport error (spec §4.3: structured-output resilience).
func callJSON[T any](ctx context.Context, inv *llmclient.Invoker, sessionID, nodeName, system, user string) (T, error) {
	return llmclient.Invoke(ctx, inv, sessionID, nodeName, func(ctx context.Context, client llm.Client, model string) (T, error) {
		var zero T
		key := cache.KeyFrom(model, system+"\x00"+user)
		if inv.Cache != nil {
			if cached, ok, err := inv.Cache.Get(ctx, key); err == nil && ok {
				var out T
				if err := json.Unmarshal(cached, &out); err == nil {
					return out, nil
				}
			}
		}

		resp, err := client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model: model,
			Messages: []openai.ChatCompletionMessage{
				{Role: openai.ChatMessageRoleSystem, Content: system},
				{Role: openai.ChatMessageRoleUser, Content: user},
			},
			Temperature: 0.1,
			N:           1,
		})
		if err != nil {
			return zero, fmt.Errorf("%s call: %w", nodeName, err)
		}
		if len(resp.Choices) == 0 {
			return zero, errors.New(nodeName + ": no choices")
		}
		raw := strings.TrimSpace(resp.Choices[0].Message.Content)
		raw = stripCodeFence(raw)
		var out T
		if err := json.Unmarshal([]byte(raw), &out); err != nil {
			return zero, fmt.Errorf("%s: parse json: %w", nodeName, err)
		}
		if inv.Cache != nil {
			_ = inv.Cache.Save(ctx, key, []byte(raw))
		}
		return out, nil
	})
}

// stripCodeFence removes a leading/trailing ```json ... ``` fence some
// models wrap structured output in despite instructions not to.
func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
