// Package llmclient implements the LLM-call abstraction with failover (C3):
// a primary model with retries, degrading per-session to a secondary model
// after repeated primary failure.
package llmclient

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/hyperifyio/deepsearch/internal/cache"
	"github.com/hyperifyio/deepsearch/internal/llm"
	"github.com/hyperifyio/deepsearch/internal/session"
)

// ErrCancelled is returned whenever a suspension-point check finds the
// session's cancellation token set.
var ErrCancelled = errors.New("llmclient: session cancelled")

// primaryAttempts is the number of attempts against the primary model
// before degrading to the secondary, per spec.
const primaryAttempts = 2

// CallFunc issues one chat completion attempt against the given client and
// model, returning the caller's parsed/validated result. A non-nil error
// (including a structured-output parse failure) counts as an attempt
// failure and triggers the invoker's retry/failover policy.
type CallFunc[T any] func(ctx context.Context, client llm.Client, model string) (T, error)

// Invoker calls CallFunc against a primary model with retries, and fails
// over to a secondary model — once per session, monotonically — on
// repeated primary failure.
type Invoker struct {
	Registry *session.Registry

	PrimaryClient llm.Client
	PrimaryModel  string

	SecondaryClient llm.Client
	SecondaryModel  string

	// Cache, when non-nil, lets node-level call helpers (see
	// internal/research's callText/callJSON) memoize raw model responses by
	// (model, prompt) digest, avoiding repeat spend on identical reflection
	// loops. Invoke itself is cache-agnostic: the CallFunc closure decides
	// whether to consult it.
	Cache *cache.LLMCache
}

// Invoke runs fn per the algorithm in spec §4.3:
//  1. Check cancellation; raise if cancelled.
//  2. If the session is already degraded, run fn once against the
//     secondary; rethrow any failure.
//  3. Otherwise attempt fn against the primary up to primaryAttempts
//     times, checking cancellation before and after each attempt.
//  4. If all primary attempts fail, flip the session to degraded and
//     recurse into the secondary branch.
func Invoke[T any](ctx context.Context, inv *Invoker, sessionID string, nodeName string, fn CallFunc[T]) (T, error) {
	var zero T
	if inv.Registry.IsCancelled(sessionID) {
		return zero, ErrCancelled
	}

	if inv.Registry.IsDegraded(sessionID) {
		return invokeSecondary(ctx, inv, sessionID, nodeName, fn)
	}

	var lastErr error
	for attempt := 0; attempt < primaryAttempts; attempt++ {
		if inv.Registry.IsCancelled(sessionID) {
			return zero, ErrCancelled
		}
		result, err := fn(ctx, inv.PrimaryClient, inv.PrimaryModel)
		if err == nil {
			if inv.Registry.IsCancelled(sessionID) {
				return zero, ErrCancelled
			}
			return result, nil
		}
		lastErr = err
		log.Warn().Err(err).Str("node", nodeName).Str("model", inv.PrimaryModel).Int("attempt", attempt+1).Msg("primary LLM call failed")
	}

	log.Warn().Str("node", nodeName).Str("session", sessionID).Msg("degrading session to secondary model")
	inv.Registry.SetDegraded(sessionID)
	result, err := invokeSecondary(ctx, inv, sessionID, nodeName, fn)
	if err != nil {
		return zero, fmt.Errorf("%s: primary failed (%v), secondary failed: %w", nodeName, lastErr, err)
	}
	return result, nil
}

func invokeSecondary[T any](ctx context.Context, inv *Invoker, sessionID string, nodeName string, fn CallFunc[T]) (T, error) {
	var zero T
	if inv.Registry.IsCancelled(sessionID) {
		return zero, ErrCancelled
	}
	result, err := fn(ctx, inv.SecondaryClient, inv.SecondaryModel)
	if err != nil {
		log.Warn().Err(err).Str("node", nodeName).Str("model", inv.SecondaryModel).Msg("secondary LLM call failed")
		return zero, err
	}
	if inv.Registry.IsCancelled(sessionID) {
		return zero, ErrCancelled
	}
	return result, nil
}
