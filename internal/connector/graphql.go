package connector

import (
	"encoding/json"
	"time"

	"github.com/tidwall/gjson"

	cerrors "github.com/brightlane/ingestflow/internal/errors"
)

// GraphQLError is a single entry in a GraphQL response's errors[] array.
type GraphQLError struct {
	Message    string          `json:"message"`
	Extensions json.RawMessage `json:"extensions"`
}

// GraphQLEnvelope is the minimal shape shared by Linear and Fireflies
// GraphQL responses: a data payload alongside an optional errors array.
type GraphQLEnvelope struct {
	Data   json.RawMessage `json:"data"`
	Errors []GraphQLError  `json:"errors"`
}

// ClassifyGraphQLErrors inspects a GraphQL response's errors[] array
// before the caller dispatches on Data, per §4.1: specific error codes
// map to the typed taxonomy, everything else becomes an APIError.
func ClassifyGraphQLErrors(endpoint string, env GraphQLEnvelope) error {
	if len(env.Errors) == 0 {
		return nil
	}

	first := env.Errors[0]
	code := gjson.GetBytes(first.Extensions, "code").String()

	switch code {
	case "too_many_requests", "RATELIMITED":
		return &cerrors.RateLimitedError{
			Endpoint:   endpoint,
			RetryAfter: graphQLRetryAfter(first.Extensions),
		}
	case "object_not_found":
		return &cerrors.NotFoundError{Resource: endpoint}
	default:
		body, _ := json.Marshal(env.Errors)
		return &cerrors.APIError{Status: 200, Body: string(body)}
	}
}

// graphQLRetryAfter derives a retry-after duration from either an
// explicit millisecond hint or the leaky-bucket parameters Linear
// encodes under extensions.meta.rateLimitResult.
func graphQLRetryAfter(extensions json.RawMessage) time.Duration {
	if ms := gjson.GetBytes(extensions, "retryAfterMs"); ms.Exists() {
		return time.Duration(ms.Int()) * time.Millisecond
	}

	result := gjson.GetBytes(extensions, "meta.rateLimitResult")
	if result.Exists() {
		limit := result.Get("limit").Int()
		duration := result.Get("durationSeconds").Int()
		remaining := result.Get("tokensRemaining").Int()
		required := result.Get("tokensRequired").Int()
		if limit > 0 && duration > 0 {
			return linearWait(int(remaining), int(required), int(limit), time.Duration(duration)*time.Second)
		}
	}
	return 0
}

// linearWait mirrors resilience.LinearRateLimitWait without importing the
// resilience package, to avoid a connector->resilience->connector cycle;
// the math is identical to spec §4.3's Linear augmentation.
func linearWait(tokensRemaining, tokensRequired, limit int, duration time.Duration) time.Duration {
	if limit <= 0 || duration <= 0 {
		return time.Second
	}
	tokensToWait := tokensRequired - tokensRemaining
	if tokensToWait <= 0 {
		return time.Second
	}
	refillRate := float64(limit) / duration.Seconds()
	if refillRate <= 0 {
		return 300 * time.Second
	}
	wait := time.Duration(float64(tokensToWait) / refillRate * float64(time.Second))
	if wait < time.Second {
		wait = time.Second
	}
	if wait > 300*time.Second {
		wait = 300 * time.Second
	}
	return wait
}
