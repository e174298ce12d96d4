package policies

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/time/rate"

	eperrors "github.com/randalmurphal/eventplane/pkg/eventplane/errors"
	"github.com/randalmurphal/eventplane/pkg/eventplane/event"
	"github.com/randalmurphal/eventplane/pkg/eventplane/policy"
)

// ErrThrottled is returned when a rate limit rejects an event.
var ErrThrottled = errors.New("rate limit exceeded")

// ThrottledError reports the key that was throttled. It is transient, so an
// enclosing Retry backs off and tries again.
type ThrottledError struct {
	Key string
}

func (e *ThrottledError) Error() string {
	return fmt.Sprintf("rate limit exceeded for key %q", e.Key)
}

// Is matches ErrThrottled.
func (e *ThrottledError) Is(target error) bool {
	return target == ErrThrottled
}

// Category implements errors.Categorized.
func (e *ThrottledError) Category() eperrors.Category {
	return eperrors.CategoryTransient
}

// KeyFunc selects the rate limit bucket for an event.
type KeyFunc func(evt *event.Event) string

// ByCorrelationID limits each correlation chain separately.
func ByCorrelationID(evt *event.Event) string {
	return evt.CorrelationID
}

// Global puts every event in one bucket.
func Global(*event.Event) string {
	return "global"
}

// ByProperty limits by a message property, with events lacking it sharing
// one bucket.
func ByProperty(name string) KeyFunc {
	return func(evt *event.Event) string {
		if evt.Message != nil {
			if v, ok := evt.Message.Property(name); ok {
				return fmt.Sprint(v)
			}
		}
		return ""
	}
}

// RateLimit rejects events beyond limit per second with burst allowance,
// per key, without calling the rest of the chain. At most
// DefaultMaxLimiterKeys keys are tracked unless WithMaxKeys says otherwise.
func RateLimit(limit rate.Limit, burst int, keyFn KeyFunc, opts ...LimiterOption) policy.Policy {
	if keyFn == nil {
		keyFn = Global
	}
	limiters := newKeyedLimiters(opts...)

	return policy.NewPolicy("ratelimit", func(ctx context.Context, evt *event.Event, next policy.Next) (*event.Event, error) {
		key := keyFn(evt)
		if !limiters.allow(key, limit, burst, 1) {
			return nil, &ThrottledError{Key: key}
		}
		return next(ctx, evt)
	})
}
