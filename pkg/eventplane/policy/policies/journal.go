package policies

import (
	"context"
	"errors"
	"time"

	"github.com/randalmurphal/eventplane/pkg/eventplane/event"
	"github.com/randalmurphal/eventplane/pkg/eventplane/journal"
	"github.com/randalmurphal/eventplane/pkg/eventplane/policy"
)

// Journal appends a record to store each time the rest of the chain
// returns. A failed append is joined to the invocation's error.
func Journal(store journal.Store, chain string) policy.Policy {
	return policy.NewPolicy("journal", func(ctx context.Context, evt *event.Event, next policy.Next) (*event.Event, error) {
		start := time.Now()
		out, err := next(ctx, evt)

		rec := journal.Record{
			ExecutionID:   policy.ExecutionID(ctx),
			EventID:       evt.ID,
			CorrelationID: evt.CorrelationID,
			Chain:         chain,
			Outcome:       journal.OutcomeOK,
			Duration:      time.Since(start),
		}
		if err != nil {
			rec.Outcome = journal.OutcomeError
			rec.Error = err.Error()
		}
		if jerr := store.Append(rec); jerr != nil {
			return out, errors.Join(err, jerr)
		}
		return out, err
	})
}
