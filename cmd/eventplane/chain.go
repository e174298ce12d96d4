package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"

	"github.com/randalmurphal/eventplane/pkg/eventplane/config"
	eperrors "github.com/randalmurphal/eventplane/pkg/eventplane/errors"
	"github.com/randalmurphal/eventplane/pkg/eventplane/event"
	"github.com/randalmurphal/eventplane/pkg/eventplane/journal"
	"github.com/randalmurphal/eventplane/pkg/eventplane/observability"
	"github.com/randalmurphal/eventplane/pkg/eventplane/policy"
	"github.com/randalmurphal/eventplane/pkg/eventplane/policy/policies"
	"github.com/randalmurphal/eventplane/pkg/eventplane/registry"
)

type chainOptions struct {
	config   string
	payload  string
	fail     int
	failKind string
	events   int
}

func newChainCmd(root *rootOptions) *cobra.Command {
	opts := &chainOptions{}

	cmd := &cobra.Command{
		Use:   "chain",
		Short: "Run events through a policy chain built from config",
		Long: "Builds a policy chain from a YAML or JSON document and runs --events\n" +
			"events carrying --payload through it against an echo operation.\n" +
			"Each event runs as its own execution. Prints each result followed by\n" +
			"the journal of every execution. A fatal error stops the run.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runChain(cmd, root, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.config, "config", "c", "", "Path to chain config (required)")
	cmd.Flags().StringVarP(&opts.payload, "payload", "p", "hello", "Event payload")
	cmd.Flags().IntVar(&opts.fail, "fail", 0, "Fail the first N echo calls")
	cmd.Flags().StringVar(&opts.failKind, "fail-kind", "transient", "Category of echo failures: transient, permanent or fatal")
	cmd.Flags().IntVarP(&opts.events, "events", "n", 1, "Number of events to send")
	_ = cmd.MarkFlagRequired("config")
	return cmd
}

func runChain(cmd *cobra.Command, root *rootOptions, opts *chainOptions) error {
	failKind, err := parseFailKind(opts.failKind)
	if err != nil {
		return err
	}

	cfg, err := config.FromFile(opts.config)
	if err != nil {
		return err
	}

	logger := root.logger(cmd.ErrOrStderr())
	env, err := newChainEnv(cfg, logger)
	if err != nil {
		return err
	}
	defer env.Close()

	chain, err := buildChain(cfg, env, defaultConstructors())
	if err != nil {
		return err
	}

	factory := policy.NewFactory(
		policy.WithLogger(logger),
		policy.WithMetrics(observability.NewMetricsRecorder()),
		policy.WithSpanManager(observability.NewSpanManager()),
	)
	op := factory.Chain(newEcho(opts.fail, failKind), chain...)
	out := cmd.OutOrStdout()

	var executions []string
	for i := range opts.events {
		executionID := uuid.NewString()
		executions = append(executions, executionID)
		ctx := policy.WithExecutionID(cmd.Context(), executionID)

		result, err := op.Process(ctx, event.New(opts.payload))
		if err != nil {
			fmt.Fprintf(out, "event %d: error: %v\n", i+1, err)
			if eperrors.IsFatal(err) {
				fmt.Fprintf(out, "stopping after event %d: fatal error\n", i+1)
				break
			}
			continue
		}
		fmt.Fprintf(out, "event %d: %v\n", i+1, result.Payload())
	}

	var records []journal.Record
	for _, executionID := range executions {
		recs, err := env.journal.List(executionID)
		if err != nil {
			return err
		}
		records = append(records, recs...)
	}
	if err := printJournal(out, env.name, records); err != nil {
		return err
	}
	for _, failed := range env.dead.Drain(0) {
		fmt.Fprintf(out, "dead letter: event %s (%s): %v\n", shortID(failed.Event.ID), failed.Category, failed.Err)
	}
	return nil
}

func parseFailKind(name string) (eperrors.Category, error) {
	switch name {
	case "transient":
		return eperrors.CategoryTransient, nil
	case "permanent":
		return eperrors.CategoryPermanent, nil
	case "fatal":
		return eperrors.CategoryFatal, nil
	default:
		return 0, fmt.Errorf("unknown --fail-kind %q: want transient, permanent or fatal", name)
	}
}

// newEcho returns an operation that echoes string payloads and fails the
// first failures calls with an error of the given category.
func newEcho(failures int, kind eperrors.Category) policy.Operation {
	calls := 0
	return policy.OperationFunc(func(_ context.Context, evt *event.Event) (*event.Event, error) {
		calls++
		if calls <= failures {
			return nil, eperrors.NewCategorized(fmt.Errorf("echo call %d failed", calls), kind, "echo")
		}
		return evt.WithMessage(event.NewMessage(fmt.Sprintf("echo: %v", evt.Payload()))), nil
	})
}

func printJournal(out io.Writer, chain string, records []journal.Record) error {
	fmt.Fprintf(out, "\njournal (%s):\n", chain)
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "EXEC\tSEQ\tEVENT\tOUTCOME\tDURATION\tERROR")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%d\t%s\t%s\t%s\t%s\n",
			shortID(r.ExecutionID), r.Sequence, shortID(r.EventID), r.Outcome, r.Duration.Round(time.Microsecond), r.Error)
	}
	return w.Flush()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// chainEnv holds the resources shared by the policies of one chain.
type chainEnv struct {
	name     string
	logger   *slog.Logger
	journal  journal.Store
	dead     *policies.MemoryDeadLetterQueue
	limiters policies.LimiterStore
	redis    *redis.Client
}

// newChainEnv opens the journal (sqlite when journal.path is set, memory
// otherwise) and the limiter store (redis when redis.addr is set).
func newChainEnv(cfg config.Config, logger *slog.Logger) (*chainEnv, error) {
	env := &chainEnv{
		name:   cfg.String("name", "default"),
		logger: logger,
		dead:   policies.NewMemoryDeadLetterQueue(cfg.Int("dead_letter.max_size", 0), nil),
	}

	if path := cfg.String("journal.path", ""); path != "" {
		store, err := journal.NewSQLiteStore(path)
		if err != nil {
			return nil, err
		}
		env.journal = store
	} else {
		env.journal = journal.NewMemoryStore()
	}

	if addr := cfg.String("redis.addr", ""); addr != "" {
		env.redis = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: cfg.String("redis.password", ""),
			DB:       cfg.Int("redis.db", 0),
		})
		env.limiters = policies.NewRedisLimiterStore(env.redis)
	} else {
		env.limiters = policies.NewMemoryLimiterStore()
	}
	return env, nil
}

func (e *chainEnv) Close() error {
	var err error
	if e.redis != nil {
		err = e.redis.Close()
	}
	if jerr := e.journal.Close(); jerr != nil && err == nil {
		err = jerr
	}
	return err
}

// policyConstructor builds a policy from its config section.
type policyConstructor func(sec config.Config, env *chainEnv) (policy.Policy, error)

func defaultConstructors() *registry.Registry[string, policyConstructor] {
	r := registry.New[string, policyConstructor]()

	r.MustRegister("logging", func(_ config.Config, env *chainEnv) (policy.Policy, error) {
		return policies.Logging(env.logger), nil
	})
	r.MustRegister("tracing", func(config.Config, *chainEnv) (policy.Policy, error) {
		return policies.Tracing(observability.NewSpanManager()), nil
	})
	r.MustRegister("recovery", func(config.Config, *chainEnv) (policy.Policy, error) {
		return policies.Recovery(), nil
	})
	r.MustRegister("holder", func(config.Config, *chainEnv) (policy.Policy, error) {
		return policies.Holder(), nil
	})
	r.MustRegister("journal", func(_ config.Config, env *chainEnv) (policy.Policy, error) {
		return policies.Journal(env.journal, env.name), nil
	})
	r.MustRegister("deadletter", func(_ config.Config, env *chainEnv) (policy.Policy, error) {
		return policies.DeadLetter(env.dead), nil
	})
	r.MustRegister("retry", func(sec config.Config, _ *chainEnv) (policy.Policy, error) {
		d := eperrors.DefaultRetry
		return policies.Retry(eperrors.NewRetryConfig(
			eperrors.WithMaxAttempts(sec.Int("max_attempts", d.MaxAttempts)),
			eperrors.WithInitialBackoff(sec.Duration("initial_backoff", d.InitialBackoff)),
			eperrors.WithMaxBackoff(sec.Duration("max_backoff", d.MaxBackoff)),
			eperrors.WithBackoffFactor(sec.Float("backoff_factor", d.BackoffFactor)),
		)), nil
	})
	r.MustRegister("ratelimit", func(sec config.Config, _ *chainEnv) (policy.Policy, error) {
		keyFn, err := keyFunc(sec.String("key", "global"))
		if err != nil {
			return nil, err
		}
		perSecond := sec.Float("per_second", 10)
		return policies.RateLimit(rate.Limit(perSecond), sec.Int("burst", 1), keyFn), nil
	})
	r.MustRegister("distributed_ratelimit", func(sec config.Config, env *chainEnv) (policy.Policy, error) {
		keyFn, err := keyFunc(sec.String("key", "global"))
		if err != nil {
			return nil, err
		}
		limit := policies.Limit{
			PerSecond: sec.Float("per_second", 10),
			Burst:     sec.Int("burst", 1),
		}
		return policies.DistributedRateLimit(env.limiters, limit, keyFn), nil
	})
	return r
}

// keyFunc resolves "global", "correlation" or "property:NAME".
func keyFunc(name string) (policies.KeyFunc, error) {
	switch {
	case name == "global":
		return policies.Global, nil
	case name == "correlation":
		return policies.ByCorrelationID, nil
	case strings.HasPrefix(name, "property:"):
		return policies.ByProperty(strings.TrimPrefix(name, "property:")), nil
	}
	return nil, fmt.Errorf("unknown rate limit key %q", name)
}

// buildChain constructs the policies listed under "policies", outermost
// first.
func buildChain(cfg config.Config, env *chainEnv, constructors *registry.Registry[string, policyConstructor]) ([]policy.Policy, error) {
	sections := cfg.Sections("policies")
	if len(sections) == 0 {
		return nil, fmt.Errorf("config lists no policies")
	}

	chain := make([]policy.Policy, 0, len(sections))
	for i, sec := range sections {
		typ := sec.String("type", "")
		ctor, err := constructors.Lookup(typ)
		if err != nil {
			return nil, fmt.Errorf("policy %d: %w", i, err)
		}
		p, err := ctor(sec, env)
		if err != nil {
			return nil, fmt.Errorf("policy %d (%s): %w", i, typ, err)
		}
		chain = append(chain, p)
	}
	return chain, nil
}
