package importer

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/errors"
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/logger"
	"github.com/netwerk-digitaal-erfgoed/dataset-knowledge-graph/sparql"
)

// ReadinessQuery is the trivial query a freshly started endpoint must answer
// with at least one row.
const ReadinessQuery = "SELECT * WHERE { ?s ?p ?o } LIMIT 1"

// Readiness defaults: with the default retries the delays are 1s, 2s, 4s, 8s
// and 16s.
const (
	DefaultReadinessInterval = time.Second
	DefaultAttemptTimeout    = 30 * time.Second
)

// Readiness polls a SPARQL endpoint until it serves data.
type Readiness struct {
	Client *sparql.Client
	// Retries bounds the attempts after the first one.
	Retries int
	// InitialInterval is the first backoff delay; it doubles on every retry.
	InitialInterval time.Duration
	// AttemptTimeout bounds a single readiness query.
	AttemptTimeout time.Duration
	Logger         *zap.SugaredLogger
}

// schedule returns the delays between attempts.
func (r *Readiness) schedule() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.InitialInterval
	if b.InitialInterval <= 0 {
		b.InitialInterval = DefaultReadinessInterval
	}
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = time.Hour
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}

// Wait returns nil once endpoint answers ReadinessQuery with a row. When the
// retries are exhausted the error of the last attempt is returned.
func (r *Readiness) Wait(ctx context.Context, endpoint string) error {
	log := r.Logger
	if log == nil {
		log = logger.ComponentLogger("importer.readiness")
	}
	log = logger.FromContext(ctx, log)

	attemptTimeout := r.AttemptTimeout
	if attemptTimeout <= 0 {
		attemptTimeout = DefaultAttemptTimeout
	}

	retries := r.Retries
	if retries < 0 {
		retries = 0
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(r.schedule(), uint64(retries)), ctx)

	attempt := 0
	poll := func() error {
		attempt++
		attemptCtx, cancel := context.WithTimeout(ctx, attemptTimeout)
		defer cancel()

		solutions, err := r.Client.Select(attemptCtx, endpoint, ReadinessQuery)
		if err != nil {
			return errors.Mark(
				errors.Wrapf(err, "SPARQL endpoint at %s not available", endpoint),
				errors.ErrEndpointUnavailable,
			)
		}
		if len(solutions) == 0 {
			return errors.Mark(
				errors.Newf("no data loaded (based on query %s)", ReadinessQuery),
				errors.ErrNoData,
			)
		}
		return nil
	}
	notify := func(err error, next time.Duration) {
		log.Debugw("SPARQL endpoint not ready",
			logger.FieldEndpoint, endpoint,
			logger.FieldAttempt, attempt,
			logger.FieldError, err,
			"retry_in", next)
	}

	return backoff.RetryNotify(poll, policy, notify)
}
