package push

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	msgNoTokens     = "no device tokens found"
	msgUnconfigured = "push gateway not configured; notification recorded only"
)

// =============================================================================
// DISPATCHER
// =============================================================================

// Dispatcher fans a Request out to every device of its users.
type Dispatcher struct {
	store     TokenStore
	sender    Sender
	signer    TokenSigner
	publisher ReportPublisher
	limit     int
	now       func() time.Time
	log       logrus.FieldLogger
	validate  *validator.Validate
}

// Option customizes a Dispatcher.
type Option func(*Dispatcher)

// WithPublisher publishes every report after reconciliation.
func WithPublisher(p ReportPublisher) Option {
	return func(d *Dispatcher) { d.publisher = p }
}

// WithConcurrency caps in-flight sends. Zero means one goroutine per token.
func WithConcurrency(n int) Option {
	return func(d *Dispatcher) { d.limit = n }
}

// WithClock overrides time.Now for token issue times.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.now = now }
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(d *Dispatcher) { d.log = l }
}

// NewDispatcher wires a dispatcher. A nil signer means the gateway is not
// configured and every dispatch degrades to a no-op success.
func NewDispatcher(store TokenStore, sender Sender, signer TokenSigner, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:    store,
		sender:   sender,
		signer:   signer,
		now:      time.Now,
		log:      logrus.StandardLogger(),
		validate: newValidator(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Configured reports whether pushes will actually be sent.
func (d *Dispatcher) Configured() bool {
	return d.signer != nil
}

// Dispatch runs one notification through the whole pipeline.
//
// Only validation and dependency failures are returned as errors.
// Per-device failures are counted in the report. Once tokens are resolved
// the call runs to completion even if ctx is cancelled.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (Report, error) {
	if err := d.Validate(req); err != nil {
		return Report{}, err
	}

	tokens, err := d.store.TokensForUsers(ctx, req.UserIDs)
	if err != nil {
		return Report{}, &DependencyError{Op: "resolve device tokens", Err: err}
	}

	log := d.log.WithFields(logrus.Fields{
		"users":  len(req.UserIDs),
		"tokens": len(tokens),
	})

	if len(tokens) == 0 {
		log.Info("no device tokens, nothing to send")
		return Report{Message: msgNoTokens}, nil
	}

	if d.signer == nil {
		log.Warn("push gateway not configured, skipping delivery")
		return Report{Total: len(tokens), Message: msgUnconfigured}, nil
	}

	authToken, err := d.signer.Sign(d.now())
	if err != nil {
		return Report{}, &DependencyError{Op: "sign provider token", Err: err}
	}

	ctx = context.WithoutCancel(ctx)
	results := d.sendAll(ctx, authToken, tokens, Notification{
		Title: req.Title,
		Body:  req.Body,
		Data:  req.Data,
	})

	report, invalid := reconcile(results)
	if len(invalid) > 0 {
		if err := d.store.DeleteTokens(ctx, invalid); err != nil {
			log.Errorf("error deleting %d invalid tokens: %v", len(invalid), err)
		} else {
			log.Infof("deleted %d invalid tokens", len(invalid))
		}
	}

	log.WithFields(logrus.Fields{
		"sent":   report.Sent,
		"failed": report.Failed,
	}).Info("push dispatch complete")

	if d.publisher != nil {
		if err := d.publisher.PublishReport(ctx, report); err != nil {
			log.Errorf("error publishing dispatch report: %v", err)
		}
	}
	return report, nil
}

// Validate checks a request without dispatching it.
func (d *Dispatcher) Validate(req Request) error {
	err := d.validate.Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return &ValidationError{Fields: []string{err.Error()}}
	}
	fields := make([]string, len(fieldErrs))
	for i, fe := range fieldErrs {
		fields[i] = fe.Field() + " is " + fe.Tag()
	}
	return &ValidationError{Fields: fields}
}

// sendAll launches every send and waits for all of them. No send can
// cancel another.
func (d *Dispatcher) sendAll(ctx context.Context, authToken string, tokens []DeviceToken, n Notification) []Result {
	var g errgroup.Group
	if d.limit > 0 {
		g.SetLimit(d.limit)
	}

	results := make([]Result, len(tokens))
	for i, t := range tokens {
		i, t := i, t
		g.Go(func() error {
			results[i] = d.sender.Send(ctx, authToken, t.Token, n)
			return nil
		})
	}
	_ = g.Wait()
	return results
}

// reconcile counts outcomes and collects tokens APNs reported as gone.
func reconcile(results []Result) (Report, []string) {
	report := Report{Total: len(results)}
	var invalid []string
	seen := make(map[string]bool)

	for _, r := range results {
		if r.Success {
			report.Sent++
			continue
		}
		report.Failed++
		if r.Status == StatusUnregistered && !seen[r.Token] {
			seen[r.Token] = true
			invalid = append(invalid, r.Token)
		}
	}
	return report, invalid
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}
