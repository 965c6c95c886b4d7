package service

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"sync"

	"github.com/layer-3/mercuria/core"
	"github.com/layer-3/mercuria/internal/logger"
	"github.com/layer-3/mercuria/ports"
)

// FormState is the submission state of a form.
type FormState string

const (
	FormIdle       FormState = "idle"
	FormValidating FormState = "validating"
	FormSubmitting FormState = "submitting"
	FormSuccess    FormState = "success"
	FormFailed     FormState = "failed"
)

// Sender issues a backend call. *Dispatcher implements it.
type Sender interface {
	Send(ctx context.Context, req core.Request) (*core.Response, error)
}

// RequestBuilder encodes a validated form under an idempotency key.
type RequestBuilder func(key string) (core.Request, error)

// FormSpec describes one kind of money-moving form.
type FormSpec[In, Out any] struct {
	Name string
	// Prepare validates input locally and returns the request builder.
	Prepare func(in In) (RequestBuilder, error)
	Decode  func(resp *core.Response) (Out, error)
}

// Form drives one user-initiated write from input to a single backend effect.
// Every Submit mints a new idempotency key; Retry resends the failed attempt
// under the same key.
type Form[In, Out any] struct {
	spec   FormSpec[In, Out]
	keys   ports.KeyGenerator
	sender Sender
	logger *slog.Logger

	mu        sync.Mutex
	state     FormState
	open      bool
	inFlight  bool
	input     In
	fieldErrs core.FieldErrors
	banner    string
	lastKey   string
	retry     *core.Request
	listeners []func(FormState)
	onSuccess func(Out)
}

// NewForm creates an open, idle form
func NewForm[In, Out any](spec FormSpec[In, Out], keys ports.KeyGenerator, sender Sender, logger *slog.Logger) *Form[In, Out] {
	return &Form[In, Out]{
		spec:   spec,
		keys:   keys,
		sender: sender,
		logger: logger,
		state:  FormIdle,
		open:   true,
	}
}

// OnStateChange registers fn to observe every transition. fn must not block.
func (f *Form[In, Out]) OnStateChange(fn func(FormState)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listeners = append(f.listeners, fn)
}

// OnSuccess registers fn to receive the result of a successful submission
func (f *Form[In, Out]) OnSuccess(fn func(Out)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onSuccess = fn
}

// Open resets the form to an empty idle state
func (f *Form[In, Out]) Open() {
	f.mu.Lock()
	var zero In
	f.open = true
	f.input = zero
	f.fieldErrs = nil
	f.banner = ""
	f.retry = nil
	notify := f.setState(FormIdle)
	f.mu.Unlock()
	notify()
}

// Close hides the form. An in-flight submission still completes.
func (f *Form[In, Out]) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.open = false
}

// IsOpen reports whether the form is shown
func (f *Form[In, Out]) IsOpen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.open
}

// State returns the current submission state
func (f *Form[In, Out]) State() FormState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Input returns the input preserved after a failed submission
func (f *Form[In, Out]) Input() In {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.input
}

// FieldErrors returns the field messages of the last failed submission
func (f *Form[In, Out]) FieldErrors() core.FieldErrors {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(core.FieldErrors, len(f.fieldErrs))
	for k, v := range f.fieldErrs {
		out[k] = v
	}
	return out
}

// Banner returns the form-level message of the last failed submission
func (f *Form[In, Out]) Banner() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.banner
}

// LastKey is the idempotency key of the most recent attempt
func (f *Form[In, Out]) LastKey() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastKey
}

// CanRetry reports whether the last attempt failed on the network
func (f *Form[In, Out]) CanRetry() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.retry != nil && !f.inFlight
}

// Submit validates in, mints a new idempotency key and sends the write
func (f *Form[In, Out]) Submit(ctx context.Context, in In) (Out, error) {
	var zero Out

	f.mu.Lock()
	if f.inFlight {
		f.mu.Unlock()
		return zero, core.ErrSubmissionInProgress
	}
	f.inFlight = true
	f.input = in
	f.fieldErrs = nil
	f.banner = ""
	f.retry = nil
	notify := f.setState(FormValidating)
	f.mu.Unlock()
	notify()

	build, err := f.spec.Prepare(in)
	if err != nil {
		f.failed(ctx, nil, false, err)
		return zero, err
	}

	key := f.keys.Generate()
	req, err := build(key)
	if err != nil {
		f.failed(ctx, nil, false, err)
		return zero, err
	}
	req.IdempotencyKey = key

	return f.send(ctx, req)
}

// Retry resends the last attempt with the same key and payload. It is only
// allowed when the outcome of that attempt is unknown: a network failure or
// a success reply that could not be read.
func (f *Form[In, Out]) Retry(ctx context.Context) (Out, error) {
	var zero Out

	f.mu.Lock()
	if f.inFlight {
		f.mu.Unlock()
		return zero, core.ErrSubmissionInProgress
	}
	if f.retry == nil {
		f.mu.Unlock()
		return zero, core.ErrNothingToRetry
	}
	req := *f.retry
	f.inFlight = true
	f.fieldErrs = nil
	f.banner = ""
	f.retry = nil
	f.mu.Unlock()

	return f.send(ctx, req)
}

func (f *Form[In, Out]) send(ctx context.Context, req core.Request) (Out, error) {
	var zero Out

	f.mu.Lock()
	f.lastKey = req.IdempotencyKey
	notify := f.setState(FormSubmitting)
	f.mu.Unlock()
	notify()

	ctx = logger.WithIdempotencyKey(ctx, req.IdempotencyKey)

	resp, err := f.sender.Send(ctx, req)
	if err != nil {
		f.failed(ctx, &req, errors.Is(err, core.ErrNetwork), err)
		return zero, err
	}

	// The write was accepted, so only a resend under the same key is safe
	out, err := f.spec.Decode(resp)
	if err != nil {
		err = &core.APIError{Kind: core.KindRejected, Status: resp.Status, Message: MsgOutcomeUnknown, Err: err}
		f.failed(ctx, &req, true, err)
		return zero, err
	}

	f.mu.Lock()
	var empty In
	f.input = empty
	f.open = false
	f.inFlight = false
	onSuccess := f.onSuccess
	notify = f.setState(FormSuccess)
	f.mu.Unlock()
	notify()

	submissionTotal.WithLabelValues(f.spec.Name, "success").Inc()
	logger.WithContext(ctx, f.logger).InfoContext(ctx, "form submitted", slog.String("form", f.spec.Name))

	if onSuccess != nil {
		onSuccess(out)
	}
	return out, nil
}

// failed records err and returns to idle with the input preserved. sent is
// the request that reached the transport; it is kept for Retry when
// retryable.
func (f *Form[In, Out]) failed(ctx context.Context, sent *core.Request, retryable bool, err error) {
	var fields core.FieldErrors

	f.mu.Lock()
	switch {
	case errors.As(err, &fields):
		f.fieldErrs = fields
	default:
		f.banner = bannerMessage(err, "Request failed")
	}
	if sent != nil && retryable {
		f.retry = sent
	}
	f.inFlight = false
	failed := f.setState(FormFailed)
	idle := f.setState(FormIdle)
	f.mu.Unlock()
	failed()
	idle()

	outcome := errorClass(err)
	submissionTotal.WithLabelValues(f.spec.Name, outcome).Inc()
	if sent != nil {
		logger.WithContext(ctx, f.logger).WarnContext(ctx, "form submission failed",
			slog.String("form", f.spec.Name),
			slog.String("error", err.Error()),
		)
	}
}

// setState records the transition and returns the notification to run once
// f.mu is released. Caller holds f.mu.
func (f *Form[In, Out]) setState(state FormState) func() {
	f.state = state
	listeners := slices.Clone(f.listeners)
	return func() {
		for _, fn := range listeners {
			fn(state)
		}
	}
}
