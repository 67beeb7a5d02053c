package billing

import "errors"

// Error taxonomy for webhook ingestion. Handlers map these onto HTTP
// status codes; everything else is treated as a transient store failure
// and surfaced as a 500 so the provider retries.
var (
	// ErrSignatureInvalid means the webhook signature did not verify.
	// Security-relevant, rejected with 400, never retried into state.
	ErrSignatureInvalid = errors.New("billing: invalid webhook signature")

	// ErrMalformedPayload means the payload could not be parsed into a
	// canonical event. Permanent rejection, 422.
	ErrMalformedPayload = errors.New("billing: malformed webhook payload")

	// ErrUnsupportedEventType means the provider sent an event type that
	// is not on its allow-list. Logged no-op.
	ErrUnsupportedEventType = errors.New("billing: unsupported event type")

	// ErrUnknownProvider means no ingress adapter is registered for the
	// provider path segment.
	ErrUnknownProvider = errors.New("billing: unknown provider")

	// ErrNotCancellable is returned for cancellation attempts on plans
	// that do not renew (lifetime).
	ErrNotCancellable = errors.New("billing: subscription is not cancellable")
)
