/*
Package push delivers trip notifications to iOS devices through APNs.

PURPOSE:
  One Dispatch call takes a notification addressed to users, resolves
  their device tokens, signs a provider token, sends one push per device
  concurrently, and reconciles the outcome.

STATE MACHINE (per call):
  Received -> TokensResolved -> (Unconfigured | Authenticated) -> Sent -> Reconciled

  Unconfigured is a soft exit: notifications are persisted elsewhere, so a
  missing signing key degrades to "nothing sent" instead of failing.

PARTIAL FAILURE:
  A push that fails for one device never aborts the others. Failures are
  counted, not returned. Tokens APNs reports as gone (410) are deleted in
  one batch after every send has finished.

SEE ALSO:
  - signer.go: ES256 provider token
  - gateway.go: APNs HTTP client
  - dispatcher.go: Orchestration and reconciliation
*/
package push

// =============================================================================
// REQUEST / REPORT
// =============================================================================

// Request is one notification addressed to a set of users.
type Request struct {
	UserIDs []string          `json:"user_ids" validate:"required,min=1,dive,required"`
	Title   string            `json:"title" validate:"required"`
	Body    string            `json:"body" validate:"required"`
	Data    map[string]string `json:"data,omitempty"`
}

// Notification is the per-device content built from a Request.
type Notification struct {
	Title string
	Body  string
	Data  map[string]string
}

// Report is what a dispatch returns to its caller.
type Report struct {
	Sent    int    `json:"sent"`
	Failed  int    `json:"failed"`
	Total   int    `json:"total"`
	Message string `json:"message,omitempty"`
}

// =============================================================================
// DEVICE TOKENS
// =============================================================================

// DeviceToken is a registered APNs device token for a user.
type DeviceToken struct {
	ID     string
	UserID string
	Token  string
}

// Result is the outcome of one push. Status is the HTTP status returned by
// the gateway, or 0 when the request never got a response.
type Result struct {
	Token   string
	Success bool
	Status  int
}

// StatusUnregistered is returned by APNs for tokens that are no longer
// valid for the topic.
const StatusUnregistered = 410
