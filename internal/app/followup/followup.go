/*
Package followup handles failures of best-effort steps that run after a primary
operation already succeeded: creating the profile after sign-up, loading it after
sign-in, pushing a profile edit, signing out, sending a chat message.

Every failure is logged and published to the failure observers. Under PolicyStrict the
synchronous caller also gets the error back; under PolicyLenient it does not.
*/
package followup

import (
	"fmt"

	"globalchat/internal/pkg/logx"
	"globalchat/internal/pkg/observer"
)

// Policy decides whether a follow-up failure reaches the synchronous caller.
type Policy string

const (
	PolicyLenient Policy = "lenient"
	PolicyStrict  Policy = "strict"
)

// ParsePolicy maps a configuration value to a Policy. An empty value is PolicyLenient.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(s); p {
	case PolicyLenient, PolicyStrict:
		return p, nil
	case "":
		return PolicyLenient, nil
	default:
		return "", fmt.Errorf("unknown follow-up policy %q", s)
	}
}

// Operations reported through Handle.
const (
	OpCreateProfile = "create_profile"
	OpHydrate       = "hydrate_profile"
	OpUpdateProfile = "update_profile"
	OpSignOut       = "sign_out"
	OpSendMessage   = "send_message"
)

// Failure describes one failed follow-up step.
type Failure struct {
	Op     string
	UserID string
	Err    error
}

func (f Failure) Error() string {
	return fmt.Sprintf("%s failed for user %q: %v", f.Op, f.UserID, f.Err)
}

func (f Failure) Unwrap() error {
	return f.Err
}

// Reporter routes follow-up failures according to its policy.
type Reporter struct {
	policy    Policy
	observers *observer.Registry[Failure]
}

// NewReporter creates a reporter with the given policy.
func NewReporter(policy Policy) *Reporter {
	if policy == "" {
		policy = PolicyLenient
	}
	return &Reporter{
		policy:    policy,
		observers: observer.NewRegistry[Failure](nil),
	}
}

// Policy returns the reporter's policy.
func (r *Reporter) Policy() Policy {
	return r.policy
}

// Subscribe registers fn for every reported failure.
func (r *Reporter) Subscribe(fn func(Failure)) *observer.Subscription {
	return r.observers.Subscribe(fn)
}

// Handle reports err for op. It returns nil for a nil err, and under PolicyLenient.
func (r *Reporter) Handle(op, userID string, err error) error {
	if err == nil {
		return nil
	}

	logx.Warn("Follow-up step failed", "op", op, "user_id", userID, "error", err.Error())

	r.observers.Notify(Failure{Op: op, UserID: userID, Err: err})

	if r.policy == PolicyStrict {
		return err
	}
	return nil
}

// Report publishes a failure that no caller waits for, whatever the policy.
func (r *Reporter) Report(op, userID string, err error) {
	if err == nil {
		return
	}

	logx.Warn("Background follow-up step failed", "op", op, "user_id", userID, "error", err.Error())

	r.observers.Notify(Failure{Op: op, UserID: userID, Err: err})
}
