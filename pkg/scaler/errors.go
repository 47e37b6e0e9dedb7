package scaler

import "fmt"

// TransientCollaboratorError wraps a failure from the cluster-state
// authority, provisioner, or rule storage provider. It is always logged and
// dropped by the ScalerLoop; the next timer tick retries implicitly, no
// backoff is owned at this layer.
type TransientCollaboratorError struct {
	Collaborator string
	Err          error
}

func (e *TransientCollaboratorError) Error() string {
	return fmt.Sprintf("%s: %v", e.Collaborator, e.Err)
}

func (e *TransientCollaboratorError) Unwrap() error { return e.Err }

// InternalInvariantViolation indicates a ScaleDecision or event carried a
// value this module's switch statements don't know how to handle (e.g. an
// unknown ScaleType, which the ScalerLoop raises as a panic). It is
// recovered per-event by the inbox loop and never terminates the ScalerLoop.
type InternalInvariantViolation struct {
	Context string
}

func (e *InternalInvariantViolation) Error() string {
	return fmt.Sprintf("internal invariant violation: %s", e.Context)
}
