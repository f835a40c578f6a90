package carbonpilot

import "fmt"

// RelayErr is returned when forwarding a data snapshot to the analysis
// pipeline fails. Operation names the step that failed.
type RelayErr struct {
	Err       error
	Operation string
}

func (relayErr *RelayErr) Error() string {
	return fmt.Sprintf("operation failed (op: %s): %s", relayErr.Operation, relayErr.Err.Error())
}

func (relayErr *RelayErr) Unwrap() error {
	return relayErr.Err
}
