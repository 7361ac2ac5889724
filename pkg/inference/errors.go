/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: errors.go
Description: Error types returned by the inference gateway.
*/

package inference

import (
	"errors"
	"fmt"
)

var (
	// ErrOracleUnavailable reports that the oracle could not be reached or timed out
	ErrOracleUnavailable = errors.New("oracle unavailable")
	// ErrUnresolvable reports that no valid proposal was obtained
	ErrUnresolvable = errors.New("no valid rule proposal")
)

// GatewayError is returned by Resolve when no proposal could be produced.
// Kind is ErrOracleUnavailable or ErrUnresolvable; Err holds the last underlying error.
type GatewayError struct {
	Kind        error
	Fingerprint string
	Attempts    int
	Err         error
}

// Error never includes oracle output
func (e *GatewayError) Error() string {
	fp := e.Fingerprint
	if len(fp) > 12 {
		fp = fp[:12]
	}
	return fmt.Sprintf("inference failed: %v (fingerprint %s, %d oracle call(s))", e.Kind, fp, e.Attempts)
}

func (e *GatewayError) Is(target error) bool {
	return target == e.Kind
}

func (e *GatewayError) Unwrap() error {
	return e.Err
}
