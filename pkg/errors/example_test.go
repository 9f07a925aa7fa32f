// Package errors provides examples of structured error handling in Relay.
package errors_test

import (
	"fmt"
	"io"

	"github.com/ajitpratap0/relay/pkg/errors"
)

// Example demonstrates basic error creation and wrapping.
func Example() {
	err := errors.New(errors.ErrorTypeConfig, "adapter not registered").
		WithDetail("adapter", "salesforce")

	fmt.Println(err.Error())

	// Output:
	// configuration: adapter not registered
}

// ExampleWrap shows how adapter failures are wrapped for the retry executor.
func ExampleWrap() {
	err := errors.Wrap(io.ErrUnexpectedEOF, errors.ErrorTypeUpstream, "download failed").
		WithDetail("offset", 200)

	if errors.IsType(err, errors.ErrorTypeUpstream) {
		fmt.Println("upstream failure")
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		fmt.Println("caused by unexpected EOF")
	}

	// Output:
	// upstream failure
	// caused by unexpected EOF
}

// ExampleIsFatal shows which failures always reach the caller.
func ExampleIsFatal() {
	fmt.Println(errors.IsFatal(errors.New(errors.ErrorTypeCredentialsNotFound, "missing")))
	fmt.Println(errors.IsFatal(errors.New(errors.ErrorTypeUpstream, "502 bad gateway")))

	// Output:
	// true
	// false
}
