//go:build !ORT

package provider

import "github.com/knights-analytics/hugot"

// newInferenceSession builds the pure-Go inference backend. Slower than
// ONNX Runtime but needs no native library.
func newInferenceSession() (*hugot.Session, error) {
	return hugot.NewGoSession()
}
