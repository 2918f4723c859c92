//go:build !llama

package backend

// Compiled when the llama build tag is not set, keeping default builds and CI
// CGO-free. The real adapter lives in llama.go.

// New reports that no inference backend was built in.
func New() (Backend, error) {
	return nil, ErrUnavailable
}
