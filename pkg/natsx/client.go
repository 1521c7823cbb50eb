package natsx

import (
	"errors"

	"github.com/nats-io/nats.go"
)

// ErrNoURL is returned when no server URL is configured.
var ErrNoURL = errors.New("natsx: no server url")

// NewClient connects to the NATS server at url. Without options the connection is
// named "polyscript" and uses compression.
func NewClient(url string, opts ...nats.Option) (*nats.Conn, error) {
	if url == "" {
		return nil, ErrNoURL
	}
	if len(opts) == 0 {
		opts = append(opts, nats.Name("polyscript"), nats.Compression(true))
	}
	return nats.Connect(url, opts...)
}
