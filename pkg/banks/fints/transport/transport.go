// Package transport delivers FinTS messages to a bank over HTTPS
package transport

import (
	"bytes"
	"context"
	"encoding/base64"
	"net/http"
	"strings"
	"time"
	"unicode"

	"github.com/pkg/errors"

	"github.com/evgeny-myasishchev/ledger.fints-fetcher/pkg/banks/fints/segment"
	"github.com/evgeny-myasishchev/ledger.fints-fetcher/pkg/lib-core-golang/diag"
	"github.com/evgeny-myasishchev/ledger.fints-fetcher/pkg/lib-core-golang/request"
)

var logger = diag.CreateLogger()

// ContentType is a content type FinTS servers expect
const ContentType = "text/plain; charset=ISO-8859-1"

// Transport sends a raw message and returns a raw response
type Transport interface {
	Send(ctx context.Context, msg []byte) ([]byte, error)
}

// HTTPTransport sends base64 encoded messages with HTTP POST
type HTTPTransport struct {
	url    string
	client *http.Client
}

// HTTPOpt is an option of the HTTP transport
type HTTPOpt func(t *HTTPTransport)

// WithTimeout sets a timeout of a single request
func WithTimeout(timeout time.Duration) HTTPOpt {
	return func(t *HTTPTransport) {
		t.client.Timeout = timeout
	}
}

// WithHTTPClient sets a client to send requests with
func WithHTTPClient(client *http.Client) HTTPOpt {
	return func(t *HTTPTransport) {
		t.client = client
	}
}

// NewHTTPTransport creates a transport for a given bank url
func NewHTTPTransport(url string, opts ...HTTPOpt) *HTTPTransport {
	t := &HTTPTransport{
		url:    url,
		client: &http.Client{Transport: http.DefaultTransport, Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Send posts the message and decodes the response
func (t *HTTPTransport) Send(ctx context.Context, msg []byte) ([]byte, error) {
	logger.Debug(ctx, "Sending message: %v", Scrub(segment.DecodeText(msg)))

	body := base64.StdEncoding.EncodeToString(msg)
	res := request.Do(ctx,
		request.Post(t.url, ContentType, strings.NewReader(body)),
		request.WithClient(t.client),
	)
	encoded, err := res.ReadAll()
	if err != nil {
		return nil, errors.Wrap(err, "Failed to send FinTS message")
	}

	decoded, err := base64.StdEncoding.DecodeString(stripSpaces(encoded))
	if err != nil {
		return nil, errors.Wrap(err, "Failed to decode FinTS response")
	}
	logger.Debug(ctx, "Got response: %v", Scrub(segment.DecodeText(decoded)))
	return decoded, nil
}

func stripSpaces(data []byte) string {
	return string(bytes.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, data))
}
