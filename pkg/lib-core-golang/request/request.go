package request

import (
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"

	"github.com/pkg/errors"

	"github.com/evgeny-myasishchev/ledger.fints-fetcher/pkg/lib-core-golang/diag"
)

var defaultLogger = diag.CreateLogger()

const maxErrorBodyLen = 512

type sendCfg struct {
	logger diag.Logger
	client *http.Client
}

// SendOpt is a send specific option
type SendOpt func(cfg *sendCfg)

func withLogger(logger diag.Logger) SendOpt {
	return func(cfg *sendCfg) {
		cfg.logger = logger
	}
}

// WithClient will send the request with a given client
func WithClient(client *http.Client) SendOpt {
	return func(cfg *sendCfg) {
		cfg.client = client
	}
}

// HTTPError is returned for non 2xx responses
type HTTPError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e HTTPError) Error() string {
	return fmt.Sprintf("[%v](%v): %v", e.StatusCode, e.Status, e.Body)
}

// NewHTTPErrorFromResponse builds an error using response status and a head of the body.
// The response body is consumed and closed
func NewHTTPErrorFromResponse(res *http.Response) error {
	defer res.Body.Close()
	body, _ := ioutil.ReadAll(io.LimitReader(res.Body, maxErrorBodyLen))
	return HTTPError{
		StatusCode: res.StatusCode,
		Status:     http.StatusText(res.StatusCode),
		Body:       string(body),
	}
}

// ReqFactory is a function that creates an instance of a request
type ReqFactory func() (*http.Request, error)

// Get creates a new req factory that creates a get request for given url
func Get(url string) ReqFactory {
	return func() (*http.Request, error) {
		return http.NewRequest(http.MethodGet, url, nil)
	}
}

// Post creates a new req factory that creates a post request with a given body
func Post(url string, contentType string, body io.Reader) ReqFactory {
	return func() (*http.Request, error) {
		req, err := http.NewRequest(http.MethodPost, url, body)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", contentType)
		return req, nil
	}
}

// WithHeader returns a factory that will set given header on a request
func (f ReqFactory) WithHeader(key, value string) ReqFactory {
	return func() (*http.Request, error) {
		req, err := f()
		if err != nil {
			return nil, err
		}
		req.Header.Set(key, value)
		return req, nil
	}
}

// ResFactory is a function that holds a request result with a response or error
type ResFactory func() (*http.Response, error)

// ReadAll will read entire body as a byte array
func (f ResFactory) ReadAll() ([]byte, error) {
	res, err := f()
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	return ioutil.ReadAll(res.Body)
}

func newResFactory(res *http.Response, err error) ResFactory {
	var httpErr error
	if err == nil && res.StatusCode >= 300 {
		httpErr = NewHTTPErrorFromResponse(res)
	}
	return func() (*http.Response, error) {
		if err != nil {
			return nil, err
		}
		if httpErr != nil {
			return nil, httpErr
		}
		return res, nil
	}
}

// Do will send the request. Will fail if response status is other than 2xx
func Do(ctx context.Context, factory ReqFactory, opts ...SendOpt) ResFactory {
	cfg := sendCfg{
		logger: defaultLogger,
		client: &http.Client{Transport: http.DefaultTransport},
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	req, err := factory()
	if err != nil {
		return newResFactory(nil, errors.Wrap(err, "Failed to create request"))
	}
	cfg.logger.Debug(ctx, "Sending %v %v", req.Method, req.URL)
	res, err := cfg.client.Do(req.WithContext(ctx))
	if err != nil {
		cfg.logger.WithError(err).Warn(ctx, "Request %v %v failed", req.Method, req.URL)
		return newResFactory(nil, err)
	}
	cfg.logger.Debug(ctx, "Got response %v for %v %v", res.StatusCode, req.Method, req.URL)
	return newResFactory(res, nil)
}
