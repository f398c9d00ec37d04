package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Request describes one page or payload to obtain. URL-driven sites set
// URL only; API-driven sites add a JSON Payload and POST it.
type Request struct {
	URL     string
	Method  string
	Payload map[string]any
	Headers map[string]string
	Cookies map[string]string

	// Site names the integration this request belongs to, for logging and
	// per-site credential lookup.
	Site string
}

// NewRequest builds a GET request for a URL.
func NewRequest(site, url string) *Request {
	return &Request{URL: url, Method: http.MethodGet, Site: site}
}

// NewJSONRequest builds a POST request with a JSON payload.
func NewJSONRequest(site, url string, payload map[string]any) *Request {
	return &Request{URL: url, Method: http.MethodPost, Payload: payload, Site: site}
}

// Response is the result of a fetch: raw bytes plus lazy HTML/JSON views.
type Response struct {
	StatusCode    int
	Body          []byte
	FinalURL      string
	FetchDuration time.Duration
	FetchedAt     time.Time

	doc *goquery.Document
}

// Document returns a parsed goquery document, lazily initializing it.
func (r *Response) Document() (*goquery.Document, error) {
	if r.doc != nil {
		return r.doc, nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(r.Body))
	if err != nil {
		return nil, err
	}
	r.doc = doc
	return doc, nil
}

// JSON decodes the body into v.
func (r *Response) JSON(v any) error {
	return json.Unmarshal(r.Body, v)
}

// Fetcher is the interface for all fetch strategies.
type Fetcher interface {
	// Fetch retrieves the content for the given request.
	Fetch(ctx context.Context, req *Request) (*Response, error)

	// Close releases any resources held by the fetcher.
	Close() error

	// Type returns the strategy identifier.
	Type() string
}
