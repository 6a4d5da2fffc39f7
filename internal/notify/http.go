package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Backend endpoints, relative to the configured base URL.
const (
	CheckInPath  = "/api/records/check-in"
	CheckOutPath = "/api/records/check-out"
)

// HTTPSink defaults.
const (
	DefaultHTTPAttempts   = 3
	DefaultRetryInterval  = time.Second
	defaultRequestTimeout = 15 * time.Second
)

// HTTPSink reports plates to the parking backend. In "in" mode it POSTs a
// multipart check-in with the plate and driver photos; in "out" mode it
// PATCHes a form check-out with the plate number only.
type HTTPSink struct {
	baseURL  string
	mode     string
	client   *http.Client
	attempts int
	limiter  *rate.Limiter
}

// HTTPOption configures an HTTPSink.
type HTTPOption func(*HTTPSink)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(s *HTTPSink) { s.client = c }
}

// WithRetry sets the number of attempts and the minimum spacing between
// them.
func WithRetry(attempts int, interval time.Duration) HTTPOption {
	return func(s *HTTPSink) {
		if attempts > 0 {
			s.attempts = attempts
		}
		s.limiter = rate.NewLimiter(rate.Every(interval), 1)
	}
}

// NewHTTPSink creates a sink posting to baseURL for the given gate mode.
func NewHTTPSink(baseURL, mode string, opts ...HTTPOption) *HTTPSink {
	s := &HTTPSink{
		baseURL:  strings.TrimRight(baseURL, "/"),
		mode:     mode,
		client:   &http.Client{Timeout: defaultRequestTimeout},
		attempts: DefaultHTTPAttempts,
		limiter:  rate.NewLimiter(rate.Every(DefaultRetryInterval), 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name implements Sink.
func (s *HTTPSink) Name() string { return "http" }

// Send implements Sink. Network errors and 5xx answers are retried; 4xx
// answers are not.
func (s *HTTPSink) Send(ctx context.Context, ev Event) error {
	var lastErr error
	for attempt := 1; attempt <= s.attempts; attempt++ {
		if err := s.limiter.Wait(ctx); err != nil {
			if lastErr != nil {
				return fmt.Errorf("%w (after %d attempts)", lastErr, attempt-1)
			}
			return err
		}

		req, err := s.newRequest(ctx, ev)
		if err != nil {
			return err
		}

		retry, err := s.do(req)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry {
			return err
		}
	}
	return fmt.Errorf("%w (after %d attempts)", lastErr, s.attempts)
}

func (s *HTTPSink) do(req *http.Request) (retry bool, err error) {
	resp, err := s.client.Do(req)
	if err != nil {
		return true, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return false, nil
	}
	err = fmt.Errorf("%s %s: status %d: %s", req.Method, req.URL.Path, resp.StatusCode, strings.TrimSpace(string(body)))
	return resp.StatusCode >= 500, err
}

func (s *HTTPSink) newRequest(ctx context.Context, ev Event) (*http.Request, error) {
	if s.mode == "out" {
		form := url.Values{"plateNumber": {ev.Number}}
		req, err := http.NewRequestWithContext(ctx, http.MethodPatch, s.baseURL+CheckOutPath, strings.NewReader(form.Encode()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		return req, nil
	}

	body, contentType, err := checkInBody(ev)
	if err != nil {
		return nil, fmt.Errorf("build check-in body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+CheckInPath, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	return req, nil
}

func checkInBody(ev Event) (*bytes.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := w.WriteField("plateNumber", ev.Number); err != nil {
		return nil, "", err
	}

	stamp := ev.AcceptedAt.Unix()
	photos := []struct {
		field string
		data  []byte
	}{
		{"platePhoto", ev.PlatePhoto},
		{"driverPhoto", ev.DriverPhoto},
	}
	for _, p := range photos {
		if len(p.data) == 0 {
			continue
		}
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s-%d.jpg"`, p.field, p.field, stamp))
		h.Set("Content-Type", "image/jpeg")
		part, err := w.CreatePart(h)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(p.data); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return bytes.NewReader(buf.Bytes()), w.FormDataContentType(), nil
}
