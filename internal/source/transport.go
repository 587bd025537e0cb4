package source

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	domainerrors "whatson/internal/errors"
)

// Response is the part of an HTTP response the source cares about.
type Response struct {
	StatusCode int
	Body       []byte
}

// Transport performs GET requests with custom headers. Implementations must
// return a FetchError for non-2xx answers so status code and status text
// reach the caller.
type Transport interface {
	Get(ctx context.Context, url string, header http.Header) (*Response, error)
}

// HTTPTransport is the net/http backed Transport with outbound rate limiting.
type HTTPTransport struct {
	client  *http.Client
	limiter *rate.Limiter
}

// NewHTTPTransport returns a transport with the given client timeout and a
// limit of perMinute requests (burst 5). perMinute <= 0 disables limiting.
func NewHTTPTransport(timeout time.Duration, perMinute int) *HTTPTransport {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	limiter := rate.NewLimiter(rate.Inf, 0)
	if perMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 5)
	}
	return &HTTPTransport{
		client:  &http.Client{Timeout: timeout},
		limiter: limiter,
	}
}

func (t *HTTPTransport) Get(ctx context.Context, url string, header http.Header) (*Response, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, domainerrors.Fetch(0, "", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, domainerrors.Fetch(0, "", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, domainerrors.Fetch(0, "", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, domainerrors.Fetch(resp.StatusCode, statusText(resp), nil)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domainerrors.Fetch(resp.StatusCode, statusText(resp), err)
	}

	return &Response{StatusCode: resp.StatusCode, Body: body}, nil
}

// statusText returns the reason phrase the server sent, falling back to the
// standard text for the code.
func statusText(resp *http.Response) string {
	text := strings.TrimSpace(strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode)))
	if text == "" {
		return http.StatusText(resp.StatusCode)
	}
	return text
}
