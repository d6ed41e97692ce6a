package provider

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"song-recognition/logger"
)

const requestTimeout = 30 * time.Second

var defaultHTTPClient = &http.Client{Timeout: requestTimeout}

// post sends body to url and returns the response body regardless of the
// status code. the services report their own errors inside the payload.
func post(ctx context.Context, client *http.Client, url string, body []byte, headers map[string]string) ([]byte, error) {
	if client == nil {
		client = defaultHTTPClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, newRecognizeErrorf(OtherPermanent, "failed to create POST request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, newRecognizeErrorf(OtherPermanent, "failed to read response: %v", err)
	}

	if resp.StatusCode >= 300 {
		logger.Warn("[provider] non-success status",
			logger.Int("status", resp.StatusCode),
			logger.String("url", req.URL.Host))
	}

	return data, nil
}

// classifyTransportError maps name resolution failures and timeouts to
// Connection. everything else, a refused connection included, is
// OtherPermanent.
func classifyTransportError(err error) *RecognizeError {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return NewRecognizeError(Connection, err.Error())
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewRecognizeError(Connection, err.Error())
	}

	return NewRecognizeError(OtherPermanent, fmt.Sprint(err))
}
