package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"golang.org/x/time/rate"

	logx "pushd/pkg/logx"
)

const defaultHTTPTimeout = 10 * time.Second

// httpExporter PUTs the text exposition format to a push gateway, replacing
// whatever the gateway held for the URL's grouping key.
type httpExporter struct {
	name    string
	url     string
	headers map[string]string

	client  *http.Client
	limiter *rate.Limiter
	src     prometheus.Gatherer
	log     logx.Logger
}

func newHTTPExporter(cfg Config, src prometheus.Gatherer, log logx.Logger) (*httpExporter, error) {
	raw := strings.TrimSpace(cfg.HTTP.URL)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, fmt.Errorf("exporter.http.url: invalid %q", cfg.HTTP.URL)
	}
	timeout := cfg.HTTP.Timeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}

	e := &httpExporter{
		name:    cfg.Name,
		url:     raw,
		headers: cfg.HTTP.Headers,
		client:  &http.Client{Timeout: timeout},
		src:     src,
		log:     log,
	}
	if rps := cfg.HTTP.RatePerSec; rps > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(rps), rps)
	}
	log.Debug("http exporter ready", logx.String("host", u.Host), logx.Duration("timeout", timeout), logx.Int("rate_per_sec", cfg.HTTP.RatePerSec))
	return e, nil
}

func (e *httpExporter) Name() string { return e.name }

func (e *httpExporter) Publish(ctx context.Context) error {
	if e.limiter != nil && !e.limiter.Allow() {
		return ErrRateLimited
	}
	mfs, err := e.src.Gather()
	if err != nil {
		return fmt.Errorf("gather: %w", err)
	}

	var body bytes.Buffer
	for _, mf := range mfs {
		if _, err := expfmt.MetricFamilyToText(&body, mf); err != nil {
			return fmt.Errorf("encode %s: %w", mf.GetName(), err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, e.url, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", string(expfmt.NewFormat(expfmt.TypeTextPlain)))
	for k, v := range e.headers {
		req.Header.Set(k, v)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (e *httpExporter) Close() error {
	e.client.CloseIdleConnections()
	return nil
}

// StatusError is a non-2xx response from the push endpoint.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("push endpoint returned %d", e.Code)
	}
	return fmt.Sprintf("push endpoint returned %d: %s", e.Code, e.Body)
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}
