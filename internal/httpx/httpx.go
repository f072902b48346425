package httpx

import (
    "net"
    "net/http"
    "time"

    "github.com/sirupsen/logrus"
)

// Client is a small wrapper around http.Client with sane defaults.
// It satisfies the HTTPClient interfaces of the provider packages.
type Client struct {
    HTTP      *http.Client
    UserAgent string
    Headers   map[string]string
    Log       logrus.FieldLogger
}

// New returns a client whose every request is bounded by timeout.
func New(timeout time.Duration) *Client {
    transport := &http.Transport{
        Proxy: http.ProxyFromEnvironment,
        DialContext: (&net.Dialer{Timeout: 3 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
        MaxIdleConns:          20,
        MaxIdleConnsPerHost:   4,
        MaxConnsPerHost:       8,
        ForceAttemptHTTP2:     true,
        IdleConnTimeout:       90 * time.Second,
        TLSHandshakeTimeout:   3 * time.Second,
        ExpectContinueTimeout: 1 * time.Second,
        ResponseHeaderTimeout: timeout,
    }
    return &Client{HTTP: &http.Client{Timeout: timeout, Transport: transport}, UserAgent: "trading-dashboard/1.0"}
}

// Do sets default headers that the request does not already carry and
// performs it, logging the outcome at debug level.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
    if c.UserAgent != "" && req.Header.Get("User-Agent") == "" {
        req.Header.Set("User-Agent", c.UserAgent)
    }
    for k, v := range c.Headers {
        if req.Header.Get(k) == "" {
            req.Header.Set(k, v)
        }
    }
    start := time.Now()
    resp, err := c.HTTP.Do(req)
    if c.Log != nil {
        entry := c.Log.WithFields(logrus.Fields{
            "method":   req.Method,
            "host":     req.URL.Host,
            "path":     req.URL.Path,
            "duration": time.Since(start).Round(time.Millisecond).String(),
        })
        if err != nil {
            entry.WithError(err).Debug("outbound request failed")
        } else {
            entry.WithField("status", resp.StatusCode).Debug("outbound request")
        }
    }
    return resp, err
}
