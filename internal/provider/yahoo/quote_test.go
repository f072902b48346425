package yahoo_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/BlissPhinehas/trading-dashboard/internal/provider"
	"github.com/BlissPhinehas/trading-dashboard/internal/provider/yahoo"
)

func newTestClient(t *testing.T, status int, body string) *yahoo.Client {
	t.Helper()

	// Arrange: create a mock controller
	ctrl := gomock.NewController(t)

	// Arrange: create a mock HTTP client answering once with status and body
	httpClient := NewMockHTTPClient(ctrl)
	httpClient.EXPECT().
		Do(gomock.Any()).
		Return(&http.Response{
			StatusCode: status,
			Body:       io.NopCloser(strings.NewReader(body)),
		}, nil).
		Times(1)

	return yahoo.NewClient("", yahoo.WithHTTPClient(httpClient))
}

func TestFetch(t *testing.T) {
	t.Parallel()

	// Arrange: create a mock controller
	ctrl := gomock.NewController(t)

	// Arrange: load the fixture with one malformed entry
	fixture, err := os.ReadFile("testdata/quote_partial.json")
	require.NoError(t, err)

	// Arrange: create a mock HTTP client
	httpClient := NewMockHTTPClient(ctrl)

	// Assert: one combined request carries every symbol
	httpClient.EXPECT().
		Do(gomock.Any()).
		DoAndReturn(func(req *http.Request) (*http.Response, error) {
			require.Equal(t, http.MethodGet, req.Method)
			require.Equal(t, "AAPL,MSFT,NVDA", req.URL.Query().Get("symbols"))
			require.Equal(t, "application/json", req.Header.Get("Accept"))
			return &http.Response{
				StatusCode: http.StatusOK,
				Body:       io.NopCloser(strings.NewReader(string(fixture))),
			}, nil
		}).
		Times(1)

	client := yahoo.NewClient("", yahoo.WithHTTPClient(httpClient))

	// Act: fetch all three symbols
	quotes, err := client.Fetch(t.Context(), []string{"AAPL", "MSFT", "NVDA"})

	// Assert: the malformed MSFT entry is reported, its siblings survive
	require.Error(t, err)
	require.ErrorIs(t, err, provider.ErrMalformedResponse)
	symErrs := provider.SymbolErrors(err)
	require.Len(t, symErrs, 1)
	require.Contains(t, symErrs, "MSFT")

	require.Len(t, quotes, 2)
	require.Equal(t, "AAPL", quotes[0].Symbol)
	require.InEpsilon(t, 175.43, quotes[0].Price, 0.0001)
	require.InEpsilon(t, 1.21, quotes[0].Change, 0.0001)
	require.Equal(t, int64(51234567), quotes[0].Volume)
	require.NotNil(t, quotes[0].MarketCap)
	require.Equal(t, int64(2745000000000), *quotes[0].MarketCap)
	require.Equal(t, time.Unix(1709913600, 0).UTC(), quotes[0].ReceivedAt)
	require.Equal(t, provider.ProvenanceLive, quotes[0].Provenance)
	require.Equal(t, "Yahoo", quotes[0].Source)

	require.Equal(t, "NVDA", quotes[1].Symbol)
	require.Nil(t, quotes[1].MarketCap)
	require.False(t, quotes[1].ReceivedAt.IsZero())
}

func TestFetch_NoSymbols(t *testing.T) {
	t.Parallel()

	// Arrange: create a mock controller
	ctrl := gomock.NewController(t)

	// Arrange: create a mock HTTP client that must not be called
	httpClient := NewMockHTTPClient(ctrl)
	httpClient.EXPECT().Do(gomock.Any()).Times(0)

	client := yahoo.NewClient("", yahoo.WithHTTPClient(httpClient))

	// Act: fetch nothing
	quotes, err := client.Fetch(t.Context(), nil)

	// Assert: no request, no error
	require.NoError(t, err)
	require.Empty(t, quotes)
}

func TestFetch_ErrCreatingRequest(t *testing.T) {
	t.Parallel()

	// Arrange: create a mock controller
	ctrl := gomock.NewController(t)

	// Arrange: create a mock HTTP client
	httpClient := NewMockHTTPClient(ctrl)
	httpClient.EXPECT().Do(gomock.Any()).Times(0)

	client := yahoo.NewClient("", yahoo.WithHTTPClient(httpClient), yahoo.WithBaseURL(string([]rune{0x7f})))

	// Act: fetch with an invalid base URL
	quotes, err := client.Fetch(t.Context(), []string{"AAPL"})

	// Assert: request construction fails
	require.Error(t, err)
	require.Nil(t, quotes)
}

func TestFetch_ErrPerformingRequest(t *testing.T) {
	t.Parallel()

	// Arrange: create a mock controller
	ctrl := gomock.NewController(t)

	// Arrange: create a mock HTTP client that fails with the context error
	httpClient := NewMockHTTPClient(ctrl)
	httpClient.EXPECT().
		Do(gomock.Any()).
		Return(nil, context.DeadlineExceeded).
		Times(1)

	client := yahoo.NewClient("", yahoo.WithHTTPClient(httpClient))

	// Act: fetch
	quotes, err := client.Fetch(t.Context(), []string{"AAPL"})

	// Assert: transport errors are unavailable and keep their cause
	require.ErrorIs(t, err, provider.ErrUnavailable)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Nil(t, quotes)
}

func TestFetch_StatusCodes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		status  int
		body    string
		wantErr error
		limited bool
	}{
		{name: "too many requests", status: http.StatusTooManyRequests, wantErr: provider.ErrRateLimited, limited: true},
		{name: "unauthorized", status: http.StatusUnauthorized, wantErr: provider.ErrUnavailable},
		{name: "forbidden with body", status: http.StatusForbidden, body: `{"finance":{"error":{"code":"Forbidden","description":"invalid key"}}}`, wantErr: provider.ErrUnavailable},
		{name: "server error", status: http.StatusBadGateway, wantErr: provider.ErrUnavailable},
		{name: "not found", status: http.StatusNotFound, wantErr: provider.ErrUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			// Arrange: client answering with the status
			client := newTestClient(t, tt.status, tt.body)

			// Act: fetch
			quotes, err := client.Fetch(t.Context(), []string{"AAPL"})

			// Assert: error kind matches
			require.ErrorIs(t, err, tt.wantErr)
			require.Nil(t, quotes)
			var apiErr *provider.APIError
			if errors.As(err, &apiErr) {
				require.Equal(t, tt.limited, apiErr.RateLimited)
			}
		})
	}
}

func TestFetch_BodyErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		body    string
		wantErr error
	}{
		{name: "empty body", body: "  \n", wantErr: provider.ErrEmptyResponse},
		{name: "top level error", body: `{"error":"service down"}`, wantErr: provider.ErrUnavailable},
		{name: "finance error", body: `{"finance":{"result":null,"error":{"code":"Bad Request","description":"Missing value for the \"symbols\" argument"}}}`, wantErr: provider.ErrUnavailable},
		{name: "quote response rate limit", body: `{"quoteResponse":{"result":[],"error":"Too Many Requests"}}`, wantErr: provider.ErrRateLimited},
		{name: "missing quoteResponse", body: `{"something":"else"}`, wantErr: provider.ErrMalformedResponse},
		{name: "not json", body: `<html>oops</html>`, wantErr: provider.ErrMalformedResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			// Arrange: client answering 200 with the body
			client := newTestClient(t, http.StatusOK, tt.body)

			// Act: fetch
			quotes, err := client.Fetch(t.Context(), []string{"AAPL"})

			// Assert: the whole batch fails with the expected kind
			require.ErrorIs(t, err, tt.wantErr)
			require.Nil(t, quotes)
		})
	}
}

func TestFetch_UnknownSymbol(t *testing.T) {
	t.Parallel()

	// Arrange: the provider omits a requested symbol
	client := newTestClient(t, http.StatusOK, `{"quoteResponse":{"result":[
		{"symbol":"aapl","regularMarketPrice":1,"regularMarketChange":0,"regularMarketChangePercent":0,"regularMarketVolume":10}
	],"error":null}}`)

	// Act: fetch two symbols
	quotes, err := client.Fetch(t.Context(), []string{"AAPL", "ZZZZ"})

	// Assert: the answered symbol is normalized, the missing one is a symbol error
	require.Len(t, quotes, 1)
	require.Equal(t, "AAPL", quotes[0].Symbol)
	symErrs := provider.SymbolErrors(err)
	require.Len(t, symErrs, 1)
	require.ErrorIs(t, symErrs["ZZZZ"], provider.ErrMalformedResponse)
}

func TestFetch_WrongFieldType(t *testing.T) {
	t.Parallel()

	// Arrange: price encoded as a string
	client := newTestClient(t, http.StatusOK, `{"quoteResponse":{"result":[
		{"symbol":"AAPL","regularMarketPrice":"175.4","regularMarketChange":0,"regularMarketChangePercent":0,"regularMarketVolume":10}
	],"error":null}}`)

	// Act: fetch
	quotes, err := client.Fetch(t.Context(), []string{"AAPL"})

	// Assert: the entry is a data error
	require.Empty(t, quotes)
	require.Equal(t, "data_error", provider.Classify(err))
	require.Contains(t, provider.SymbolErrors(err), "AAPL")
}
