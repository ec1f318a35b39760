package outbound

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formflow/formflow/pkg/schema"
)

func TestSend_JSONRoundTrip(t *testing.T) {
	var gotBody map[string]any
	var gotMethod string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ticket":{"id":"T-42"},"ok":true}`))
	}))
	defer srv.Close()

	d := NewHTTPDispatcher(Config{})
	resp, err := d.Send(context.Background(), &Request{
		URL:    srv.URL,
		Method: "post",
		Body:   map[string]any{"name": "Ada"},
	})
	require.NoError(t, err)
	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "Ada", gotBody["name"])
	assert.Equal(t, 200, resp.StatusCode)

	body, ok := resp.Body.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, true, body["ok"])
}

func TestSend_NonJSONBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		_, _ = w.Write([]byte("pong"))
	}))
	defer srv.Close()

	d := NewHTTPDispatcher(Config{})
	resp, err := d.Send(context.Background(), &Request{URL: srv.URL, Method: "GET"})
	require.NoError(t, err)
	assert.Equal(t, "pong", resp.Body)
}

func TestSend_ErrorStatusIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	d := NewHTTPDispatcher(Config{})
	resp, err := d.Send(context.Background(), &Request{URL: srv.URL, Method: "POST"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestSend_InvalidURL(t *testing.T) {
	d := NewHTTPDispatcher(Config{})

	_, err := d.Send(context.Background(), &Request{URL: "ftp://nope"})
	require.Error(t, err)
	ferr, ok := err.(*schema.FlowError)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeValidation, ferr.Code)

	_, err = d.Send(context.Background(), &Request{})
	require.Error(t, err)
}
