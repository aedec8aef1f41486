package browser

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSidecar answers every driver command with a scripted response.
func fakeSidecar(t *testing.T, handle func(req driverRequest) driverResponse) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()
		for {
			var req driverRequest
			if err := conn.ReadJSON(&req); err != nil {
				return
			}
			resp := handle(req)
			resp.ID = req.ID
			if err := conn.WriteJSON(resp); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server) string {
	return strings.Replace(srv.URL, "http://", "ws://", 1)
}

func TestRemoteNavigate(t *testing.T) {
	srv := fakeSidecar(t, func(req driverRequest) driverResponse {
		assert.Equal(t, opNavigate, req.Op)
		return driverResponse{Snapshot: &Snapshot{
			URL: req.URL,
			Elements: []Element{
				{Ref: "q0", Tag: "input", Type: "text", Label: "Years of experience", Required: true},
				{Ref: "next", Tag: "button", Text: "Next"},
			},
		}}
	})

	r, err := Dial(context.Background(), wsURL(srv))
	require.NoError(t, err)
	defer r.Close()

	snap, err := r.Navigate(context.Background(), "https://example.com/jobs/1")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/jobs/1", snap.URL)
	require.Len(t, snap.Elements, 2)
	assert.Equal(t, "Years of experience", snap.Elements[0].Label)
	assert.True(t, snap.Elements[0].Required)
}

func TestRemoteActCarriesValue(t *testing.T) {
	srv := fakeSidecar(t, func(req driverRequest) driverResponse {
		assert.Equal(t, opAct, req.Op)
		assert.Equal(t, "q0", req.Ref)
		assert.Equal(t, "7", req.Value)
		return driverResponse{Snapshot: &Snapshot{URL: "https://example.com/apply"}}
	})

	r, err := Dial(context.Background(), wsURL(srv))
	require.NoError(t, err)
	defer r.Close()

	_, err = r.Act(context.Background(), "q0", "7")
	require.NoError(t, err)
}

func TestRemoteErrorMapping(t *testing.T) {
	srv := fakeSidecar(t, func(driverRequest) driverResponse {
		return driverResponse{Error: &driverError{
			Kind: "blocked", URL: "https://example.com/jobs/1", Message: "challenge page",
		}}
	})

	r, err := Dial(context.Background(), wsURL(srv))
	require.NoError(t, err)
	defer r.Close()

	_, err = r.Navigate(context.Background(), "https://example.com/jobs/1")
	var navErr *NavigationError
	require.ErrorAs(t, err, &navErr)
	assert.Equal(t, NavBlocked, navErr.Kind)
	assert.True(t, navErr.Transient())
}

func TestRemoteUnknownErrorKind(t *testing.T) {
	srv := fakeSidecar(t, func(driverRequest) driverResponse {
		return driverResponse{Error: &driverError{Kind: "weird", Message: "boom"}}
	})

	r, err := Dial(context.Background(), wsURL(srv))
	require.NoError(t, err)
	defer r.Close()

	_, err = r.Navigate(context.Background(), "u")
	require.Error(t, err)
	var navErr *NavigationError
	assert.False(t, errors.As(err, &navErr), "unknown kinds are plain errors")
}
