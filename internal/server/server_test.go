package server

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeAddr(t *testing.T) {
	assert.Equal(t, "", normalizeAddr(""))
	assert.Equal(t, ":8080", normalizeAddr("8080"))
	assert.Equal(t, ":8080", normalizeAddr(":8080"))
	assert.Equal(t, "127.0.0.1:0", normalizeAddr("127.0.0.1:0"))
}

func TestServer_RunAndShutdown(t *testing.T) {
	srv := &Server{}
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "pong")
	})

	errc := make(chan error, 1)
	go func() { errc <- srv.Run("127.0.0.1:0", handler) }()

	require.Eventually(t, func() bool { return srv.Addr() != nil }, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Get("http://" + srv.Addr().String() + "/")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, "pong", string(body))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, srv.Shutdown(ctx))

	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Shutdown")
	}
}

func TestServer_ShutdownBeforeRun(t *testing.T) {
	assert.NoError(t, (&Server{}).Shutdown(context.Background()))
}

func TestServer_RunAfterShutdownReturns(t *testing.T) {
	srv := &Server{}
	require.NoError(t, srv.Shutdown(context.Background()))
	assert.NoError(t, srv.Run("127.0.0.1:0", http.NotFoundHandler()))
	assert.Nil(t, srv.Addr())
}
