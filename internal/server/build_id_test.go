package server

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/themescan/internal/version"
	"github.com/standardbeagle/themescan/testhelpers"
)

func startListening(t *testing.T) (*ScanServer, *Client) {
	t.Helper()
	cfg := testhelpers.NewTestConfigBuilder("shop.myshopify.com").Build()
	srv, err := NewScanServer(cfg, testhelpers.StandardTheme())
	require.NoError(t, err)
	require.NoError(t, srv.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	})
	return srv, NewClient(srv.Addr())
}

func TestBuildID_PingIncludesBuildID(t *testing.T) {
	_, client := startListening(t)

	ping, err := client.Ping(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, ping.BuildID, "Ping response should include BuildID")
	assert.Equal(t, version.BuildID(), ping.BuildID,
		"Server BuildID should match current binary's BuildID")
	assert.Equal(t, version.Version, ping.Version)
	assert.Equal(t, "shop.myshopify.com", ping.Store)
	assert.GreaterOrEqual(t, ping.Uptime, 0.0)
}

func TestBuildID_Deterministic(t *testing.T) {
	id1 := version.BuildID()
	id2 := version.BuildID()
	assert.Equal(t, id1, id2, "BuildID should be deterministic across calls")
	assert.NotEmpty(t, id1, "BuildID should not be empty")
}

func TestBuildID_SecondStartFails(t *testing.T) {
	srv, client := startListening(t)
	require.True(t, client.IsServerRunning(), "First server should be reachable")

	err := srv.Start()
	assert.Error(t, err, "Second Start() on same instance should fail")
}

func TestBuildID_MismatchTriggersShutdown(t *testing.T) {
	cfg := testhelpers.NewTestConfigBuilder("shop.myshopify.com").Build()
	srv, err := NewScanServer(cfg, testhelpers.StandardTheme())
	require.NoError(t, err)
	srv.BuildIDOverride = "old-build-abc123"
	require.NoError(t, srv.Start())

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		srv.Wait()
		_ = srv.Shutdown(context.Background())
	}()

	client := NewClient(srv.Addr())
	require.True(t, client.IsServerRunning())

	ping, err := client.Ping(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "old-build-abc123", ping.BuildID)
	assert.NotEqual(t, version.BuildID(), ping.BuildID,
		"Override should differ from current binary's BuildID")

	// What a caller does on mismatch
	require.NoError(t, client.Shutdown(context.Background()))

	select {
	case <-stopped:
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
	assert.False(t, client.IsServerRunning(), "Server should be stopped after shutdown")
}
