package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/profile-crawler/internal/config"
)

func memoryConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Logging.Development = false
	cfg.Queue.Backend = "memory"
	cfg.Storage.Backend = "memory"
	cfg.Database.DSN = ""
	cfg.LLM.Provider = "none"
	return cfg
}

func TestBuildInMemory(t *testing.T) {
	cfg := memoryConfig(t)

	app, err := Build(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(app.Close)

	require.NotNil(t, app.queues.GitHub)
	require.NotNil(t, app.queues.LinkedIn)
	require.NotNil(t, app.queues.Portfolio)
	require.Empty(t, app.readyChecks())

	rec := httptest.NewRecorder()
	app.apiServer.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRunStopsOnCancel(t *testing.T) {
	cfg := memoryConfig(t)
	cfg.Server.Port = 18089

	app, err := Build(context.Background(), cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://127.0.0.1:18089/healthz")
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(shutdownTimeout + time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRetryPolicyFromConfig(t *testing.T) {
	t.Parallel()

	p := retryPolicy(config.RetryConfig{
		MaxAttempts:   3,
		MinDelayMs:    2000,
		MaxDelayMs:    5000,
		StepMs:        1000,
		CallTimeoutMs: 30000,
	})
	require.Equal(t, 3, p.MaxAttempts)
	require.Equal(t, 2*time.Second, p.MinDelay)
	require.Equal(t, 5*time.Second, p.MaxDelay)
	require.Equal(t, time.Second, p.Step)
	require.Equal(t, 30*time.Second, p.CallTimeout)
}
