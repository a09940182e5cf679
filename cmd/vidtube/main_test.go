package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/vidtube/internal/testutil"
)

func noEnv(string) string { return "" }

func Test_run(t *testing.T) {
	t.Run("stop with signal", func(t *testing.T) {
		port, err := testutil.RandomPort()
		require.NoError(t, err, "failed to get random port to start server")

		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond) // Half Second
		t.Cleanup(cancel)

		err = run(ctx, noEnv, os.Getwd, []string{
			"--address", fmt.Sprintf("localhost:%d", port),
			"--environment", "test",
			"--access-secret", "access",
			"--refresh-secret", "refresh",
		})

		require.NoError(t, err, "on correct stop should not return error")
	})

	t.Run("fail without secrets", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		t.Cleanup(cancel)

		err := run(ctx, noEnv, os.Getwd, []string{"--environment", "test"})

		require.Error(t, err, "secrets are required")
	})

	t.Run("stop with srv error", func(t *testing.T) {
		// Hold the port so server can't listen on it
		ln, err := net.Listen("tcp", "127.0.0.1:")
		require.NoError(t, err)
		t.Cleanup(func() { _ = ln.Close() })

		ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
		t.Cleanup(cancel)

		err = run(ctx, noEnv, os.Getwd, []string{
			"--address", ln.Addr().String(),
			"--environment", "test",
			"--access-secret", "access",
			"--refresh-secret", "refresh",
		})

		require.Error(t, err, "busy address must fail the server")
	})
}

func Test_run_Postgres(t *testing.T) {
	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	port, err := testutil.RandomPort()
	require.NoError(t, err)
	addr := fmt.Sprintf("localhost:%d", port)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	done := make(chan error, 1)
	go func() {
		done <- run(ctx, noEnv, os.Getwd, []string{
			"--address", addr,
			"--environment", "test",
			"--database", pg.DSN,
			"--access-secret", "access",
			"--refresh-secret", "refresh",
		})
	}()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr + "/api/v1/healthcheck")
		if err != nil {
			return false
		}
		defer func() { _ = resp.Body.Close() }()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 50*time.Millisecond, "server should become healthy")

	resp, err := http.Post("http://"+addr+"/api/v1/users/register", "application/json",
		strings.NewReader(`{"username":"alice","email":"alice@x.com","password":"secret1"}`))
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Post("http://"+addr+"/api/v1/users/login", "application/json",
		strings.NewReader(`{"identifier":"alice","password":"secret1"}`))
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	require.NoError(t, <-done)
}
