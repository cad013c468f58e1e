// SPDX-License-Identifier: MIT

package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreambooster/dreambooster/internal/log"
)

func reserveListenAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err, "reserve listen addr")
	addr := ln.Addr().String()
	_ = ln.Close()
	return addr
}

func waitForListen(addr string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 50*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}
	return errors.New("listen timeout")
}

func TestNewManagerRequiresAPIHandler(t *testing.T) {
	_, err := NewManager(ServerConfig{}, nil, nil, log.WithComponent("test"))
	assert.Error(t, err)
}

func TestManagerStartStop(t *testing.T) {
	addr := reserveListenAddr(t)
	mgr, err := NewManager(ServerConfig{
		Listen:          addr,
		ShutdownTimeout: 2 * time.Second,
	}, http.NotFoundHandler(), nil, log.WithComponent("test"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- mgr.Start(ctx) }()

	require.NoError(t, waitForListen(addr, 2*time.Second))
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("manager did not stop")
	}
}

func TestManagerMetricsListener(t *testing.T) {
	apiAddr := reserveListenAddr(t)
	metricsAddr := reserveListenAddr(t)
	mgr, err := NewManager(ServerConfig{
		Listen:          apiAddr,
		MetricsListen:   metricsAddr,
		ShutdownTimeout: 2 * time.Second,
	}, http.NotFoundHandler(), http.NotFoundHandler(), log.WithComponent("test"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- mgr.Start(ctx) }()

	require.NoError(t, waitForListen(apiAddr, 2*time.Second))
	require.NoError(t, waitForListen(metricsAddr, 2*time.Second))
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("manager did not stop")
	}
}

func TestManagerShutdownHooksLIFO(t *testing.T) {
	addr := reserveListenAddr(t)
	mgr, err := NewManager(ServerConfig{Listen: addr}, http.NotFoundHandler(), nil, log.WithComponent("test"))
	require.NoError(t, err)

	var order []string
	for _, name := range []string{"first", "second", "third"} {
		name := name
		mgr.RegisterShutdownHook(name, func(context.Context) error {
			order = append(order, name)
			return nil
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- mgr.Start(ctx) }()
	require.NoError(t, waitForListen(addr, 2*time.Second))
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("manager did not stop")
	}

	assert.Equal(t, []string{"third", "second", "first"}, order)
}

func TestManagerShutdownJoinsHookErrors(t *testing.T) {
	addr := reserveListenAddr(t)
	mgr, err := NewManager(ServerConfig{Listen: addr}, http.NotFoundHandler(), nil, log.WithComponent("test"))
	require.NoError(t, err)

	hookErr := fmt.Errorf("store close failed")
	mgr.RegisterShutdownHook("store", func(context.Context) error { return hookErr })
	mgr.RegisterShutdownHook("clean", func(context.Context) error { return nil })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- mgr.Start(ctx) }()
	require.NoError(t, waitForListen(addr, 2*time.Second))
	cancel()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.ErrorIs(t, err, hookErr)
	case <-time.After(5 * time.Second):
		t.Fatal("manager did not stop")
	}
}

func TestManagerShutdownNotStarted(t *testing.T) {
	mgr, err := NewManager(ServerConfig{Listen: "127.0.0.1:0"}, http.NotFoundHandler(), nil, log.WithComponent("test"))
	require.NoError(t, err)

	err = mgr.Shutdown(context.Background())
	assert.ErrorIs(t, err, ErrManagerNotStarted)
}

func TestManagerPropagatesListenErrors(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = ln.Close() }()

	// Bind to an address that is already taken.
	mgr, err := NewManager(ServerConfig{Listen: ln.Addr().String()}, http.NotFoundHandler(), nil, log.WithComponent("test"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err = mgr.Start(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api server")
}
