package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"cajapos/backend/internal/config"
	"cajapos/backend/internal/service"
	"cajapos/backend/internal/store/memory"
	"cajapos/backend/internal/store/remote"
)

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "short"})
	assert.Error(t, err, "expected weak security config to be rejected")
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	err := validateSecurityConfig(config.Config{AuthSecret: "0123456789abcdef0123456789abcdef"})
	assert.NoError(t, err)
}

func TestBuildRepositorySelection(t *testing.T) {
	ctx := context.Background()

	repo, closer, err := buildRepository(ctx, config.Config{}, zap.NewNop())
	require.NoError(t, err)
	assert.Nil(t, closer)
	assert.IsType(t, &memory.Store{}, repo)

	repo, _, err = buildRepository(ctx, config.Config{DataServiceURL: "http://127.0.0.1:9", DataServiceTimeout: time.Second}, zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &remote.Client{}, repo)

	_, _, err = buildRepository(ctx, config.Config{DataServiceURL: "not a url"}, zap.NewNop())
	assert.Error(t, err)
}

func TestSweepIdleSessionsStopsWithContext(t *testing.T) {
	svc := service.New(memory.NewSeeded())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sweepIdleSessions(ctx, svc, time.Hour)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after cancel")
	}
}
