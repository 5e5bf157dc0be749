package handlers

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthHandlerGet(t *testing.T) {
	h := NewHealthHandler("1.2.3").WithJobCounter(func() int { return 2 })

	out, err := h.Get(context.Background(), &HealthInput{})
	require.NoError(t, err)

	assert.Equal(t, "ok", out.Body.Status)
	assert.Equal(t, "1.2.3", out.Body.Version)
	assert.Equal(t, "unconfigured", out.Body.Database)
	assert.Equal(t, 2, out.Body.ActiveJobs)
	assert.NotEmpty(t, out.Body.Uptime)
}

func TestHealthHandlerDefaultVersion(t *testing.T) {
	h := NewHealthHandler("dev")

	out, err := h.Get(context.Background(), &HealthInput{})
	require.NoError(t, err)
	assert.Equal(t, "dev", out.Body.Version)
	assert.Zero(t, out.Body.ActiveJobs)
}
