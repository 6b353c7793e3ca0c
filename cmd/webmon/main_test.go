package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eliteGoblin/focusd/web_mon/internal/config"
	"github.com/eliteGoblin/focusd/web_mon/internal/policy"
)

func TestServiceHosts(t *testing.T) {
	hosts := serviceHosts(
		"http://127.0.0.1:8787",
		"https://classifier.example.com/v1",
		"https://classifier.example.com:8443",
		"not a url",
		"",
	)

	assert.Equal(t, []string{"127.0.0.1", "classifier.example.com"}, hosts)
}

func TestBuildRegistry_ConfiguredDomainsOverrideBuiltins(t *testing.T) {
	cfg := &config.Config{
		Domains: []config.DomainConfig{
			{ID: "work", Name: "Deep work", DefaultDuration: 90 * time.Minute},
			{ID: "research"},
		},
	}

	registry := buildRegistry(cfg)

	work, ok := registry.Get("work")
	require.True(t, ok)
	assert.Equal(t, "Deep work", work.Name())
	assert.Equal(t, 90*time.Minute, work.DefaultDuration())

	research, ok := registry.Get("research")
	require.True(t, ok)
	assert.Equal(t, "research", research.Name())
	assert.Equal(t, policy.DefaultSessionDuration, research.DefaultDuration())

	_, ok = registry.Get("school")
	assert.True(t, ok)
}
