package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	manifest, err := Parse([]byte(`{
		"name": "web",
		"port": 8080,
		"domains": ["app.example.com"],
		"env": {"MODE": "production"},
		"cron_jobs": [{"name": "sweep", "run": "bin/sweep", "is_async": true}]
	}`))
	require.NoError(t, err)

	assert.Equal(t, "web", manifest.Name)
	require.NotNil(t, manifest.Port)
	assert.Equal(t, int16(8080), *manifest.Port)
	assert.Equal(t, []string{"app.example.com"}, manifest.Domains)
	assert.Equal(t, "production", manifest.Env["MODE"])
	require.Len(t, manifest.CronJobs, 1)
	assert.Equal(t, "sweep", manifest.CronJobs[0].Name)
	assert.True(t, manifest.CronJobs[0].IsAsync)
}

func TestParseMinimal(t *testing.T) {
	manifest, err := Parse([]byte(`{"name": "worker"}`))
	require.NoError(t, err)
	assert.Nil(t, manifest.Port)
	assert.Empty(t, manifest.Domains)
}

func TestParseErrors(t *testing.T) {
	_, err := Parse([]byte(`not json`))
	assert.Error(t, err)

	_, err = Parse([]byte(`{"port": 80}`))
	assert.Error(t, err)
}

func TestValidateDomain(t *testing.T) {
	tests := []struct {
		domain string
		valid  bool
	}{
		{"example.com", true},
		{"app.example.com", true},
		{"a-b.example.co.uk", true},
		{"xn--bcher-kva.example", true},
		{"localhost", false},
		{"my-cluster", false},
		{"-bad.example.com", false},
		{"bad-.example.com", false},
		{"example..com", false},
		{"", false},
		{"example.c0m", false},
	}

	for _, tt := range tests {
		t.Run(tt.domain, func(t *testing.T) {
			assert.Equal(t, tt.valid, ValidateDomain(tt.domain))
		})
	}
}
