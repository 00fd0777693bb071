package main

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/chunkstream-go/pkg/provider"
)

func parseServe(t *testing.T, args ...string) (*viper.Viper, serveConfig, error) {
	t.Helper()
	v := viper.New()
	cmd := serveCmd(v)
	require.NoError(t, cmd.ParseFlags(args))
	cfg, err := loadServeConfig(v)
	return v, cfg, err
}

func TestServeConfigDefaults(t *testing.T) {
	_, cfg, err := parseServe(t)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, ":9090", cfg.MetricsAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Empty(t, cfg.OTLPEndpoint)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
}

func TestServeConfigFlagsAndEnv(t *testing.T) {
	t.Setenv("CHUNKPROXY_LOG_FORMAT", "json")

	_, cfg, err := parseServe(t, "--addr", "127.0.0.1:7000", "--log-level", "debug", "--otlp-protocol", "http")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:7000", cfg.Addr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)

	exporter, err := cfg.exporterType()
	require.NoError(t, err)
	assert.EqualValues(t, "otlp-http", exporter)
}

func TestServeConfigValidation(t *testing.T) {
	tests := [][]string{
		{"--log-level", "loud"},
		{"--log-format", "xml"},
		{"--otlp-protocol", "carrier-pigeon"},
		{"--addr", ""},
	}
	for _, args := range tests {
		_, _, err := parseServe(t, args...)
		assert.Error(t, err, "args %v", args)
	}
}

func TestViperSecrets(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-env")

	v, _, err := parseServe(t)
	require.NoError(t, err)

	secrets, err := viperSecrets(v, provider.DefaultRegistry())
	require.NoError(t, err)

	got, ok := secrets.LookupSecret("OPENAI_API_KEY")
	assert.True(t, ok)
	assert.Equal(t, "sk-env", got)

	_, ok = secrets.LookupSecret("GROQ_API_KEY")
	assert.False(t, ok)
}

func TestVersionAndProvidersCommands(t *testing.T) {
	var out bytes.Buffer
	root := rootCmd(viper.New())
	root.SetOut(&out)
	root.SetArgs([]string{"version"})
	require.NoError(t, root.Execute())
	assert.Contains(t, out.String(), "chunkproxy dev")

	out.Reset()
	root = rootCmd(viper.New())
	root.SetOut(&out)
	root.SetArgs([]string{"providers"})
	require.NoError(t, root.Execute())
	for _, name := range []string{"anthropic", "groq", "mistral", "openai", "openrouter"} {
		assert.Contains(t, out.String(), name)
	}
	assert.Contains(t, out.String(), "OPENAI_API_KEY")
}

func TestServeLifecycle(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")

	v, cfg, err := parseServe(t, "--log-level", "error", "--shutdown-timeout", "2s")
	require.NoError(t, err)

	proxyLn, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	metricsLn, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- serve(ctx, v, cfg, &listeners{proxy: proxyLn, metrics: metricsLn})
	}()

	proxyURL := "http://" + proxyLn.Addr().String()
	metricsURL := "http://" + metricsLn.Addr().String()

	require.Eventually(t, func() bool {
		resp, err := http.Get(proxyURL + "/healthz")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)

	resp, err := http.Post(proxyURL+"/api/stream", "application/json",
		strings.NewReader(`{"provider":"openai","messages":[{"role":"user","content":"hi"}]}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)

	resp, err = http.Get(metricsURL + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), `chunkstream_proxy_requests_total{provider="openai",status="500"} 1`)
	assert.Contains(t, string(body), "go_goroutines")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancellation")
	}
}
