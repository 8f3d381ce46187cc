package servetest

import (
	"strconv"
	"testing"
)

// Env provides a chainable builder for setting [serve.BaseEnvironment] env vars
// via t.Setenv. Create one with [SetBaseEnv].
type Env struct {
	t testing.TB
}

// SetBaseEnv sets all [serve.BaseEnvironment] env vars to sensible test defaults.
// Port is required because each test must use a unique port to avoid collisions.
//
// Defaults:
//   - BMICRO_SERVICE_NAME: "test"
//   - BMICRO_HEALTH_PATH: "/health"
//   - BMICRO_METRICS_PATH: "/metrics"
//   - BMICRO_ENV: "production"
//   - BMICRO_OTEL_EXPORTER: "none"
//   - BMICRO_BODY_LIMIT: "1mb"
//   - BMICRO_TIMEOUT: "30s"
//   - BMICRO_ERROR_STATUS_CODES: "500-599"
//
// Use the returned [Env] to override individual values:
//
//	servetest.SetBaseEnv(t, 18085).Development().BodyLimit("10b")
func SetBaseEnv(t testing.TB, port int) *Env {
	t.Helper()
	t.Setenv("BMICRO_PORT", strconv.Itoa(port))
	t.Setenv("BMICRO_SERVICE_NAME", "test")
	t.Setenv("BMICRO_HEALTH_PATH", "/health")
	t.Setenv("BMICRO_METRICS_PATH", "/metrics")
	t.Setenv("BMICRO_ENV", "production")
	t.Setenv("BMICRO_OTEL_EXPORTER", "none")
	t.Setenv("BMICRO_BODY_LIMIT", "1mb")
	t.Setenv("BMICRO_TIMEOUT", "30s")
	t.Setenv("BMICRO_ERROR_STATUS_CODES", "500-599")
	return &Env{t: t}
}

// ServiceName overrides BMICRO_SERVICE_NAME.
func (e *Env) ServiceName(name string) *Env {
	e.t.Helper()
	e.t.Setenv("BMICRO_SERVICE_NAME", name)
	return e
}

// HealthPath overrides BMICRO_HEALTH_PATH.
func (e *Env) HealthPath(path string) *Env {
	e.t.Helper()
	e.t.Setenv("BMICRO_HEALTH_PATH", path)
	return e
}

// Development sets BMICRO_ENV to "development".
func (e *Env) Development() *Env {
	e.t.Helper()
	e.t.Setenv("BMICRO_ENV", "development")
	return e
}

// BodyLimit overrides BMICRO_BODY_LIMIT.
func (e *Env) BodyLimit(limit string) *Env {
	e.t.Helper()
	e.t.Setenv("BMICRO_BODY_LIMIT", limit)
	return e
}

// Timeout overrides BMICRO_TIMEOUT.
func (e *Env) Timeout(d string) *Env {
	e.t.Helper()
	e.t.Setenv("BMICRO_TIMEOUT", d)
	return e
}
