package obs_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-proposal/internal/obs"
)

func TestInitTracerDisabled(t *testing.T) {
	for _, exporter := range []string{"none", "OFF"} {
		shutdown, err := obs.InitTracer(context.Background(), obs.TracingConfig{Exporter: exporter})
		require.NoError(t, err)
		require.NoError(t, shutdown(context.Background()))
	}
}

func TestInitTracerRejectsUnknownExporter(t *testing.T) {
	_, err := obs.InitTracer(context.Background(), obs.TracingConfig{Exporter: "zipkin"})
	require.ErrorContains(t, err, "unsupported tracing exporter")
}
