package telemetry

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitTracer_WritesSpans(t *testing.T) {
	var buf bytes.Buffer
	provider, shutdown, err := InitTracer(&buf, false)
	require.NoError(t, err)

	_, span := provider.Tracer("test").Start(context.Background(), "pipeline release")
	span.End()
	require.NoError(t, shutdown(context.Background()))

	require.Contains(t, buf.String(), `"Name": "pipeline release"`)
	require.Contains(t, buf.String(), ServiceName)
}
