package telemetry

import (
	"context"
	"testing"

	"github.com/dmitrijs2005/qrpass/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_NoEndpointIsNoop(t *testing.T) {
	p, err := New(context.Background(), Options{}, logging.Nop())
	require.NoError(t, err)
	assert.False(t, p.Enabled())

	_, span := p.Tracer().Start(context.Background(), "op")
	assert.False(t, span.SpanContext().IsValid())
	span.End()

	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestNew_WithEndpoint(t *testing.T) {
	p, err := New(context.Background(), Options{Endpoint: "127.0.0.1:4318", Insecure: true}, logging.Nop())
	require.NoError(t, err)
	require.True(t, p.Enabled())

	_, span := p.Tracer().Start(context.Background(), "op")
	assert.True(t, span.SpanContext().IsValid())
	span.End()

	// resets the global provider for other tests
	t.Cleanup(func() {
		_, _ = New(context.Background(), Options{}, logging.Nop())
	})
}

func TestNilProvider(t *testing.T) {
	var p *Provider
	assert.NotNil(t, p.Tracer())
	assert.NoError(t, p.Shutdown(context.Background()))
}
