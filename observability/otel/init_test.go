package otel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInitRequiresServiceName(t *testing.T) {
	_, err := Init(context.Background(), Config{Traces: true})
	require.Error(t, err)
}

func TestInitDisabledIsNoop(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{ServiceName: "refundd"})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	require.NoError(t, shutdown(context.Background()))
}

func TestInitTracesInstallsProvider(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{
		ServiceName: "refundd",
		Environment: "test",
		Endpoint:    "127.0.0.1:4318",
		Insecure:    true,
		Traces:      true,
	})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestParseHeaders(t *testing.T) {
	headers := ParseHeaders("authorization=Bearer abc, x-tenant = refund ,broken,=empty")
	require.Equal(t, map[string]string{
		"authorization": "Bearer abc",
		"x-tenant":      "refund",
	}, headers)
	require.Empty(t, ParseHeaders(""))
}
