package otel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseHeaders(t *testing.T) {
	headers := ParseHeaders(" api-key = secret ,broken,=empty,tenant=lending")
	require.Equal(t, map[string]string{"api-key": "secret", "tenant": "lending"}, headers)
	require.Empty(t, ParseHeaders(""))
}

func TestInitWithoutExporters(t *testing.T) {
	_, err := Init(context.Background(), Config{})
	require.Error(t, err)

	shutdown, err := Init(context.Background(), Config{ServiceName: "lendingd", Network: "nftlend-local"})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}
