package console_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/joeycumines/go-microkernel/console"
)

func TestSinkWriteAllFlushes(t *testing.T) {
	var buf bytes.Buffer
	sink := console.NewSink(&buf, 5*time.Millisecond)
	defer sink.Close()

	require.NoError(t, sink.WriteAll([]byte("hello ")))
	require.NoError(t, sink.WriteAll([]byte("world")))

	require.Equal(t, "hello world", buf.String())
}
