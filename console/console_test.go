package console

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/TorMartin-ops/nucleus/errno"
	"github.com/TorMartin-ops/nucleus/pipe"
	"github.com/TorMartin-ops/nucleus/tty"
)

type bufWriter struct{ data []byte }

func (w *bufWriter) Write(p []byte) (int, error) {
	w.data = append(w.data, p...)
	return len(p), nil
}

func TestConsoleVnodeWriteGoesToHost(t *testing.T) {
	w := &bufWriter{}
	v := New(tty.New(nil), w)
	n, rc := v.Write([]byte("hi"), 0)
	require.Equal(t, errno.Ok, rc)
	require.Equal(t, 2, n)
	require.Equal(t, "hi", string(w.data))
}

func TestConsoleVnodeLseekFails(t *testing.T) {
	v := New(tty.New(nil), &bufWriter{})
	_, rc := v.Lseek(0, 0)
	require.Equal(t, errno.ESPIPE, rc)
}

func TestPipeVnodeEndsAreDirectional(t *testing.T) {
	p := pipe.New()
	r := NewPipeReadEnd(p)
	w := NewPipeWriteEnd(p)

	_, rc := r.Write([]byte("x"), 0)
	require.Equal(t, errno.EINVAL, rc)
	_, rc = w.Read(make([]byte, 4), 0)
	require.Equal(t, errno.EINVAL, rc)

	n, rc := w.Write([]byte("yo"), 0)
	require.Equal(t, errno.Ok, rc)
	require.Equal(t, 2, n)

	buf := make([]byte, 4)
	n, rc = r.Read(buf, 0)
	require.Equal(t, errno.Ok, rc)
	require.Equal(t, "yo", string(buf[:n]))
}
