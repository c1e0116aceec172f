package pipe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/TorMartin-ops/nucleus/errno"
	"github.com/TorMartin-ops/nucleus/proc"
	"github.com/TorMartin-ops/nucleus/sched"
)

func TestWriteThenReadRoundTrip(t *testing.T) {
	p := New()
	n, rc := p.Write([]byte("hello"), nil, nil)
	require.Equal(t, errno.Ok, rc)
	require.Equal(t, 5, n)

	buf := make([]byte, 5)
	n, rc = p.Read(buf, nil, nil)
	require.Equal(t, errno.Ok, rc)
	require.Equal(t, "hello", string(buf[:n]))
}

func TestReadSeesEOFAfterWriterCloses(t *testing.T) {
	p := New()
	p.CloseWriter()

	buf := make([]byte, 5)
	n, rc := p.Read(buf, nil, nil)
	require.Equal(t, errno.Ok, rc)
	require.Equal(t, 0, n)
}

func TestWriteFailsAfterReaderCloses(t *testing.T) {
	p := New()
	p.CloseReader()

	_, rc := p.Write([]byte("x"), nil, nil)
	require.Equal(t, errno.EPIPE, rc)
}

func TestBlockedReaderWakesOnWrite(t *testing.T) {
	p := New()
	done := make(chan struct{})
	var n int
	go func() {
		buf := make([]byte, 4)
		n, _ = p.Read(buf, nil, nil)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	p.Write([]byte("hi"), nil, nil)
	<-done
	require.Equal(t, 2, n)
}

// TestBlockedReaderRaisesWriterPriority is scenario 4 (spec §8) carried
// through a real pipe instead of AddBlockedTask called directly: a
// low-priority writer is the pipe's last toucher, a high-priority
// reader blocks on the empty buffer, and the writer must inherit the
// reader's priority for as long as the reader is waiting on it.
func TestBlockedReaderRaisesWriterPriority(t *testing.T) {
	p := New()
	s := sched.New(nil)
	writer := s.AddTask(proc.New(2, 1), 3)
	reader := s.AddTask(proc.New(3, 1), 0)

	// Touch the pipe as the writer without putting any bytes in the
	// buffer, so the reader below finds it empty and blocks.
	p.Write(nil, s, writer)

	done := make(chan struct{})
	var n int
	go func() {
		buf := make([]byte, 2)
		n, _ = p.Read(buf, s, reader)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	require.Equal(t, 0, writer.EffectivePriority)

	p.Write([]byte("hi"), s, writer)
	<-done
	require.Equal(t, 2, n)
	require.Equal(t, 3, writer.EffectivePriority)
}
