package tty

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/TorMartin-ops/nucleus/errno"
)

type recordEcho struct {
	mu  sync.Mutex
	buf []byte
}

func (r *recordEcho) Write(p []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf = append(r.buf, p...)
}

func TestFeedAndReadLine(t *testing.T) {
	echo := &recordEcho{}
	ld := New(echo)

	for _, c := range []byte("ls") {
		ld.Feed(KeyEvent{Kind: KeyPrintable, Ch: c})
	}
	ld.Feed(KeyEvent{Kind: KeyEnter})

	buf := make([]byte, 16)
	n, rc := ld.ReadLineBlocking(buf)
	require.Equal(t, errno.Ok, rc)
	require.Equal(t, 2, n)
	require.Equal(t, "ls\x00", string(buf[:n+1]))
}

func TestBackspaceRemovesLastByte(t *testing.T) {
	ld := New(nil)
	ld.Feed(KeyEvent{Kind: KeyPrintable, Ch: 'a'})
	ld.Feed(KeyEvent{Kind: KeyPrintable, Ch: 'b'})
	ld.Feed(KeyEvent{Kind: KeyBackspace})
	ld.Feed(KeyEvent{Kind: KeyEnter})

	buf := make([]byte, 16)
	n, rc := ld.ReadLineBlocking(buf)
	require.Equal(t, errno.Ok, rc)
	require.Equal(t, "a", string(buf[:n]))
}

func TestReadLineBlocksUntilEnter(t *testing.T) {
	ld := New(nil)
	done := make(chan struct{})
	var n int
	var rc errno.Errno
	go func() {
		buf := make([]byte, 16)
		n, rc = ld.ReadLineBlocking(buf)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	select {
	case <-done:
		t.Fatal("ReadLineBlocking returned before Enter was fed")
	default:
	}

	ld.Feed(KeyEvent{Kind: KeyPrintable, Ch: 'x'})
	ld.Feed(KeyEvent{Kind: KeyEnter})
	<-done
	require.Equal(t, errno.Ok, rc)
	require.Equal(t, 1, n)
}

func TestSecondWaiterGetsEBUSY(t *testing.T) {
	ld := New(nil)
	started := make(chan struct{})
	go func() {
		buf := make([]byte, 16)
		close(started)
		ld.ReadLineBlocking(buf)
	}()
	<-started
	time.Sleep(10 * time.Millisecond)

	_, rc := ld.ReadLineBlocking(make([]byte, 16))
	require.Equal(t, errno.EBUSY, rc)

	ld.Feed(KeyEvent{Kind: KeyEnter})
}
