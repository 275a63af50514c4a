package netcore

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// echoHandler answers every newline-terminated frame with the same bytes
// plus a newline.
func echoHandler(conn *Conn) {
	for {
		line, _, ok := conn.Scan('\n')
		if !ok {
			return
		}
		reply := make([]byte, len(line)+1)
		copy(reply, line)
		reply[len(line)] = '\n'
		_ = conn.Send([][]byte{reply})
	}
}

func TestIntegrationEchoOverLoopback(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TCPPort = 0 // ":0" binds an OS-assigned ephemeral port
	cfg.UDPPort = 0
	cfg.WorkerThreads = 2

	ctx, err := Init(cfg, HandlerFunc(echoHandler), nil)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer ctx.Shutdown()

	for i := 0; i < cfg.WorkerThreads; i++ {
		go ctx.StartWorker()
	}

	addr := ctx.tcpListener.Addr().(*net.TCPAddr)
	var conn net.Conn
	require.Eventually(t, func() bool {
		c, dialErr := net.DialTimeout("tcp", addr.String(), 200*time.Millisecond)
		if dialErr != nil {
			return false
		}
		conn = c
		return true
	}, 2*time.Second, 20*time.Millisecond)
	require.NotNil(t, conn)
	defer conn.Close()

	_, err = conn.Write([]byte("ping\n"))
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	reply, err := bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)
	require.Equal(t, "ping\n", reply)
}

func TestIntegrationShutdownIsIdempotent(t *testing.T) {
	cfg := DefaultConfig()
	cfg.TCPPort = 0
	cfg.UDPPort = 0
	cfg.WorkerThreads = 1

	ctx, err := Init(cfg, HandlerFunc(echoHandler), nil)
	require.NoError(t, err)

	go ctx.StartWorker()
	time.Sleep(20 * time.Millisecond)

	ctx.Shutdown()
	ctx.Shutdown() // must not panic or double-close
}
