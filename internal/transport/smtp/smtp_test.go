package smtp

import (
	"bytes"
	"context"
	"net"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewValidates(t *testing.T) {
	t.Parallel()
	_, err := New(Config{})
	require.Error(t, err)

	_, err = New(Config{Host: "smtp.example.com", TLS: "quantum"})
	require.Error(t, err)

	for _, mode := range []string{"", "opportunistic", "mandatory", "ssl", "none"} {
		tr, err := New(Config{Host: "smtp.example.com", Port: 587, Username: "u", Password: "p", TLS: mode})
		require.NoError(t, err, mode)
		require.NotNil(t, tr)
	}
}

func TestMessage(t *testing.T) {
	t.Parallel()
	m, err := Message("ops@example.com", []string{"a@example.com", "b@example.com"}, "[ALERT] RocketMQ", "Consumer group: g")
	require.NoError(t, err)
	var buf bytes.Buffer
	_, err = m.WriteTo(&buf)
	require.NoError(t, err)
	out := buf.String()
	require.Contains(t, out, "Subject: [ALERT] RocketMQ")
	require.Contains(t, out, "a@example.com")
	require.Contains(t, out, "b@example.com")
	require.True(t, strings.Contains(out, "Consumer group: g"))

	_, err = Message("not an address", []string{"a@example.com"}, "s", "b")
	require.Error(t, err)
}

// relay is a minimal SMTP server that accepts every command and records the
// conversation.
type relay struct {
	ln         net.Listener
	extensions []string

	mu       sync.Mutex
	commands []string
	data     []string
}

func newRelay(t *testing.T, extensions ...string) *relay {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	r := &relay{ln: ln, extensions: extensions}
	t.Cleanup(func() { _ = ln.Close() })
	go r.serve()
	return r
}

func (r *relay) port() int { return r.ln.Addr().(*net.TCPAddr).Port }

func (r *relay) serve() {
	for {
		conn, err := r.ln.Accept()
		if err != nil {
			return
		}
		go r.session(conn)
	}
}

func (r *relay) session(conn net.Conn) {
	defer conn.Close()
	tp := textproto.NewConn(conn)
	_ = tp.PrintfLine("220 relay.test ESMTP")
	for {
		line, err := tp.ReadLine()
		if err != nil {
			return
		}
		r.mu.Lock()
		r.commands = append(r.commands, line)
		r.mu.Unlock()

		verb := strings.ToUpper(strings.SplitN(line, " ", 2)[0])
		switch verb {
		case "EHLO":
			lines := append([]string{"relay.test"}, r.extensions...)
			for i, l := range lines {
				sep := "-"
				if i == len(lines)-1 {
					sep = " "
				}
				_ = tp.PrintfLine("250%s%s", sep, l)
			}
		case "AUTH":
			_ = tp.PrintfLine("235 2.7.0 accepted")
		case "DATA":
			_ = tp.PrintfLine("354 go ahead")
			body, err := tp.ReadDotLines()
			if err != nil {
				return
			}
			r.mu.Lock()
			r.data = append(r.data, strings.Join(body, "\n"))
			r.mu.Unlock()
			_ = tp.PrintfLine("250 2.0.0 queued")
		case "QUIT":
			_ = tp.PrintfLine("221 bye")
			return
		default:
			_ = tp.PrintfLine("250 ok")
		}
	}
}

func (r *relay) seen(prefix string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.commands {
		if strings.HasPrefix(strings.ToUpper(c), prefix) {
			return true
		}
	}
	return false
}

func TestSendThroughRelayWithAuth(t *testing.T) {
	t.Parallel()
	r := newRelay(t, "AUTH PLAIN LOGIN", "8BITMIME")
	tr, err := New(Config{Host: "127.0.0.1", Port: r.port(), Username: "mq", Password: "secret", TLS: "none", Timeout: 5 * time.Second})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = tr.Send(ctx, "ops@example.com", []string{"a@example.com", "b@example.com"}, "[ALERT] RocketMQ", "Consumer group: g")
	require.NoError(t, err)

	require.True(t, r.seen("AUTH PLAIN"))
	require.True(t, r.seen("MAIL FROM:<OPS@EXAMPLE.COM>"))
	require.True(t, r.seen("RCPT TO:<A@EXAMPLE.COM>"))
	require.True(t, r.seen("RCPT TO:<B@EXAMPLE.COM>"))
	r.mu.Lock()
	defer r.mu.Unlock()
	require.Len(t, r.data, 1)
	require.Contains(t, r.data[0], "Subject: [ALERT] RocketMQ")
	require.Contains(t, r.data[0], "Consumer group: g")
}

func TestSendOpportunisticWithoutStartTLS(t *testing.T) {
	t.Parallel()
	r := newRelay(t)
	tr, err := New(Config{Host: "127.0.0.1", Port: r.port(), Timeout: 5 * time.Second})
	require.NoError(t, err)
	require.NoError(t, tr.Send(context.Background(), "ops@example.com", []string{"a@example.com"}, "s", "b"))
	require.False(t, r.seen("STARTTLS"))
	require.False(t, r.seen("AUTH"))
}

func TestSendMandatoryTLSRefusesPlainRelay(t *testing.T) {
	t.Parallel()
	r := newRelay(t)
	tr, err := New(Config{Host: "127.0.0.1", Port: r.port(), TLS: "mandatory", Timeout: 5 * time.Second})
	require.NoError(t, err)
	err = tr.Send(context.Background(), "ops@example.com", []string{"a@example.com"}, "s", "b")
	require.ErrorContains(t, err, "STARTTLS")
	require.False(t, r.seen("MAIL FROM"))
}

func TestSendAuthNeedsServerSupport(t *testing.T) {
	t.Parallel()
	r := newRelay(t)
	tr, err := New(Config{Host: "127.0.0.1", Port: r.port(), Username: "mq", Password: "secret", TLS: "none", Timeout: 5 * time.Second})
	require.NoError(t, err)
	err = tr.Send(context.Background(), "ops@example.com", []string{"a@example.com"}, "s", "b")
	require.ErrorContains(t, err, "AUTH")
	require.False(t, r.seen("MAIL FROM"))
}
