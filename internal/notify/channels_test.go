package notify

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

func TestSplitRecipients(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want []string
	}{
		{in: "", want: nil},
		{in: "a@x.io", want: []string{"a@x.io"}},
		{in: " a@x.io , b@x.io ", want: []string{"a@x.io", "b@x.io"}},
		{in: "a@x.io,,  ,b@x.io,", want: []string{"a@x.io", "b@x.io"}},
	}
	for _, tt := range tests {
		require.Equal(t, tt.want, SplitRecipients(tt.in), "input %q", tt.in)
	}
}

func TestEmailChannelSend(t *testing.T) {
	t.Parallel()
	mail := &fakeMail{}
	ch := NewEmailChannel(MailConfig{From: " ops@x.io ", To: "a@x.io,b@x.io"}, "[ALERT] RocketMQ", mail)
	require.NoError(t, ch.Send(context.Background(), "body"))
	require.Equal(t, []mailCall{{from: "ops@x.io", to: []string{"a@x.io", "b@x.io"}, subject: "[ALERT] RocketMQ", body: "body"}}, mail.calls)

	custom := NewEmailChannel(MailConfig{To: "a@x.io", Subject: "MQ down"}, "[ALERT] RocketMQ", mail)
	require.Equal(t, "MQ down", custom.Subject)

	empty := NewEmailChannel(MailConfig{To: " , "}, "s", mail)
	require.ErrorIs(t, empty.Send(context.Background(), "x"), ErrNoRecipients)
}

func TestWebhookURLSigning(t *testing.T) {
	t.Parallel()
	at := time.UnixMilli(1700000000123)
	ch := &WebhookChannel{AccessToken: "tok", Secret: "SECabc", Clock: func() time.Time { return at }}
	raw, err := ch.URL()
	require.NoError(t, err)
	u, err := url.Parse(raw)
	require.NoError(t, err)
	require.Equal(t, "oapi.dingtalk.com", u.Host)
	require.Equal(t, "/robot/send", u.Path)
	q := u.Query()
	require.Equal(t, "tok", q.Get("access_token"))
	require.Equal(t, "1700000000123", q.Get("timestamp"))
	require.Equal(t, Sign("1700000000123", "SECabc"), q.Get("sign"))

	unsigned := &WebhookChannel{Endpoint: "http://hook.local/send?x=1", AccessToken: "tok"}
	raw, err = unsigned.URL()
	require.NoError(t, err)
	require.Equal(t, "http://hook.local/send?access_token=tok&x=1", raw)
}

func TestSignIsStable(t *testing.T) {
	t.Parallel()
	a := Sign("1", "s")
	require.Equal(t, a, Sign("1", "s"))
	require.NotEqual(t, a, Sign("2", "s"))
}

func TestWebhookErrcodeIsFailure(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"errcode":310000,"errmsg":"keywords not in content"}`))
	}))
	defer srv.Close()
	ch := NewWebhookChannel(DingTalkConfig{Endpoint: srv.URL, AccessToken: "t"}, srv.Client())
	err := ch.Send(context.Background(), "x")
	require.Error(t, err)
	require.Contains(t, err.Error(), "310000")
}

func TestWebhookHTTPStatusIsFailure(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()
	ch := NewWebhookChannel(DingTalkConfig{Endpoint: srv.URL}, srv.Client())
	require.ErrorContains(t, ch.Send(context.Background(), "x"), "502")
}

func TestWebhookLimiterHonorsContext(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()
	ch := NewWebhookChannel(DingTalkConfig{Endpoint: srv.URL}, srv.Client())
	ch.Limiter = rate.NewLimiter(rate.Every(time.Hour), 1)
	require.NoError(t, ch.Send(context.Background(), "first"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.Error(t, ch.Send(ctx, "second"))
}

type fakeTelegram struct {
	chatID   int64
	threadID int
	text     string
	err      error
}

func (f *fakeTelegram) SendText(_ context.Context, chatID int64, threadID int, text string) error {
	f.chatID, f.threadID, f.text = chatID, threadID, text
	return f.err
}

func TestTelegramChannel(t *testing.T) {
	t.Parallel()
	s := &fakeTelegram{}
	ch := &TelegramChannel{ChatID: -100123, ThreadID: 7, Sender: s}
	require.NoError(t, ch.Send(context.Background(), "hello"))
	require.Equal(t, int64(-100123), s.chatID)
	require.Equal(t, 7, s.threadID)
	require.Equal(t, "hello", s.text)

	require.Error(t, (&TelegramChannel{Sender: s}).Send(context.Background(), "x"))
	s.err = errors.New("Forbidden: bot was blocked")
	require.Error(t, ch.Send(context.Background(), "x"))
}

func TestBuildOrderAndValidation(t *testing.T) {
	t.Parallel()
	cfg := Config{
		Telegram: TelegramConfig{Enabled: true, ChatID: 1},
		DingTalk: DingTalkConfig{Enabled: true, AccessToken: "t"},
		Mail:     MailConfig{Enabled: true, From: "a@x.io", To: "b@x.io"},
	}
	d, err := Build(cfg, Deps{Mail: &fakeMail{}, Telegram: &fakeTelegram{}})
	require.NoError(t, err)
	require.Equal(t, []string{"email", "webhook", "telegram"}, d.Channels())

	_, err = Build(Config{Mail: MailConfig{Enabled: true, To: "b@x.io"}}, Deps{})
	require.Error(t, err)

	_, err = Build(Config{Mail: MailConfig{Enabled: true, To: ""}}, Deps{Mail: &fakeMail{}})
	require.ErrorIs(t, err, ErrNoRecipients)

	_, err = Build(Config{DingTalk: DingTalkConfig{Enabled: true}}, Deps{})
	require.Error(t, err)

	d, err = Build(Config{}, Deps{})
	require.NoError(t, err)
	require.Empty(t, d.Channels())
}

func TestKindString(t *testing.T) {
	t.Parallel()
	require.Equal(t, "EMAIL", KindEmail.String())
	require.Equal(t, "WEBHOOK", KindWebhook.String())
	require.Equal(t, "TELEGRAM", KindTelegram.String())
	require.Equal(t, "UNKNOWN", Kind(0).String())
}
