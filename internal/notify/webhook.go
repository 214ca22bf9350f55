package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	DefaultDingTalkEndpoint = "https://oapi.dingtalk.com/robot/send"
	defaultWebhookRate      = 20
	maxWebhookResponse      = 64 << 10
)

// HTTPPoster is satisfied by *http.Client.
type HTTPPoster interface {
	Do(req *http.Request) (*http.Response, error)
}

// WebhookChannel posts the alert to a robot webhook.
type WebhookChannel struct {
	Endpoint    string
	AccessToken string
	// Secret enables request signing when set.
	Secret  string
	Client  HTTPPoster
	Limiter *rate.Limiter
	Clock   func() time.Time
}

func NewWebhookChannel(cfg DingTalkConfig, client HTTPPoster) *WebhookChannel {
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	perMin := cfg.RatePerMin
	if perMin <= 0 {
		perMin = defaultWebhookRate
	}
	// Burst equals the per-minute budget.
	lim := rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMin)), perMin)
	return &WebhookChannel{
		Endpoint:    strings.TrimSpace(cfg.Endpoint),
		AccessToken: strings.TrimSpace(cfg.AccessToken),
		Secret:      strings.TrimSpace(cfg.Secret),
		Client:      client,
		Limiter:     lim,
		Clock:       time.Now,
	}
}

func (c *WebhookChannel) Kind() Kind   { return KindWebhook }
func (c *WebhookChannel) Name() string { return "webhook" }

type webhookPayload struct {
	MsgType string      `json:"msgtype"`
	Text    webhookText `json:"text"`
}

type webhookText struct {
	Content string `json:"content"`
}

type webhookReply struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

func (c *WebhookChannel) Send(ctx context.Context, text string) error {
	if c.Client == nil {
		return errors.New("webhook client not configured")
	}
	if c.Limiter != nil {
		if err := c.Limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit: %w", err)
		}
	}
	target, err := c.URL()
	if err != nil {
		return err
	}
	body, err := json.Marshal(webhookPayload{MsgType: "text", Text: webhookText{Content: text}})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxWebhookResponse))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil
	}
	var reply webhookReply
	if err := json.Unmarshal(raw, &reply); err != nil {
		// Plain-text replies from generic endpoints are accepted.
		return nil
	}
	if reply.ErrCode != 0 {
		return fmt.Errorf("webhook errcode %d: %s", reply.ErrCode, reply.ErrMsg)
	}
	return nil
}

// URL builds the request URL, embedding the access token and, when a secret
// is configured, the timestamp and signature.
func (c *WebhookChannel) URL() (string, error) {
	ep := c.Endpoint
	if ep == "" {
		ep = DefaultDingTalkEndpoint
	}
	u, err := url.Parse(ep)
	if err != nil {
		return "", fmt.Errorf("webhook endpoint: %w", err)
	}
	q := u.Query()
	if c.AccessToken != "" {
		q.Set("access_token", c.AccessToken)
	}
	if c.Secret != "" {
		now := time.Now
		if c.Clock != nil {
			now = c.Clock
		}
		ts := strconv.FormatInt(now().UnixMilli(), 10)
		q.Set("timestamp", ts)
		q.Set("sign", Sign(ts, c.Secret))
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Sign returns base64(HMAC-SHA256(secret, timestamp+"\n"+secret)).
func Sign(timestamp, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp + "\n" + secret))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
