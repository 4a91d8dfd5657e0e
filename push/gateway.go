package push

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	ProductionHost = "https://api.push.apple.com"
	SandboxHost    = "https://api.sandbox.push.apple.com"

	DefaultTimeout = 10 * time.Second
)

// Gateway sends notifications to APNs over HTTP/2.
type Gateway struct {
	client  *http.Client
	host    string
	topic   string
	timeout time.Duration
	log     logrus.FieldLogger
}

// GatewayConfig configures a Gateway. Zero values fall back to the sandbox
// host and DefaultTimeout.
type GatewayConfig struct {
	Host    string
	Topic   string // bundle id
	Timeout time.Duration
	Client  *http.Client
	Logger  logrus.FieldLogger
}

// NewGateway returns an APNs client.
func NewGateway(conf GatewayConfig) *Gateway {
	g := &Gateway{
		client:  conf.Client,
		host:    conf.Host,
		topic:   conf.Topic,
		timeout: conf.Timeout,
		log:     conf.Logger,
	}
	if g.client == nil {
		g.client = &http.Client{}
	}
	if g.host == "" {
		g.host = SandboxHost
	}
	if g.timeout <= 0 {
		g.timeout = DefaultTimeout
	}
	if g.log == nil {
		g.log = logrus.StandardLogger()
	}
	return g
}

// Send posts one notification. The call is bounded by the gateway timeout
// independently of every other send in the batch.
func (g *Gateway) Send(ctx context.Context, authToken string, deviceToken string, n Notification) Result {
	result := Result{Token: deviceToken}

	body, err := json.Marshal(buildPayload(n))
	if err != nil {
		g.log.Errorf("error marshaling push payload: %v", err)
		return result
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	endpoint := g.host + "/3/device/" + url.PathEscape(deviceToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		g.log.Errorf("error creating push request: %v", err)
		return result
	}
	req.Header.Set("authorization", "bearer "+authToken)
	req.Header.Set("apns-topic", g.topic)
	req.Header.Set("apns-push-type", "alert")
	req.Header.Set("apns-priority", "10")
	req.Header.Set("content-type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		g.log.Warnf("push to %s failed: %v", redact(deviceToken), err)
		return result
	}
	defer resp.Body.Close()

	result.Status = resp.StatusCode
	result.Success = resp.StatusCode == http.StatusOK
	if !result.Success {
		reason, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<10))
		g.log.Warnf("push to %s rejected with %d: %s", redact(deviceToken), resp.StatusCode, bytes.TrimSpace(reason))
	} else {
		io.Copy(io.Discard, resp.Body)
	}
	return result
}

// buildPayload embeds the alert under "aps" and merges data at the top
// level. A data key named "aps" cannot override the alert.
func buildPayload(n Notification) map[string]any {
	payload := make(map[string]any, len(n.Data)+1)
	for k, v := range n.Data {
		payload[k] = v
	}
	payload["aps"] = map[string]any{
		"alert": map[string]string{
			"title": n.Title,
			"body":  n.Body,
		},
		"badge": 1,
		"sound": "default",
	}
	return payload
}

func redact(token string) string {
	if len(token) <= 8 {
		return token
	}
	return token[:8] + "…"
}
