package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"feedalert/internal/model"
)

// PushoverEndpoint is the Pushover message API.
const PushoverEndpoint = "https://api.pushover.net/1/messages.json"

var _ Transport = (*Pushover)(nil)

// Pushover sends notifications through the Pushover API.
type Pushover struct {
	token      string
	user       string
	endpoint   string
	httpClient *http.Client
}

// NewPushover creates a Pushover transport for the given application token
// and user key.
func NewPushover(token, user string) *Pushover {
	return &Pushover{
		token:      token,
		user:       user,
		endpoint:   PushoverEndpoint,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Send posts n to Pushover. Emergency priority carries retry and expire.
func (p *Pushover) Send(ctx context.Context, n model.Notification) error {
	pol := PolicyFor(n.Priority)

	form := url.Values{}
	form.Set("token", p.token)
	form.Set("user", p.user)
	form.Set("title", n.Title)
	form.Set("message", n.Body)
	form.Set("priority", strconv.Itoa(pol.Level))
	if n.Sound != "" {
		form.Set("sound", n.Sound)
	}
	if n.Link != "" {
		form.Set("url", n.Link)
	}
	if pol.Level == 2 {
		form.Set("retry", strconv.Itoa(int(n.Retry.Seconds())))
		form.Set("expire", strconv.Itoa(int(n.Expire.Seconds())))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	var result struct {
		Status  int      `json:"status"`
		Request string   `json:"request"`
		Errors  []string `json:"errors"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		if resp.StatusCode == http.StatusOK {
			return fmt.Errorf("pushover: decode response: %w", err)
		}
		return fmt.Errorf("pushover: status %d", resp.StatusCode)
	}

	if resp.StatusCode != http.StatusOK || result.Status != 1 {
		if len(result.Errors) > 0 {
			return fmt.Errorf("pushover: %s", strings.Join(result.Errors, "; "))
		}
		return fmt.Errorf("pushover: status %d", resp.StatusCode)
	}
	return nil
}
