package webhook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/techmehedi/Autopay-Agent/internal/crypto"
	"github.com/techmehedi/Autopay-Agent/internal/ledger"
)

const (
	HeaderSignature = "X-Autopay-Signature"
	// HeaderTimestamp carries Unix milliseconds.
	HeaderTimestamp = "X-Autopay-Timestamp"
	HeaderEventID   = "X-Autopay-Event-Id"
)

// HTTPPoster posts events as JSON. The signature is
// hex(HMAC-SHA256(secret, timestamp + "." + body)).
type HTTPPoster struct {
	url    string
	secret []byte
	client *http.Client
	now    func() time.Time
}

func NewHTTPPoster(url, secret string, client *http.Client) *HTTPPoster {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPPoster{url: url, secret: []byte(secret), client: client, now: time.Now}
}

func (p *HTTPPoster) Post(ctx context.Context, rec ledger.OutboxRecord) error {
	ts := p.now().UnixMilli()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(rec.PayloadJSON))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(HeaderEventID, rec.EventID)
	req.Header.Set(HeaderTimestamp, strconv.FormatInt(ts, 10))
	req.Header.Set(HeaderSignature, crypto.SignPayload(p.secret, ts, rec.PayloadJSON))

	res, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 1024))
		return fmt.Errorf("webhook status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

// Verify checks the signature headers of a received event against body.
func Verify(secret string, header http.Header, body []byte) error {
	ts, err := strconv.ParseInt(header.Get(HeaderTimestamp), 10, 64)
	if err != nil {
		return fmt.Errorf("bad %s: %w", HeaderTimestamp, err)
	}
	return crypto.VerifyPayload([]byte(secret), ts, body, header.Get(HeaderSignature))
}
