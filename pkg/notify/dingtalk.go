package notify

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// DingTalk posts text messages to a DingTalk robot webhook.
type DingTalk struct {
	client  *resty.Client
	webhook string
	secret  string
	now     func() time.Time
	log     logrus.FieldLogger
}

type textMessage struct {
	MsgType string `json:"msgtype"`
	Text    struct {
		Content string `json:"content"`
	} `json:"text"`
}

type robotResponse struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

// NewDingTalk returns nil when webhook is empty so callers can skip wiring.
func NewDingTalk(webhook, secret string, log logrus.FieldLogger) *DingTalk {
	if webhook == "" {
		return nil
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	client := resty.New().
		SetTimeout(5*time.Second).
		SetHeader("Content-Type", "application/json")
	return &DingTalk{client: client, webhook: webhook, secret: secret, now: time.Now, log: log}
}

// Notify sends text. A secret turns on signed requests.
func (d *DingTalk) Notify(ctx context.Context, text string) error {
	msg := textMessage{MsgType: "text"}
	msg.Text.Content = text

	req := d.client.R().SetContext(ctx).SetBody(msg)
	if d.secret != "" {
		ts := d.now().UnixMilli()
		req.SetQueryParam("timestamp", strconv.FormatInt(ts, 10))
		req.SetQueryParam("sign", Sign(ts, d.secret))
	}

	var out robotResponse
	resp, err := req.SetResult(&out).ForceContentType("application/json").Post(d.webhook)
	if err != nil {
		return errors.Wrap(err, "dingtalk request")
	}
	if resp.StatusCode() != http.StatusOK {
		return errors.Errorf("dingtalk returned status %d: %s", resp.StatusCode(), resp.String())
	}
	if out.ErrCode != 0 {
		return errors.Errorf("dingtalk errcode %d: %s", out.ErrCode, out.ErrMsg)
	}
	d.log.WithField("length", len(text)).Debug("dingtalk message sent")
	return nil
}

// Sign is base64(HMAC-SHA256(secret, "<millis>\n<secret>")).
func Sign(timestampMillis int64, secret string) string {
	payload := strconv.FormatInt(timestampMillis, 10) + "\n" + secret
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(payload))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
