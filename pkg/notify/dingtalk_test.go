package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quiet() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestNewDingTalkDisabled(t *testing.T) {
	assert.Nil(t, NewDingTalk("", "secret", quiet()))
}

func TestSign(t *testing.T) {
	// Same inputs give the same signature; a different secret does not.
	a := Sign(1700000000000, "SECabc")
	assert.Equal(t, a, Sign(1700000000000, "SECabc"))
	assert.NotEqual(t, a, Sign(1700000000000, "SECxyz"))
	assert.NotEqual(t, a, Sign(1700000000001, "SECabc"))
}

func TestNotifySigned(t *testing.T) {
	var got textMessage
	var query map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.Query()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"errcode":0,"errmsg":"ok"}`))
	}))
	defer srv.Close()

	d := NewDingTalk(srv.URL+"/robot/send?access_token=t", "SECabc", quiet())
	d.now = func() time.Time { return time.UnixMilli(1700000000000) }

	require.NoError(t, d.Notify(context.Background(), "monitoring started"))
	assert.Equal(t, "text", got.MsgType)
	assert.Equal(t, "monitoring started", got.Text.Content)
	assert.Equal(t, []string{"t"}, query["access_token"])
	assert.Equal(t, []string{"1700000000000"}, query["timestamp"])
	assert.Equal(t, []string{Sign(1700000000000, "SECabc")}, query["sign"])
}

func TestNotifyErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/fail" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"errcode":310000,"errmsg":"sign not match"}`))
	}))
	defer srv.Close()

	err := NewDingTalk(srv.URL+"/send", "", quiet()).Notify(context.Background(), "x")
	assert.ErrorContains(t, err, "310000")

	err = NewDingTalk(srv.URL+"/fail", "", quiet()).Notify(context.Background(), "x")
	assert.ErrorContains(t, err, "502")
}
