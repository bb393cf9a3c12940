package statuscheck

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestCheckRedis(t *testing.T) {
	c := New(Options{})
	assert.Equal(t, Status{OK: false, Message: "Not configured"}, c.checkRedis(context.Background()))

	c = New(Options{Redis: pinger{}})
	assert.True(t, c.checkRedis(context.Background()).OK)

	c = New(Options{Redis: pinger{err: errors.New("dial tcp: refused")}})
	st := c.checkRedis(context.Background())
	assert.False(t, st.OK)
	assert.Equal(t, "dial tcp: refused", st.Message)
}

func TestCheckProviders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/models":
			if r.Header.Get("Authorization") == "Bearer good" || r.Header.Get("x-api-key") == "good" {
				_, _ = w.Write([]byte(`{"data":[]}`))
				return
			}
			w.WriteHeader(http.StatusUnauthorized)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := New(Options{
		HTTPClient:       srv.Client(),
		OpenAIKey:        "good",
		OpenAIBaseURL:    srv.URL + "/v1/",
		AnthropicKey:     "bad",
		AnthropicBaseURL: srv.URL,
	})
	assert.Equal(t, Status{OK: true, Message: "Available"}, c.checkOpenAI(context.Background()))
	assert.Equal(t, Status{OK: false, Message: "HTTP 401"}, c.checkAnthropic(context.Background()))

	c = New(Options{})
	assert.Equal(t, "API key missing", c.checkOpenAI(context.Background()).Message)
	assert.Equal(t, "API key missing", c.checkAnthropic(context.Background()).Message)
}

func TestCheckMuPDF(t *testing.T) {
	assert.False(t, New(Options{}).checkMuPDF().OK)
	assert.True(t, New(Options{MuPDFAvailable: func() bool { return true }}).checkMuPDF().OK)
}

func TestAIReady(t *testing.T) {
	s := Summary{MuPDF: Status{OK: true}, Anthropic: Status{OK: true}}
	assert.True(t, s.AIReady())
	s.MuPDF.OK = false
	assert.False(t, s.AIReady())
}

func TestTrimError(t *testing.T) {
	long := make([]byte, 300)
	for i := range long {
		long[i] = 'e'
	}
	assert.Len(t, trimError(errors.New(string(long))), 120)
	assert.Equal(t, "timeout", trimError(context.DeadlineExceeded))
	assert.Empty(t, trimError(nil))
}
