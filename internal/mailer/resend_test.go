package mailer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewResendMailerRequiresConfig(t *testing.T) {
	_, err := NewResendMailer("", "shop@example.com")
	assert.Error(t, err)

	_, err = NewResendMailer("key", "")
	assert.Error(t, err)
}

func TestResendMailerSend(t *testing.T) {
	var got sendRequest
	var auth string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/emails", r.URL.Path)
		auth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id":"1"}`))
	}))
	defer srv.Close()

	m, err := NewResendMailer("re_key", "shop@example.com")
	require.NoError(t, err)
	m.WithBaseURL(srv.URL)

	err = m.Send(context.Background(), Message{
		To:      []string{"a@example.com", "b@example.com"},
		Subject: "Нове замовлення 1! Загальна сума: 100 грн",
		Text:    "plain",
		HTML:    "<p>html</p>",
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer re_key", auth)
	assert.Equal(t, "shop@example.com", got.From)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, got.To)
	assert.Equal(t, "plain", got.Text)
	assert.Equal(t, "<p>html</p>", got.HTML)
}

func TestResendMailerSendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"message":"invalid from"}`))
	}))
	defer srv.Close()

	m, err := NewResendMailer("re_key", "shop@example.com")
	require.NoError(t, err)
	m.WithBaseURL(srv.URL)

	err = m.Send(context.Background(), Message{To: []string{"a@example.com"}, Subject: "s"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid from")
}

func TestResendMailerSkipsEmptyRecipients(t *testing.T) {
	m, err := NewResendMailer("re_key", "shop@example.com")
	require.NoError(t, err)
	m.WithBaseURL("http://127.0.0.1:0")

	assert.NoError(t, m.Send(context.Background(), Message{Subject: "s"}))
}

func TestLogMailer(t *testing.T) {
	assert.NoError(t, NewLogMailer().Send(context.Background(), Message{To: []string{"a@example.com"}, Subject: "s"}))
}
