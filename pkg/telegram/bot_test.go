package telegram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendMessage(t *testing.T) {
	var gotPath, gotChat, gotText string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotPath = r.URL.Path
		gotChat = r.PostForm.Get("chat_id")
		gotText = r.PostForm.Get("text")
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	bot := NewBot("token").WithBaseURL(srv.URL + "/bottoken/")
	require.NoError(t, bot.SendMessage(context.Background(), "-100", "Reservation #1 expired"))

	assert.Equal(t, "/bottoken/sendMessage", gotPath)
	assert.Equal(t, "-100", gotChat)
	assert.Equal(t, "Reservation #1 expired", gotText)
}

func TestSendMessageAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := NewBot("token").WithBaseURL(srv.URL).SendMessage(context.Background(), "-100", "hi")
	assert.Error(t, err)
}
