package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/dexengine/internal/domain"
	"github.com/alanyoungcy/dexengine/internal/num"
)

type fakeSender struct {
	name   string
	err    error
	titles []string
}

func (f *fakeSender) Send(_ context.Context, title, _ string) error {
	f.titles = append(f.titles, title)
	return f.err
}

func (f *fakeSender) Name() string { return f.name }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifyEventsFiltersByType(t *testing.T) {
	s := &fakeSender{name: "fake"}
	n := NewNotifier([]Sender{s}, []string{"order_filled", " order_expired "}, discardLogger())

	err := n.NotifyEvents(context.Background(), []domain.Event{
		{Seq: 1, Type: domain.EventOrderCreated},
		{Seq: 2, Type: domain.EventOrderFilled, OrderID: 4},
		{Seq: 3, Type: domain.EventOrderExpired, OrderID: 5},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"order filled", "order expired"}, s.titles)
}

func TestNotifyEventsContinuesAfterFailure(t *testing.T) {
	bad := &fakeSender{name: "bad", err: errors.New("offline")}
	good := &fakeSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, discardLogger())

	err := n.NotifyEvents(context.Background(), []domain.Event{
		{Seq: 1, Type: domain.EventTokenListed},
		{Seq: 2, Type: domain.EventOrderCreated},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad: offline")
	assert.Len(t, good.titles, 2)
}

func TestNotifierWithoutSenders(t *testing.T) {
	n := NewNotifier(nil, nil, discardLogger())
	assert.False(t, n.Enabled())
	assert.NoError(t, n.NotifyEvents(context.Background(), []domain.Event{{Type: domain.EventOrderFilled}}))

	var nilNotifier *Notifier
	assert.NoError(t, nilNotifier.NotifyAll(context.Background(), "t", "m"))
}

func TestFormat(t *testing.T) {
	token := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	title, msg := Format(domain.Event{
		Seq:     9,
		Type:    domain.EventOrderTaken,
		Token:   token,
		OrderID: 3,
		Amount:  num.NewUint(250),
		Order:   &domain.Order{Side: domain.SideSell},
	})
	assert.Equal(t, "order taken", title)
	assert.Equal(t, "order: #3\nside: sell\ntoken: "+token.Hex()+"\namount: 250\nseq: 9", msg)
}

func TestTelegramSender(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewTelegramSender("TOKEN", "42")
	s.baseURL = srv.URL
	require.NoError(t, s.Send(context.Background(), "order filled", "order: #1"))
	assert.Equal(t, "42", got["chat_id"])
	assert.Equal(t, "*order filled*\norder: #1", got["text"])
}

func TestDiscordSenderStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := NewDiscordSender(srv.URL).Send(context.Background(), "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "discord: unexpected status 429")
}
