package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"options-engine/internal/config"
	"options-engine/internal/models"
)

type recordingChannel struct {
	name string
	err  error
	got  []Notification
}

func (r *recordingChannel) Name() string    { return r.name }
func (r *recordingChannel) IsEnabled() bool { return true }
func (r *recordingChannel) Send(_ context.Context, n Notification) error {
	r.got = append(r.got, n)
	return r.err
}

func proposals(n int) []models.Proposal {
	out := make([]models.Proposal, n)
	for i := range out {
		credit := 1.26
		out[i] = models.Proposal{
			Strategy: models.BullPutCredit,
			Symbol:   "SPY",
			Score:    80 - i,
			Credit:   &credit,
			Legs:     []models.ProposalLeg{{Expiry: "2025-04-18"}},
		}
	}
	return out
}

func TestProposalsNotification(t *testing.T) {
	n := ProposalsNotification("run-1", proposals(7))
	assert.Equal(t, NotificationProposal, n.Type)
	assert.Equal(t, "7 new proposal(s)", n.Title)
	assert.Contains(t, n.Message, "1. SPY BULL_PUT_CREDIT score 80 | credit $1.26 | exp 2025-04-18")
	assert.Contains(t, n.Message, "and 2 more")
	assert.Equal(t, 5, strings.Count(n.Message, "\n"))
}

func TestMultiNotifier_LevelFilter(t *testing.T) {
	ch := &recordingChannel{name: "rec"}
	mn := NewMultiNotifier(&config.NotificationConfig{Level: string(LevelErrorsOnly)})
	mn.AddChannel(ch)

	require.NoError(t, mn.SendProposals(context.Background(), "run-1", proposals(1)))
	require.NoError(t, mn.SendError(context.Background(), errors.New("db locked"), "guardrails"))
	require.Len(t, ch.got, 1)
	assert.Equal(t, NotificationError, ch.got[0].Type)
	assert.Equal(t, "guardrails: db locked", ch.got[0].Message)
	assert.False(t, ch.got[0].Timestamp.IsZero())
}

func TestMultiNotifier_EmptyRunSendsNothing(t *testing.T) {
	ch := &recordingChannel{name: "rec"}
	mn := NewMultiNotifier(&config.NotificationConfig{})
	mn.AddChannel(ch)
	require.NoError(t, mn.SendProposals(context.Background(), "run-1", nil))
	assert.Empty(t, ch.got)
}

func TestMultiNotifier_JoinsChannelErrors(t *testing.T) {
	a := &recordingChannel{name: "a", err: errors.New("timeout")}
	b := &recordingChannel{name: "b"}
	mn := NewMultiNotifier(&config.NotificationConfig{})
	mn.AddChannel(a)
	mn.AddChannel(b)

	err := mn.SendCircuitTrip(context.Background(), models.IronCondor, 3, "margin")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "a: timeout")
	assert.Len(t, b.got, 1)
	assert.Equal(t, "Circuit tripped: IRON_CONDOR", b.got[0].Title)
}

func TestWebhookNotifier(t *testing.T) {
	var body map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	w := NewWebhookNotifier(config.WebhookConfig{Enabled: true, URL: srv.URL})
	require.True(t, w.IsEnabled())
	require.NoError(t, w.Send(context.Background(), ProposalsNotification("run-1", proposals(1))))
	assert.Equal(t, "*1 new proposal(s)*\n1. SPY BULL_PUT_CREDIT score 80 | credit $1.26 | exp 2025-04-18", body["text"])

	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer failing.Close()
	err := NewWebhookNotifier(config.WebhookConfig{Enabled: true, URL: failing.URL}).Send(context.Background(), Notification{})
	assert.EqualError(t, err, "webhook returned status 502")

	assert.False(t, NewWebhookNotifier(config.WebhookConfig{Enabled: true}).IsEnabled())
}

func TestTelegramNotifier(t *testing.T) {
	var path string
	var body map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
	}))
	defer srv.Close()

	tg := NewTelegramNotifier(config.TelegramConfig{Enabled: true, BotToken: "tok", ChatID: "42"})
	tg.baseURL = srv.URL
	require.NoError(t, tg.Send(context.Background(), Notification{Title: "a<b", Message: "x & y"}))
	assert.Equal(t, "/bottok/sendMessage", path)
	assert.Equal(t, "42", body["chat_id"])
	assert.Equal(t, "<b>a&lt;b</b>\n\nx &amp; y", body["text"])

	assert.False(t, NewTelegramNotifier(config.TelegramConfig{Enabled: true, BotToken: "tok"}).IsEnabled())
}

func TestTerminalNotifier(t *testing.T) {
	var buf bytes.Buffer
	tn := NewTerminalNotifier(&buf, true)
	mn := NewMultiNotifier(&config.NotificationConfig{})
	mn.AddChannel(tn)

	require.NoError(t, mn.SendCircuitTrip(context.Background(), models.BearCallCredit, 3, "margin"))
	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "\a"), "risk alerts ring the bell")
	assert.Contains(t, out, "[RISK] Circuit tripped: BEAR_CALL_CREDIT")
	assert.Contains(t, out, "  3 rejects in window. Last: margin\n")
	assert.Contains(t, out, "rejects=3 strategy=BEAR_CALL_CREDIT")

	buf.Reset()
	require.NoError(t, tn.Send(context.Background(), Notification{Type: NotificationInfo, Title: "hello"}))
	assert.NotContains(t, buf.String(), "\a")

	assert.False(t, NewTerminalNotifier(nil, false).IsEnabled())
}
