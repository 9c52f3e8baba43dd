package handler

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luckyComet55/junction-control/internal/journal"
	"github.com/luckyComet55/junction-control/internal/junction"
	repo "github.com/luckyComet55/junction-control/internal/repository"
	"github.com/luckyComet55/junction-control/internal/rpc"
)

type fakeMessenger struct {
	mu      sync.Mutex
	sent    []*bot.SendMessageParams
	answers []*bot.AnswerCallbackQueryParams
	notify  chan string
}

func newFakeMessenger() *fakeMessenger {
	return &fakeMessenger{notify: make(chan string, 32)}
}

func (f *fakeMessenger) SendMessage(_ context.Context, params *bot.SendMessageParams) (*models.Message, error) {
	f.mu.Lock()
	f.sent = append(f.sent, params)
	f.mu.Unlock()
	f.notify <- params.Text
	return &models.Message{}, nil
}

func (f *fakeMessenger) AnswerCallbackQuery(_ context.Context, params *bot.AnswerCallbackQueryParams) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.answers = append(f.answers, params)
	return true, nil
}

func (f *fakeMessenger) next(t *testing.T) string {
	t.Helper()
	select {
	case text := <-f.notify:
		return text
	case <-time.After(2 * time.Second):
		t.Fatal("no message sent")
	}
	return ""
}

func (f *fakeMessenger) lastAnswer() *bot.AnswerCallbackQueryParams {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.answers[len(f.answers)-1]
}

type fakeSignals struct {
	mu       sync.Mutex
	requests []string
	snap     junction.Snapshot
	err      error
	updates  chan junction.Snapshot
	watches  int
}

func (f *fakeSignals) record(r string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, r)
}

func (f *fakeSignals) SwitchRoad(_ context.Context, id int) (rpc.Reply, error) {
	f.record("road")
	if f.err != nil {
		return rpc.Reply{}, f.err
	}
	return rpc.Reply{Result: "accepted", Message: "switch to road " + string(rune('0'+id))}, nil
}

func (f *fakeSignals) RequestCrossing(_ context.Context, id int) (rpc.Reply, error) {
	f.record("crossing")
	return rpc.Reply{Result: "road_active", Message: "crossing " + string(rune('0'+id))}, f.err
}

func (f *fakeSignals) EmergencyStop(context.Context) (rpc.Reply, error) {
	f.record("emergency")
	return rpc.Reply{Result: "accepted", Message: "Emergency mode activated! All signals are RED."}, nil
}

func (f *fakeSignals) State(context.Context) (junction.Snapshot, error) {
	return f.snap, f.err
}

func (f *fakeSignals) Watch(ctx context.Context, fn func(junction.Snapshot) error) error {
	f.mu.Lock()
	f.watches++
	f.mu.Unlock()
	for {
		select {
		case <-ctx.Done():
			return nil
		case s, ok := <-f.updates:
			if !ok {
				return repo.OperatorError{Text: "Junction controller is unavailable, try again later"}
			}
			if err := fn(s); err != nil {
				return err
			}
		}
	}
}

type fakeStats struct {
	stats rpc.StatsReply
}

func (f *fakeStats) Stats(context.Context) (rpc.StatsReply, error) {
	return f.stats, nil
}

func (f *fakeStats) ClearLog(context.Context) (int, error) {
	return 4, nil
}

func initialSnapshot() junction.Snapshot {
	return junction.Snapshot{
		Mode:      junction.ModeManual,
		Roads:     [2]junction.Signal{junction.Red, junction.Green},
		Crossings: [2]junction.Signal{junction.Red, junction.Red},
		Phase:     junction.PhaseInitial,
	}
}

func newTestHandler() (*MessageHandler, *fakeSignals, repo.OperatorRepository) {
	signals := &fakeSignals{snap: initialSnapshot(), updates: make(chan junction.Snapshot)}
	operators := repo.NewOperatorRepository(repo.NewOperatorMachine())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewMessageHandler(signals, &fakeStats{}, operators, logger), signals, operators
}

func callback(operatorID int64, data string) *models.Update {
	return &models.Update{CallbackQuery: &models.CallbackQuery{
		ID:   "q",
		From: models.User{ID: operatorID},
		Data: data,
	}}
}

func message(operatorID int64, text string) *models.Update {
	return &models.Update{Message: &models.Message{
		From: &models.User{ID: operatorID},
		Chat: models.Chat{ID: operatorID},
		Text: text,
	}}
}

func TestStartShowsPanelAndState(t *testing.T) {
	mh, _, operators := newTestHandler()
	m := newFakeMessenger()

	mh.start(context.Background(), m, message(7, "/start"))

	text := m.next(t)
	assert.Contains(t, text, "Junction control panel")
	assert.Contains(t, text, "Road 2: GREEN")
	require.Len(t, m.sent, 1)
	assert.NotNil(t, m.sent[0].ReplyMarkup)
	assert.Equal(t, int64(7), m.sent[0].ChatID)
	assert.True(t, operators.CheckOperatorExists(7))
}

func TestCallbackActions(t *testing.T) {
	tests := []struct {
		action  string
		request string
		text    string
		answer  string
	}{
		{ActionRoad1, "road", "switch to road 1", "accepted"},
		{ActionRoad2, "road", "switch to road 2", "accepted"},
		{ActionCrossing1, "crossing", "crossing 1", "road_active"},
		{ActionCrossing2, "crossing", "crossing 2", "road_active"},
		{ActionEmergency, "emergency", "Emergency mode activated! All signals are RED.", "accepted"},
	}

	for _, tt := range tests {
		t.Run(tt.action, func(t *testing.T) {
			mh, signals, _ := newTestHandler()
			m := newFakeMessenger()

			mh.handle(context.Background(), m, callback(7, tt.action))

			assert.Equal(t, tt.text, m.next(t))
			assert.Equal(t, []string{tt.request}, signals.requests)
			assert.Equal(t, tt.answer, m.lastAnswer().Text)
			assert.Equal(t, "q", m.lastAnswer().CallbackQueryID)
		})
	}
}

func TestRequestErrorIsShown(t *testing.T) {
	mh, signals, _ := newTestHandler()
	signals.err = repo.OperatorError{Text: "road 3: invalid argument"}
	m := newFakeMessenger()

	mh.handle(context.Background(), m, callback(7, ActionRoad1))

	assert.Equal(t, "road 3: invalid argument", m.next(t))
	assert.Empty(t, m.lastAnswer().Text)
}

func TestStatusStatsAndClear(t *testing.T) {
	mh, _, _ := newTestHandler()
	m := newFakeMessenger()
	ctx := context.Background()

	mh.handle(ctx, m, callback(7, ActionStatus))
	assert.Contains(t, m.next(t), "Phase: initial")

	mh.handle(ctx, m, callback(7, ActionStats))
	assert.Contains(t, m.next(t), "Request log is empty")

	mh.handle(ctx, m, callback(7, ActionClearLog))
	assert.Equal(t, "Request log cleared, 4 entries removed", m.next(t))
}

func TestUnknownInput(t *testing.T) {
	mh, _, _ := newTestHandler()
	m := newFakeMessenger()

	mh.handle(context.Background(), m, message(7, "hello"))
	assert.Contains(t, m.next(t), "Unknown command")

	mh.handle(context.Background(), m, callback(7, "zz"))
	assert.Equal(t, "Unknown action", m.lastAnswer().Text)
}

func TestWatchToggle(t *testing.T) {
	mh, signals, operators := newTestHandler()
	m := newFakeMessenger()
	ctx := context.Background()

	mh.handle(ctx, m, callback(7, ActionWatch))
	assert.Contains(t, m.next(t), "Live updates started")
	assert.Equal(t, "on", m.lastAnswer().Text)
	state, _ := operators.GetOperatorState(7)
	assert.Equal(t, repo.OPERATOR_STATE_WATCHING, state)

	snap := initialSnapshot()
	snap.Phase = junction.PhaseYield
	snap.Roads[1] = junction.Yellow
	signals.updates <- snap
	assert.Contains(t, m.next(t), "Road 2: YELLOW")

	mh.handle(ctx, m, callback(7, ActionWatch))
	assert.Equal(t, "Live updates stopped.", m.next(t))
	assert.Equal(t, "off", m.lastAnswer().Text)
	mh.Wait()

	state, _ = operators.GetOperatorState(7)
	assert.Equal(t, repo.OPERATOR_STATE_IDLE, state)
}

func TestWatchPressRoutesOnOperatorState(t *testing.T) {
	mh, signals, operators := newTestHandler()
	m := newFakeMessenger()
	ctx := context.Background()

	require.NoError(t, operators.AddOperator(7))
	require.NoError(t, operators.TriggerOperatorTransition(7, repo.OPERATOR_EVENT_WATCH))

	mh.handle(ctx, m, callback(7, ActionWatch))
	assert.Equal(t, "Live updates stopped.", m.next(t))
	assert.Equal(t, "off", m.lastAnswer().Text)
	mh.Wait()

	state, _ := operators.GetOperatorState(7)
	assert.Equal(t, repo.OPERATOR_STATE_IDLE, state)
	signals.mu.Lock()
	assert.Zero(t, signals.watches)
	signals.mu.Unlock()
}

func TestCancelStopsWatch(t *testing.T) {
	mh, _, operators := newTestHandler()
	m := newFakeMessenger()
	ctx := context.Background()

	mh.cancel(ctx, m, message(7, "/cancel"))
	assert.Contains(t, m.next(t), "Nothing to cancel")

	mh.handle(ctx, m, callback(7, ActionWatch))
	m.next(t)

	mh.cancel(ctx, m, message(7, "/cancel"))
	assert.Equal(t, "Live updates stopped.", m.next(t))
	mh.Wait()

	state, _ := operators.GetOperatorState(7)
	assert.Equal(t, repo.OPERATOR_STATE_IDLE, state)
}

func TestBrokenWatchStreamResetsOperator(t *testing.T) {
	mh, signals, operators := newTestHandler()
	m := newFakeMessenger()

	mh.handle(context.Background(), m, callback(7, ActionWatch))
	m.next(t)

	close(signals.updates)
	assert.Equal(t, "Live updates stopped: Junction controller is unavailable, try again later", m.next(t))
	mh.Wait()

	state, _ := operators.GetOperatorState(7)
	assert.Equal(t, repo.OPERATOR_STATE_IDLE, state)
}

func TestFormatStats(t *testing.T) {
	at := time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)
	text := FormatStats(rpc.StatsReply{
		Stats:  journal.Stats{Total: 3, Road: 2, Crossing: 1, Rejected: 1},
		Uptime: 90*time.Second + 300*time.Millisecond,
		Recent: []journal.Entry{
			{Time: at, Kind: journal.KindRoad, Detail: "Request to switch to Road 1", Outcome: "accepted"},
		},
	})

	assert.Contains(t, text, "Requests: 3 total, 1 rejected")
	assert.Contains(t, text, "Road: 2, crossing: 1, emergency: 0")
	assert.Contains(t, text, "Uptime: 1m30s")
	assert.Contains(t, text, "- 10:30:00 Request to switch to Road 1 (accepted)")
}
