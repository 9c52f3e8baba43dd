package handler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"

	"github.com/luckyComet55/junction-control/internal/junction"
	repo "github.com/luckyComet55/junction-control/internal/repository"
	"github.com/luckyComet55/junction-control/internal/rpc"
	"github.com/luckyComet55/junction-control/pkg/fsm"
)

// Callback data of the control panel buttons.
const (
	ActionRoad1     = "r1"
	ActionRoad2     = "r2"
	ActionCrossing1 = "c1"
	ActionCrossing2 = "c2"
	ActionEmergency = "e"
	ActionStatus    = "s"
	ActionStats     = "st"
	ActionClearLog  = "clr"
	ActionWatch     = "w"
)

const watchCancelKey = "watch_cancel"

// Messenger is the part of *bot.Bot the handler talks through.
type Messenger interface {
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	AnswerCallbackQuery(ctx context.Context, params *bot.AnswerCallbackQueryParams) (bool, error)
}

var _ Messenger = (*bot.Bot)(nil)

type MessageHandler struct {
	logger             *slog.Logger
	signalRepository   repo.SignalRepository
	statsRepository    repo.StatsRepository
	operatorRepository repo.OperatorRepository

	watches sync.WaitGroup
}

func NewMessageHandler(
	signalRepo repo.SignalRepository,
	statsRepo repo.StatsRepository,
	operatorRepo repo.OperatorRepository,
	logger *slog.Logger,
) *MessageHandler {
	return &MessageHandler{
		logger:             logger,
		signalRepository:   signalRepo,
		statsRepository:    statsRepo,
		operatorRepository: operatorRepo,
	}
}

// Wait blocks until every live update stream has ended.
func (mh *MessageHandler) Wait() {
	mh.watches.Wait()
}

func controlPanel() *models.InlineKeyboardMarkup {
	return &models.InlineKeyboardMarkup{
		InlineKeyboard: [][]models.InlineKeyboardButton{
			{
				{Text: "Road 1", CallbackData: ActionRoad1},
				{Text: "Road 2", CallbackData: ActionRoad2},
			},
			{
				{Text: "Crossing 1", CallbackData: ActionCrossing1},
				{Text: "Crossing 2", CallbackData: ActionCrossing2},
			},
			{
				{Text: "Status", CallbackData: ActionStatus},
				{Text: "Stats", CallbackData: ActionStats},
				{Text: "Clear log", CallbackData: ActionClearLog},
			},
			{
				{Text: "Live updates on/off", CallbackData: ActionWatch},
			},
			{
				{Text: "EMERGENCY STOP", CallbackData: ActionEmergency},
			},
		},
	}
}

func sender(update *models.Update) (operatorID, chatID int64, ok bool) {
	switch {
	case update.Message != nil && update.Message.From != nil:
		return update.Message.From.ID, update.Message.Chat.ID, true
	case update.CallbackQuery != nil:
		return update.CallbackQuery.From.ID, update.CallbackQuery.From.ID, true
	default:
		return 0, 0, false
	}
}

func (mh *MessageHandler) ensureOperator(operatorID int64) {
	if mh.operatorRepository.CheckOperatorExists(operatorID) {
		return
	}
	if err := mh.operatorRepository.AddOperator(operatorID); err != nil {
		mh.logger.Debug(err.Error())
	}
}

func (mh *MessageHandler) send(ctx context.Context, m Messenger, chatID int64, text string, kb *models.InlineKeyboardMarkup) {
	params := &bot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	}
	if kb != nil {
		params.ReplyMarkup = kb
	}
	if _, err := m.SendMessage(ctx, params); err != nil {
		mh.logger.Error(err.Error(), "chat", chatID)
	}
}

func (mh *MessageHandler) HandleStart(ctx context.Context, b *bot.Bot, update *models.Update) {
	mh.start(ctx, b, update)
}

func (mh *MessageHandler) HandleCancel(ctx context.Context, b *bot.Bot, update *models.Update) {
	mh.cancel(ctx, b, update)
}

func (mh *MessageHandler) HandleUpdate(ctx context.Context, b *bot.Bot, update *models.Update) {
	mh.handle(ctx, b, update)
}

func (mh *MessageHandler) start(ctx context.Context, m Messenger, update *models.Update) {
	operatorID, chatID, ok := sender(update)
	if !ok {
		return
	}
	mh.ensureOperator(operatorID)

	text := "Junction control panel"
	if snap, err := mh.signalRepository.State(ctx); err != nil {
		text += "\n\n" + err.Error()
	} else {
		text += "\n\n" + FormatSnapshot(snap)
	}
	mh.send(ctx, m, chatID, text, controlPanel())
}

func (mh *MessageHandler) cancel(ctx context.Context, m Messenger, update *models.Update) {
	operatorID, chatID, ok := sender(update)
	if !ok {
		return
	}
	mh.ensureOperator(operatorID)

	text := "Nothing to cancel. Use /start to open the control panel."
	if state, _ := mh.operatorRepository.GetOperatorState(operatorID); state == repo.OPERATOR_STATE_WATCHING {
		mh.stopWatch(operatorID)
		text = "Live updates stopped."
	}
	mh.send(ctx, m, chatID, text, nil)
}

func (mh *MessageHandler) handle(ctx context.Context, m Messenger, update *models.Update) {
	operatorID, chatID, ok := sender(update)
	if !ok {
		return
	}
	mh.ensureOperator(operatorID)

	if update.CallbackQuery == nil {
		mh.send(ctx, m, chatID, "Unknown command. Use /start to open the control panel.", nil)
		return
	}

	action := update.CallbackQuery.Data
	state, _ := mh.operatorRepository.GetOperatorState(operatorID)
	mh.logger.Debug(fmt.Sprintf("handling operator %d with state %s", operatorID, state), "action", action)

	answer := mh.dispatch(ctx, m, action, state, operatorID, chatID)
	if _, err := m.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: update.CallbackQuery.ID,
		Text:            answer,
	}); err != nil {
		mh.logger.Error(err.Error(), "operator", operatorID)
	}
}

// dispatch runs one panel action and returns the short callback answer.
func (mh *MessageHandler) dispatch(ctx context.Context, m Messenger, action string, state fsm.State, operatorID, chatID int64) string {
	switch action {
	case ActionRoad1, ActionRoad2:
		reply, err := mh.signalRepository.SwitchRoad(ctx, roadOf(action))
		return mh.report(ctx, m, chatID, reply, err)
	case ActionCrossing1, ActionCrossing2:
		reply, err := mh.signalRepository.RequestCrossing(ctx, roadOf(action))
		return mh.report(ctx, m, chatID, reply, err)
	case ActionEmergency:
		reply, err := mh.signalRepository.EmergencyStop(ctx)
		return mh.report(ctx, m, chatID, reply, err)
	case ActionStatus:
		snap, err := mh.signalRepository.State(ctx)
		if err != nil {
			mh.send(ctx, m, chatID, err.Error(), nil)
			return ""
		}
		mh.send(ctx, m, chatID, FormatSnapshot(snap), nil)
		return ""
	case ActionStats:
		stats, err := mh.statsRepository.Stats(ctx)
		if err != nil {
			mh.send(ctx, m, chatID, err.Error(), nil)
			return ""
		}
		mh.send(ctx, m, chatID, FormatStats(stats), nil)
		return ""
	case ActionClearLog:
		n, err := mh.statsRepository.ClearLog(ctx)
		if err != nil {
			mh.send(ctx, m, chatID, err.Error(), nil)
			return ""
		}
		mh.send(ctx, m, chatID, fmt.Sprintf("Request log cleared, %d entries removed", n), nil)
		return ""
	case ActionWatch:
		switch state {
		case repo.OPERATOR_STATE_WATCHING:
			mh.stopWatch(operatorID)
			mh.send(ctx, m, chatID, "Live updates stopped.", nil)
			return "off"
		default:
			return mh.startWatch(ctx, m, operatorID, chatID)
		}
	default:
		mh.logger.Warn("unknown action", "action", action, "operator", operatorID)
		return "Unknown action"
	}
}

func roadOf(action string) int {
	return int(action[1] - '0')
}

func (mh *MessageHandler) report(ctx context.Context, m Messenger, chatID int64, reply rpc.Reply, err error) string {
	if err != nil {
		mh.send(ctx, m, chatID, err.Error(), nil)
		return ""
	}
	mh.send(ctx, m, chatID, reply.Message, nil)
	return reply.Result
}

func (mh *MessageHandler) startWatch(ctx context.Context, m Messenger, operatorID, chatID int64) string {
	watchCtx, cancel := context.WithCancel(ctx)
	if err := mh.operatorRepository.SetOperatorData(operatorID, watchCancelKey, cancel); err != nil {
		cancel()
		mh.logger.Error(err.Error(), "operator", operatorID)
		return ""
	}
	if err := mh.operatorRepository.TriggerOperatorTransition(operatorID, repo.OPERATOR_EVENT_WATCH); err != nil {
		cancel()
		_, _ = mh.operatorRepository.TakeOperatorData(operatorID, watchCancelKey)
		mh.logger.Error(err.Error(), "operator", operatorID)
		return ""
	}

	mh.send(ctx, m, chatID, "Live updates started. Press the button again or send /cancel to stop.", nil)
	mh.watches.Add(1)
	go mh.watch(watchCtx, m, operatorID, chatID)
	return "on"
}

func (mh *MessageHandler) watch(ctx context.Context, m Messenger, operatorID, chatID int64) {
	defer mh.watches.Done()

	err := mh.signalRepository.Watch(ctx, func(snap junction.Snapshot) error {
		_, err := m.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: chatID,
			Text:   FormatSnapshot(snap),
		})
		return err
	})
	if err == nil {
		return
	}
	if mh.stopWatch(operatorID) {
		var opErr repo.OperatorError
		text := "Live updates stopped"
		if errors.As(err, &opErr) {
			text += ": " + opErr.Text
		}
		mh.send(context.WithoutCancel(ctx), m, chatID, text, nil)
	}
}

// stopWatch cancels the operator's stream, if one is running, and moves the
// operator back to IDLE. It reports whether a stream was cancelled.
func (mh *MessageHandler) stopWatch(operatorID int64) bool {
	v, err := mh.operatorRepository.TakeOperatorData(operatorID, watchCancelKey)
	if err != nil {
		if state, _ := mh.operatorRepository.GetOperatorState(operatorID); state == repo.OPERATOR_STATE_WATCHING {
			mh.unwatch(operatorID)
		}
		return false
	}
	if cancel, ok := v.(context.CancelFunc); ok {
		cancel()
	}
	mh.unwatch(operatorID)
	return true
}

func (mh *MessageHandler) unwatch(operatorID int64) {
	if err := mh.operatorRepository.TriggerOperatorTransition(operatorID, repo.OPERATOR_EVENT_UNWATCH); err != nil {
		mh.logger.Error(err.Error(), "operator", operatorID)
	}
}

func FormatSnapshot(s junction.Snapshot) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Road 1: %s\nRoad 2: %s\n", s.Road(1), s.Road(2))
	fmt.Fprintf(&sb, "Crossing 1: %s\nCrossing 2: %s\n", s.Crossing(1), s.Crossing(2))
	fmt.Fprintf(&sb, "Phase: %s (%s mode, #%d)", s.Phase, s.Mode, s.Seq)
	return sb.String()
}

func FormatStats(st rpc.StatsReply) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Requests: %d total, %d rejected\n", st.Total, st.Rejected)
	fmt.Fprintf(&sb, "Road: %d, crossing: %d, emergency: %d\n", st.Road, st.Crossing, st.Emergency)
	fmt.Fprintf(&sb, "Uptime: %s", st.Uptime.Truncate(time.Second))

	if len(st.Recent) == 0 {
		sb.WriteString("\n\nRequest log is empty")
		return sb.String()
	}
	sb.WriteString("\n\nRecent requests:")
	for _, e := range st.Recent {
		fmt.Fprintf(&sb, "\n- %s %s (%s)", e.Time.Format(time.TimeOnly), e.Detail, e.Outcome)
	}
	return sb.String()
}
