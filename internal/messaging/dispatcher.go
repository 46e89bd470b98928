package messaging

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/BTreeMap/SurveyPipe/internal/models"
)

// Conversation is the subset of the survey coordinator the dispatcher drives.
type Conversation interface {
	StartSurvey(ctx context.Context, userID, chatID, surveyID string) error
	HandleAnswer(ctx context.Context, userID, chatID string, answer models.Answer) error
	HandleSkip(ctx context.Context, userID, chatID string) error
	CancelSurvey(ctx context.Context, userID, chatID string) error
}

// DefaultUserQueueSize is the per-user buffer of pending inbound messages.
const DefaultUserQueueSize = 32

// Dispatcher consumes the messaging service's response channel and routes
// each message to the survey coordinator. Messages from the same user are
// processed strictly in arrival order on a dedicated goroutine, so a slow
// answer from one user never blocks another user's conversation.
type Dispatcher struct {
	svc           Service
	conv          Conversation
	defaultSurvey string

	mu     sync.Mutex
	queues map[string]chan models.Response
	wg     sync.WaitGroup
}

// NewDispatcher creates a dispatcher that routes inbound messages from svc
// to conv. defaultSurvey is the survey started when a /start command names
// no survey id.
func NewDispatcher(svc Service, conv Conversation, defaultSurvey string) *Dispatcher {
	return &Dispatcher{
		svc:           svc,
		conv:          conv,
		defaultSurvey: defaultSurvey,
		queues:        make(map[string]chan models.Response),
	}
}

// Run consumes the response channel until ctx is cancelled or the channel
// closes, then waits for all per-user workers to drain.
func (d *Dispatcher) Run(ctx context.Context) {
	slog.Info("Dispatcher.Run: starting")
	responses := d.svc.Responses()
	for {
		select {
		case <-ctx.Done():
			slog.Info("Dispatcher.Run: context cancelled, draining workers")
			d.closeQueues()
			d.wg.Wait()
			return
		case response, ok := <-responses:
			if !ok {
				slog.Info("Dispatcher.Run: response channel closed, draining workers")
				d.closeQueues()
				d.wg.Wait()
				return
			}
			d.enqueue(ctx, response)
		}
	}
}

// enqueue routes a response to the per-user worker, creating one on first
// contact. If a user's queue is full the message is dropped with a warning
// rather than stalling delivery to other users.
func (d *Dispatcher) enqueue(ctx context.Context, response models.Response) {
	if response.From == "" {
		slog.Warn("Dispatcher.enqueue: message without sender, dropping")
		return
	}

	d.mu.Lock()
	q, ok := d.queues[response.From]
	if !ok {
		q = make(chan models.Response, DefaultUserQueueSize)
		d.queues[response.From] = q
		d.wg.Add(1)
		go d.worker(ctx, response.From, q)
	}
	d.mu.Unlock()

	select {
	case q <- response:
	default:
		slog.Warn("Dispatcher.enqueue: user queue full, dropping message", "from", response.From)
	}
}

func (d *Dispatcher) worker(ctx context.Context, userID string, q chan models.Response) {
	defer d.wg.Done()
	for response := range q {
		d.handle(ctx, response)
	}
	slog.Debug("Dispatcher.worker: stopped", "user", userID)
}

func (d *Dispatcher) closeQueues() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, q := range d.queues {
		close(q)
	}
	d.queues = make(map[string]chan models.Response)
}

// handle interprets one inbound message: commands first, everything else is
// treated as an answer to the user's current question.
func (d *Dispatcher) handle(ctx context.Context, response models.Response) {
	userID := response.From
	chatID := response.ChatID
	if chatID == "" {
		chatID = userID
	}

	body := strings.TrimSpace(response.Body)
	cmd, arg := splitCommand(body)

	var err error
	switch cmd {
	case "/start":
		surveyID := arg
		if surveyID == "" {
			surveyID = d.defaultSurvey
		}
		err = d.conv.StartSurvey(ctx, userID, chatID, surveyID)
	case "/skip":
		err = d.conv.HandleSkip(ctx, userID, chatID)
	case "/cancel":
		err = d.conv.CancelSurvey(ctx, userID, chatID)
	default:
		answer := models.Answer{Text: body, Location: response.Location}
		err = d.conv.HandleAnswer(ctx, userID, chatID, answer)
	}
	if errors.Is(err, models.ErrQuestionVisited) {
		// A revisit rejection is normal dialogue traffic; the user was
		// already notified by the coordinator.
		slog.Debug("Dispatcher.handle: revisit rejected", "user", userID)
	} else if err != nil {
		slog.Error("Dispatcher.handle: error processing message", "error", err, "user", userID, "command", cmd)
	}
}

// splitCommand extracts a leading slash command and its first argument.
// Non-command bodies return an empty command.
func splitCommand(body string) (cmd, arg string) {
	if !strings.HasPrefix(body, "/") {
		return "", ""
	}
	fields := strings.Fields(body)
	if len(fields) == 0 {
		return "", ""
	}
	cmd = strings.ToLower(fields[0])
	if len(fields) > 1 {
		arg = fields[1]
	}
	return cmd, arg
}
