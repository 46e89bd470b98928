// Package scheduler sends recurring survey invitations on a cron schedule.
//
// Deployments that poll a fixed participant list (daily check-ins, weekly
// pulse surveys) configure a cron expression and a recipient list; each
// firing sends an invitation message prompting recipients to start the
// survey.
package scheduler

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// DefaultInviteMessage is sent when no custom invitation text is configured.
const DefaultInviteMessage = "A new survey is available. Send /start to begin."

// MessageSender sends a text message to a recipient. Satisfied by the
// messaging package's Service implementations.
type MessageSender interface {
	SendMessage(ctx context.Context, to string, body string) error
}

// Scheduler runs cron-based invitation jobs.
type Scheduler struct {
	cron *cron.Cron
}

// NewScheduler creates and starts a cron scheduler using the standard
// 5-field expression format.
func NewScheduler() *Scheduler {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	c := cron.New(cron.WithParser(parser), cron.WithChain(cron.Recover(cron.DefaultLogger)))
	c.Start()
	return &Scheduler{cron: c}
}

// ScheduleInvites registers a job that sends the invitation message to
// every recipient each time the cron expression fires. Send failures are
// logged per recipient and do not stop the remaining sends.
func (s *Scheduler) ScheduleInvites(expr string, sender MessageSender, recipients []string, message string) error {
	if message == "" {
		message = DefaultInviteMessage
	}
	_, err := s.cron.AddFunc(expr, func() {
		ctx := context.Background()
		for _, to := range recipients {
			if err := s.sendInvite(ctx, sender, to, message); err != nil {
				slog.Error("Scheduler.ScheduleInvites: failed to send invite", "error", err, "to", to)
			}
		}
	})
	if err != nil {
		return err
	}
	slog.Info("Scheduler.ScheduleInvites: registered invite job", "cron", expr, "recipients", len(recipients))
	return nil
}

func (s *Scheduler) sendInvite(ctx context.Context, sender MessageSender, to, message string) error {
	return sender.SendMessage(ctx, to, message)
}

// AddJob schedules an arbitrary task using the provided cron expression.
func (s *Scheduler) AddJob(expr string, task func()) error {
	_, err := s.cron.AddFunc(expr, task)
	return err
}

// Stop stops the cron scheduler and waits for running jobs to finish.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}
