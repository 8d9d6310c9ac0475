// Package notify carries terminal failures to the outside world: file
// problems to business recipients by email, internal errors to the
// engineering Slack channel. Transport failures are logged, never fatal.
package notify

import (
	"context"

	"github.com/sirupsen/logrus"
)

// FileProblem describes a failure that business stakeholders act on.
type FileProblem struct {
	FileName   string
	ErrorType  string
	Message    string
	LogID      int64
	Recipients []string
}

// InternalError describes a code or infrastructure failure for the
// engineering channel.
type InternalError struct {
	Message  string
	FileName string
	LogID    int64
}

// Notifier is the boundary contract; the pipeline calls it once per
// terminal failure.
type Notifier interface {
	NotifyFileProblem(ctx context.Context, problem FileProblem)
	NotifyInternal(ctx context.Context, internal InternalError)
}

// Nop discards every notification.
type Nop struct{}

func (Nop) NotifyFileProblem(context.Context, FileProblem) {}
func (Nop) NotifyInternal(context.Context, InternalError)  {}

// Composite fans a notification out to the configured channels: file
// problems to email, internal errors to Slack. Either side may be nil.
type Composite struct {
	Email *EmailNotifier
	Slack *SlackNotifier
	Log   logrus.FieldLogger
}

func (c Composite) NotifyFileProblem(ctx context.Context, problem FileProblem) {
	if c.Email == nil {
		if c.Log != nil {
			c.Log.WithField("file", problem.FileName).Warn("email notifications not configured, skipping")
		}
		return
	}
	c.Email.Send(ctx, problem)
}

func (c Composite) NotifyInternal(ctx context.Context, internal InternalError) {
	if c.Slack == nil {
		if c.Log != nil {
			c.Log.Warn("slack notifications not configured, skipping")
		}
		return
	}
	c.Slack.Send(ctx, internal)
}
