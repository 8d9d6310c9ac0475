package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/sirupsen/logrus"
)

// EmailNotifier sends file-problem notifications over SMTP. The data-team
// address, when configured, is included on every notification: CC'd, or the
// sole recipient when the problem lists no recipients.
type EmailNotifier struct {
	Host          string
	Port          int
	User          string
	Password      string
	From          string
	DataTeamEmail string
	Log           logrus.FieldLogger

	// send is swappable for tests; defaults to smtp.SendMail.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewEmailNotifier builds a notifier; returns nil when SMTP is unconfigured
// so the composite can skip the channel.
func NewEmailNotifier(host string, port int, user, password, from, dataTeam string, log logrus.FieldLogger) *EmailNotifier {
	if host == "" || from == "" {
		return nil
	}
	return &EmailNotifier{
		Host: host, Port: port, User: user, Password: password,
		From: from, DataTeamEmail: dataTeam, Log: log,
		send: smtp.SendMail,
	}
}

// Send delivers one file-problem email. Failures are logged and swallowed:
// notification transport never fails a pipeline.
func (n *EmailNotifier) Send(ctx context.Context, problem FileProblem) {
	recipients := append([]string{}, problem.Recipients...)
	cc := []string{}
	if n.DataTeamEmail != "" {
		cc = append(cc, n.DataTeamEmail)
	}
	if len(recipients) == 0 && len(cc) == 0 {
		n.Log.WithField("file", problem.FileName).Warn("no email recipients configured, skipping notification")
		return
	}
	if len(recipients) == 0 {
		recipients = cc
		cc = nil
	}

	var body strings.Builder
	fmt.Fprintf(&body, "From: %s\r\n", n.From)
	fmt.Fprintf(&body, "To: %s\r\n", strings.Join(recipients, ", "))
	if len(cc) > 0 {
		fmt.Fprintf(&body, "Cc: %s\r\n", strings.Join(cc, ", "))
	}
	fmt.Fprintf(&body, "Subject: File Load Failed: %s\r\n", problem.FileName)
	body.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n")
	fmt.Fprintf(&body, "File Processing Failure Notification\n\n")
	fmt.Fprintf(&body, "File: %s\nError Type: %s\nLog ID: %s\n\nError Details:\n%s\n",
		problem.FileName, problem.ErrorType, logID(problem.LogID), problem.Message)
	fmt.Fprintf(&body, "\nData team can reference log_id=%s for more details.\n", logID(problem.LogID))

	var auth smtp.Auth
	if n.User != "" && n.Password != "" {
		auth = smtp.PlainAuth("", n.User, n.Password, n.Host)
	}
	addr := fmt.Sprintf("%s:%d", n.Host, n.Port)
	all := append(recipients, cc...)

	if err := n.send(addr, auth, n.From, all, []byte(body.String())); err != nil {
		n.Log.WithError(err).WithField("file", problem.FileName).Error("failed to send failure notification email")
		return
	}
	n.Log.WithField("file", problem.FileName).Infof("sent failure notification email to %d recipient(s)", len(all))
}

func logID(id int64) string {
	if id == 0 {
		return "N/A"
	}
	return fmt.Sprintf("%d", id)
}
