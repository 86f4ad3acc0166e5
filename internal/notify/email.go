// Package notify sends batch-completion notifications. Notification failures
// are logged and never affect task state.
package notify

import (
	"fmt"
	"log"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/ripqueue/ripqueue/internal/task"
)

// EmailNotifier mails a summary when a batch finishes.
type EmailNotifier struct {
	client sender
	from   string
	to     string
}

type sender interface {
	Send(email *mail.SGMailV3) (*rest.Response, error)
}

func NewEmailNotifier(apiKey, from, to string) *EmailNotifier {
	return &EmailNotifier{
		client: sendgrid.NewSendClient(apiKey),
		from:   from,
		to:     to,
	}
}

// NotifyBatchComplete sends the summary email for a terminal task.
func (n *EmailNotifier) NotifyBatchComplete(t *task.Task) {
	subject := fmt.Sprintf("Batch %s %s", t.ID, t.Status)
	body := BuildSummary(t)

	from := mail.NewEmail("ripqueue", n.from)
	toEmail := mail.NewEmail("", n.to)
	email := mail.NewSingleEmail(from, subject, toEmail, body, body)

	response, err := n.client.Send(email)
	if err != nil {
		log.Printf("notify: failed to send email: %v", err)
		return
	}
	if response.StatusCode >= 400 {
		log.Printf("notify: sendgrid error: status %d", response.StatusCode)
		return
	}

	log.Printf("notify: batch summary sent to %s (status: %d)", n.to, response.StatusCode)
}

// BuildSummary renders the plain-text batch summary.
func BuildSummary(t *task.Task) string {
	summary := fmt.Sprintf(
		"Batch %s finished with status %s.\n\nDownloaded: %d\nFailed: %d\nSkipped duplicates: %d\n",
		t.ID, t.Status, len(t.DownloadedFiles), len(t.FailedDownloads), t.SkippedCount,
	)

	if len(t.FailedDownloads) > 0 {
		summary += "\nFailed URLs:\n"
		for _, f := range t.FailedDownloads {
			summary += fmt.Sprintf("  %s - %s\n", f.URL, f.Error)
		}
	}

	return summary
}
