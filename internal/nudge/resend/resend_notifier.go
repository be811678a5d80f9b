// Package resend delivers nudges as email through the Resend API.
package resend

import (
	"bytes"
	"context"
	"fmt"
	"html/template"

	"github.com/brk3/streakmate/pkg/habit"
	"github.com/resend/resend-go/v2"
)

const DefaultFrom = "onboarding@resend.dev"

const htmlTemplate = `
<p>These habits are still open for {{.Day}}:</p>
<ul>
{{range .Habits}}
  <li>{{.}}</li>
{{end}}
</ul>
<p>Mark them before the day ends to keep your streaks going.</p>
`

var emailTmpl = template.Must(template.New("email").Parse(htmlTemplate))

type sender interface {
	Send(params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

type ResendNotifier struct {
	From   string
	client sender
}

func New(apiKey, from string) *ResendNotifier {
	if from == "" {
		from = DefaultFrom
	}
	return &ResendNotifier{From: from, client: resend.NewClient(apiKey).Emails}
}

func (r *ResendNotifier) SendNudge(ctx context.Context, to string, habits []string, day habit.Date) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := render(habits, day)
	if err != nil {
		return err
	}

	params := &resend.SendEmailRequest{
		From:    r.From,
		To:      []string{to},
		Subject: subject(len(habits)),
		Html:    body,
	}
	if _, err := r.client.Send(params); err != nil {
		return fmt.Errorf("resend: %w", err)
	}
	return nil
}

func subject(n int) string {
	if n == 1 {
		return "1 habit is still open today"
	}
	return fmt.Sprintf("%d habits are still open today", n)
}

func render(habits []string, day habit.Date) (string, error) {
	data := struct {
		Habits []string
		Day    habit.Date
	}{
		Habits: habits,
		Day:    day,
	}
	var buf bytes.Buffer
	if err := emailTmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
