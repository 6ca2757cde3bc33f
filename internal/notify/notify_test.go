package notify

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type recordingNotifier struct {
	sent []Notification
	err  error
}

func (r *recordingNotifier) Send(n Notification) error {
	r.sent = append(r.sent, n)
	return r.err
}

func TestMultiNotifierSendsToAll(t *testing.T) {
	a := &recordingNotifier{}
	b := &recordingNotifier{}
	m := NewMultiNotifier(a, b)

	n := Notification{Title: "scan complete", Type: NotifySuccess}
	if err := m.Send(n); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if len(a.sent) != 1 || len(b.sent) != 1 {
		t.Errorf("sent counts = %d, %d, want 1, 1", len(a.sent), len(b.sent))
	}
}

func TestMultiNotifierReturnsLastError(t *testing.T) {
	wantErr := errors.New("webhook down")
	a := &recordingNotifier{err: wantErr}
	b := &recordingNotifier{}
	m := NewMultiNotifier(a, b)

	err := m.Send(Notification{Title: "scan failed", Type: NotifyError})
	if !errors.Is(err, wantErr) {
		t.Errorf("Send() error = %v, want %v", err, wantErr)
	}
	if len(b.sent) != 1 {
		t.Errorf("second notifier not reached despite first failing")
	}
}

func TestSlackColor(t *testing.T) {
	tests := []struct {
		typ  NotificationType
		want string
	}{
		{NotifySuccess, "good"},
		{NotifyWarning, "warning"},
		{NotifyError, "danger"},
		{NotifyInfo, "#439FE0"},
	}
	for _, tt := range tests {
		if got := SlackColor(tt.typ); got != tt.want {
			t.Errorf("SlackColor(%d) = %q, want %q", tt.typ, got, tt.want)
		}
	}
}

func TestSlackNotifierSend(t *testing.T) {
	var received SlackMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewSlackNotifier(srv.URL)
	err := s.Send(Notification{
		Title:   "Pull request opened",
		Message: "2 files patched",
		Type:    NotifySuccess,
		RepoURL: "https://github.com/acme/widgets",
		PRURL:   "https://github.com/acme/widgets/pull/7",
	})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	if received.Text != "Pull request opened" {
		t.Errorf("text = %q, want %q", received.Text, "Pull request opened")
	}
	if len(received.Attachments) != 1 {
		t.Fatalf("attachments = %d, want 1", len(received.Attachments))
	}
	att := received.Attachments[0]
	if att.Color != "good" {
		t.Errorf("color = %q, want good", att.Color)
	}
	if att.Title != "https://github.com/acme/widgets" {
		t.Errorf("attachment title = %q", att.Title)
	}
	if att.Footer != "GuardianAI" {
		t.Errorf("footer = %q, want GuardianAI", att.Footer)
	}
}

func TestSlackNotifierDisabledWithoutWebhook(t *testing.T) {
	s := NewSlackNotifier("")
	if err := s.Send(Notification{Title: "ignored"}); err != nil {
		t.Errorf("Send() with empty webhook error = %v, want nil", err)
	}
}

func TestSlackNotifierNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	s := NewSlackNotifier(srv.URL)
	if err := s.Send(Notification{Title: "boom"}); err == nil {
		t.Error("Send() error = nil, want non-nil on 500")
	}
}
