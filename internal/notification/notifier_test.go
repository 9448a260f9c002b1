package notification

import (
	"BehaviorSpectra/internal/config"
	"errors"
	"net/smtp"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestEmailNotifier_Send(t *testing.T) {
	cfg := config.SMTPConfig{Host: "mail.example.com", Port: 587, From: "engine@example.com", To: "a@example.com, b@example.com,"}
	n := NewEmailNotifier(cfg).(*EmailNotifier)

	var (
		gotAddr string
		gotTo   []string
		gotMsg  string
	)
	n.sendMail = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotTo, gotMsg = addr, to, string(msg)
		return nil
	}

	if err := n.Send("2 rare behaviors", "line one\nline two"); err != nil {
		t.Fatal(err)
	}
	if gotAddr != "mail.example.com:587" {
		t.Errorf("addr = %q", gotAddr)
	}
	if diff := cmp.Diff([]string{"a@example.com", "b@example.com"}, gotTo); diff != "" {
		t.Error(diff)
	}
	for _, want := range []string{"Subject: 2 rare behaviors\r\n", "From: engine@example.com\r\n", "\r\n\r\nline one\r\nline two"} {
		if !strings.Contains(gotMsg, want) {
			t.Errorf("message %q does not contain %q", gotMsg, want)
		}
	}
}

func TestEmailNotifier_Errors(t *testing.T) {
	n := NewEmailNotifier(config.SMTPConfig{Host: "mail.example.com"}).(*EmailNotifier)
	if err := n.Send("s", "b"); err == nil {
		t.Error("send without recipients succeeded")
	}

	n = NewEmailNotifier(config.SMTPConfig{Host: "mail.example.com", To: "a@example.com"}).(*EmailNotifier)
	n.sendMail = func(string, smtp.Auth, string, []string, []byte) error { return errors.New("refused") }
	if err := n.Send("s", "b"); err == nil || !strings.Contains(err.Error(), "refused") {
		t.Errorf("Send error = %v", err)
	}
}
