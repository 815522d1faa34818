package email

import (
	"strings"
	"testing"
	"time"
)

func TestPasswordResetMessage(t *testing.T) {
	s := NewSMTPService("localhost", 1025, "", "", "noreply@example.com", 15*time.Minute)

	msg := s.buildMessage("alice@example.com", passwordResetSubject, passwordResetBody("tok-123", 15*time.Minute))

	for _, want := range []string{
		"From: noreply@example.com\r\n",
		"To: alice@example.com\r\n",
		"Subject: Reset your Barter password\r\n",
		"tok-123",
		"expire in 15 minutes",
	} {
		if !strings.Contains(msg, want) {
			t.Fatalf("message missing %q:\n%s", want, msg)
		}
	}
}
