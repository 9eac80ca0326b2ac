package models

import (
	"errors"
	"testing"
	"time"
)

// ---------------------------------------------------------------------------
// NormalizeInstallationStatus
// ---------------------------------------------------------------------------

func TestNormalizeInstallationStatus(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"running", InstallationStatusRunning, false},
		{"stopped", InstallationStatusStopped, false},
		{"active", InstallationStatusRunning, false},
		{"inactive", InstallationStatusStopped, false},
		{"ACTIVE", InstallationStatusRunning, false},
		{" Inactive ", InstallationStatusStopped, false},
		{"pending", InstallationStatusPending, false},
		{"installing", InstallationStatusInstalling, false},
		{"failed", InstallationStatusFailed, false},
		{"", "", true},
		{"paused", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeInstallationStatus(tt.in)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidStatus) {
					t.Errorf("NormalizeInstallationStatus(%q) error = %v, want ErrInvalidStatus", tt.in, err)
				}
				return
			}
			if err != nil || got != tt.want {
				t.Errorf("NormalizeInstallationStatus(%q) = %q, %v; want %q", tt.in, got, err, tt.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// APIKey.IsExpired
// ---------------------------------------------------------------------------

func TestAPIKey_IsExpired(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)

	if (&APIKey{}).IsExpired(now) {
		t.Error("key without expiry should never be expired")
	}
	if (&APIKey{ExpiresAt: &future}).IsExpired(now) {
		t.Error("key expiring in the future should not be expired")
	}
	if !(&APIKey{ExpiresAt: &past}).IsExpired(now) {
		t.Error("key with past expiry should be expired")
	}
	if !(&APIKey{ExpiresAt: &now}).IsExpired(now) {
		t.Error("key expiring exactly now should be expired")
	}
}

// ---------------------------------------------------------------------------
// Small helpers
// ---------------------------------------------------------------------------

func TestWorkflowWebhook_Subscribes(t *testing.T) {
	all := &WorkflowWebhook{}
	if !all.Subscribes("server.created") {
		t.Error("empty event list should subscribe to everything")
	}
	some := &WorkflowWebhook{Events: StringList{"installation.created"}}
	if !some.Subscribes("installation.created") || some.Subscribes("server.created") {
		t.Error("explicit event list not honoured")
	}
	wild := &WorkflowWebhook{Events: StringList{"*"}}
	if !wild.Subscribes("anything") {
		t.Error("* should subscribe to everything")
	}
}

func TestBillingPlan_AllowsServers(t *testing.T) {
	three := 3
	limited := &BillingPlan{MaxServers: &three}
	if !limited.AllowsServers(3) || limited.AllowsServers(4) {
		t.Error("limit of 3 servers not enforced")
	}
	if !(&BillingPlan{}).AllowsServers(10000) {
		t.Error("nil MaxServers should be unlimited")
	}
}

func TestPasswordResetToken_Usable(t *testing.T) {
	now := time.Now()
	tok := &PasswordResetToken{ExpiresAt: now.Add(time.Hour)}
	if !tok.Usable(now) {
		t.Error("fresh token should be usable")
	}
	used := now
	tok.UsedAt = &used
	if tok.Usable(now) {
		t.Error("used token should not be usable")
	}
	expired := &PasswordResetToken{ExpiresAt: now.Add(-time.Second)}
	if expired.Usable(now) {
		t.Error("expired token should not be usable")
	}
}

func TestServerHelpers(t *testing.T) {
	s := &Server{}
	if s.HasSSHSecret() {
		t.Error("HasSSHSecret() should be false with no secret")
	}
	enc := "aa:bb"
	s.SSHSecretEncrypted = &enc
	if !s.HasSSHSecret() {
		t.Error("HasSSHSecret() should be true with a stored secret")
	}
	for _, st := range []string{"online", "offline", "maintenance", "unknown"} {
		if !IsValidServerStatus(st) {
			t.Errorf("IsValidServerStatus(%q) = false", st)
		}
	}
	if IsValidServerStatus("rebooting") {
		t.Error("IsValidServerStatus(rebooting) = true")
	}
}

func TestDefaultUserSettings(t *testing.T) {
	s := DefaultUserSettings("u1")
	if s.UserID != "u1" || s.RefreshIntervalSeconds != 30 || !s.EmailNotifications {
		t.Errorf("unexpected defaults: %+v", s)
	}
}
