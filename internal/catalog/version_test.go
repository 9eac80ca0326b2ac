package catalog

import "testing"

func TestValidateVersion(t *testing.T) {
	tests := []struct {
		name    string
		version string
		wantErr bool
	}{
		{"release", "1.2.3", false},
		{"pre-release", "1.0.0-beta.1", false},
		{"build metadata", "1.0.0+build.1", false},
		{"leading v", "v2.4.0", false},
		{"two components", "1.0", false},
		{"empty", "", true},
		{"text", "latest", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateVersion(tt.version)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateVersion(%q) error = %v, wantErr %v", tt.version, err, tt.wantErr)
			}
		})
	}
}

func TestCompareVersions(t *testing.T) {
	tests := []struct {
		a, b    string
		want    int
		wantErr bool
	}{
		{"1.0.0", "1.0.0", 0, false},
		{"1.0.0", "1.0.1", -1, false},
		{"1.10.0", "1.9.0", 1, false},
		{"1.0.0-rc.1", "1.0.0", -1, false},
		{"bad", "1.0.0", 0, true},
		{"1.0.0", "bad", 0, true},
	}
	for _, tt := range tests {
		got, err := CompareVersions(tt.a, tt.b)
		if (err != nil) != tt.wantErr {
			t.Errorf("CompareVersions(%q, %q) error = %v, wantErr %v", tt.a, tt.b, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && got != tt.want {
			t.Errorf("CompareVersions(%q, %q) = %d, want %d", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestUpdateAvailable(t *testing.T) {
	tests := []struct {
		installed, latest string
		want              bool
	}{
		{"8.0.1", "8.0.2", true},
		{"8.0.2", "8.0.2", false},
		{"9.0.0", "8.0.2", false},
		{"1.24", "1.25.3", true},
		{"latest", "1.0.0", false},
		{"", "1.0.0", false},
		{"1.0.0", "", false},
	}
	for _, tt := range tests {
		if got := UpdateAvailable(tt.installed, tt.latest); got != tt.want {
			t.Errorf("UpdateAvailable(%q, %q) = %v, want %v", tt.installed, tt.latest, got, tt.want)
		}
	}
}
