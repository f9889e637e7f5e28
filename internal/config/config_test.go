package config

import "testing"

func TestShouldMigrate(t *testing.T) {
	tests := []struct {
		name  string
		mode  string
		force bool
		want  bool
	}{
		{"debug migrates by default", "debug", false, true},
		{"release skips migration", "release", false, false},
		{"release with force flag migrates", "release", true, true},
		{"empty mode migrates", "", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{ForceMigrate: tt.force}
			cfg.Server.Mode = tt.mode
			if got := cfg.ShouldMigrate(); got != tt.want {
				t.Errorf("ShouldMigrate() = %v, want %v", got, tt.want)
			}
		})
	}
}
