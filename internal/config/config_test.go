package config

import (
	"strings"
	"testing"
)

func TestParseAppliesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
database:
  name: greenroom
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Database.Host != "127.0.0.1" || cfg.Database.Port != 3306 || cfg.Database.User != "root" {
		t.Errorf("database defaults = %+v", cfg.Database)
	}
	if cfg.Server.Port != 8700 || cfg.Server.WebhookPath != "/webhook" {
		t.Errorf("server defaults = %+v", cfg.Server)
	}
	if cfg.Chat.Platform != "webhook" {
		t.Errorf("platform default = %q", cfg.Chat.Platform)
	}
	if cfg.Booking.CutoffHour != 21 || cfg.Booking.BlackoutStartHour != 21 || cfg.Booking.BlackoutEndHour != 23 {
		t.Errorf("booking defaults = %+v", cfg.Booking)
	}
	if cfg.Booking.ConfigTTLMinutes != 5 {
		t.Errorf("config ttl default = %d", cfg.Booking.ConfigTTLMinutes)
	}
	if cfg.Lottery.RankCron != "0 22 * * *" || cfg.Lottery.ConfirmCron != "30 22 * * *" {
		t.Errorf("lottery cron defaults = %+v", cfg.Lottery)
	}
}

func TestParseFullConfig(t *testing.T) {
	cfg, err := Parse([]byte(`
database:
  host: db.internal
  port: 3307
  name: greenroom
  user: app
  password: secret
server:
  port: 9000
  webhook_path: /hooks/chat
chat:
  platform: discord
  discord:
    bot_token: tok
    channel_id: C1
booking:
  cutoff_hour: 20
  blackout_start_hour: 20
  blackout_end_hour: 22
lottery:
  enabled: true
  rank_cron: "0 21 * * *"
notify:
  slack_webhook_url: https://hooks.slack.example/x
`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Database.Host != "db.internal" || cfg.Database.Port != 3307 {
		t.Errorf("database = %+v", cfg.Database)
	}
	if cfg.Chat.Platform != "discord" || cfg.Chat.Discord.BotToken != "tok" {
		t.Errorf("chat = %+v", cfg.Chat)
	}
	if !cfg.Lottery.Enabled || cfg.Lottery.RankCron != "0 21 * * *" {
		t.Errorf("lottery = %+v", cfg.Lottery)
	}
	if cfg.Notify.SlackWebhookURL == "" {
		t.Error("notify url lost")
	}
}

func TestValidateErrors(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{"missing database name", ``, "database.name is required"},
		{"unknown platform", "database:\n  name: g\nchat:\n  platform: carrier-pigeon\n", "not supported"},
		{"discord without token", "database:\n  name: g\nchat:\n  platform: discord\n", "bot_token is required"},
		{"cutoff out of range", "database:\n  name: g\nbooking:\n  cutoff_hour: 25\n", "cutoff_hour"},
		{"inverted blackout", "database:\n  name: g\nbooking:\n  blackout_start_hour: 23\n  blackout_end_hour: 22\n", "blackout_start_hour must be before"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Parse([]byte(tc.yaml))
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("error = %q, want substring %q", err, tc.want)
			}
		})
	}
}

func TestParseRejectsMalformedYAML(t *testing.T) {
	if _, err := Parse([]byte("database: [")); err == nil {
		t.Fatal("expected parse error")
	}
}
