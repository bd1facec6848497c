package downstream

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/your-org/flixbridge/internal/services"
)

func completeConfig() *services.Config {
	return &services.Config{
		Autobrr:     services.APICredential{Host: "http://autobrr:7474", APIKey: "brr-key"},
		Radarr:      services.APICredential{Host: "http://radarr:7878", APIKey: "radarr-key"},
		Qbittorrent: services.BasicCredential{Host: "http://qbit:8080", Username: "admin", Password: "adminadmin"},
		Filters:     services.Filters{MinSeeders: 0, Quality: nil},
	}
}

func TestCheckReadinessCompleteConfig(t *testing.T) {
	cfg := completeConfig()
	for _, svc := range []string{services.Autobrr, services.Radarr, services.Qbittorrent} {
		r := CheckReadiness(cfg, svc)
		assert.True(t, r.Ready, "%s should be ready", svc)
		assert.Empty(t, r.Reason)
	}
}

func TestCheckReadinessMissingSingleField(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(*services.Config)
		service    string
		wantReason string
	}{
		{"autobrr host", func(c *services.Config) { c.Autobrr.Host = "" }, services.Autobrr, "host"},
		{"autobrr apikey", func(c *services.Config) { c.Autobrr.APIKey = "" }, services.Autobrr, "apikey"},
		{"radarr host", func(c *services.Config) { c.Radarr.Host = "" }, services.Radarr, "host"},
		{"radarr apikey", func(c *services.Config) { c.Radarr.APIKey = "" }, services.Radarr, "apikey"},
		{"qbittorrent host", func(c *services.Config) { c.Qbittorrent.Host = "" }, services.Qbittorrent, "host"},
		{"qbittorrent username", func(c *services.Config) { c.Qbittorrent.Username = "" }, services.Qbittorrent, "username"},
		{"qbittorrent password", func(c *services.Config) { c.Qbittorrent.Password = "" }, services.Qbittorrent, "password"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := completeConfig()
			tc.mutate(cfg)

			r := CheckReadiness(cfg, tc.service)
			assert.False(t, r.Ready)
			assert.Contains(t, r.Reason, tc.wantReason, "reason must name the missing field")
		})
	}
}

func TestCheckReadinessMissingSection(t *testing.T) {
	cfg := completeConfig()
	cfg.Radarr = services.APICredential{}

	r := CheckReadiness(cfg, services.Radarr)
	assert.False(t, r.Ready)
	assert.Contains(t, r.Reason, "section")
	assert.Contains(t, r.Reason, "radarr")
}

func TestCheckReadinessNilConfig(t *testing.T) {
	r := CheckReadiness(nil, services.Autobrr)
	assert.False(t, r.Ready)
}

func TestCheckReadinessUnknownService(t *testing.T) {
	r := CheckReadiness(completeConfig(), "sonarr")
	assert.False(t, r.Ready)
	assert.Contains(t, r.Reason, "sonarr")
}
