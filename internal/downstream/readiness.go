// Package downstream decides whether the bridge may contact its downstream
// services: credential readiness, liveness probing, and the dispatch
// authorization gate. Forwarding itself happens behind the Forwarder
// interface.
package downstream

import (
	"fmt"

	"github.com/your-org/flixbridge/internal/services"
)

// Readiness reports whether one service has complete credentials. It is a
// value, not an error: missing credentials are fatal only to that service's
// dispatch path for the current event.
type Readiness struct {
	Service string `json:"service"`
	Ready   bool   `json:"ready"`
	Reason  string `json:"reason,omitempty"`
}

func ready(service string) Readiness {
	return Readiness{Service: service, Ready: true}
}

func notReady(service, format string, args ...any) Readiness {
	return Readiness{Service: service, Reason: fmt.Sprintf(format, args...)}
}

// CheckReadiness is a pure predicate over the credential document: Ready iff
// every required field for the service kind is present and non-empty. The
// reason names the missing section or field.
func CheckReadiness(cfg *services.Config, service string) Readiness {
	if cfg == nil {
		return notReady(service, "missing configuration")
	}

	switch service {
	case services.Autobrr:
		return checkAPICredential(service, cfg.Autobrr)
	case services.Radarr:
		return checkAPICredential(service, cfg.Radarr)
	case services.Qbittorrent:
		return checkBasicCredential(service, cfg.Qbittorrent)
	default:
		return notReady(service, "unknown service %q", service)
	}
}

func checkAPICredential(service string, cred services.APICredential) Readiness {
	if cred == (services.APICredential{}) {
		return notReady(service, "missing %q section", service)
	}
	if cred.Host == "" {
		return notReady(service, "missing %q in %q section", "host", service)
	}
	if cred.APIKey == "" {
		return notReady(service, "missing %q in %q section", "apikey", service)
	}
	return ready(service)
}

func checkBasicCredential(service string, cred services.BasicCredential) Readiness {
	if cred == (services.BasicCredential{}) {
		return notReady(service, "missing %q section", service)
	}
	if cred.Host == "" {
		return notReady(service, "missing %q in %q section", "host", service)
	}
	if cred.Username == "" {
		return notReady(service, "missing %q in %q section", "username", service)
	}
	if cred.Password == "" {
		return notReady(service, "missing %q in %q section", "password", service)
	}
	return ready(service)
}
