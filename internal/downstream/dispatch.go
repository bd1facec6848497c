package downstream

import (
	"context"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/your-org/flixbridge/internal/eventlog"
	"github.com/your-org/flixbridge/internal/services"
	"github.com/your-org/flixbridge/pkg/metrics"
)

// Forwarder delivers a committed event to a downstream service. The bridge
// only authorizes dispatch; delivery belongs to the collaborator behind this
// interface.
type Forwarder interface {
	Forward(ctx context.Context, ev eventlog.Event) error
}

// LivenessProber abstracts Probe for tests.
type LivenessProber interface {
	IsAlive(ctx context.Context, cred services.APICredential) bool
}

// Decision is the outcome of the dispatch authorization gate. Forwarded is
// set only when a forwarder is registered for the service and delivery
// succeeded.
type Decision struct {
	Service   string `json:"service"`
	Allowed   bool   `json:"allowed"`
	Forwarded bool   `json:"forwarded"`
	Reason    string `json:"reason,omitempty"`
}

// Dispatcher gates dispatch per service: credentials must be complete, the
// release must pass the configured filters, and the service must answer its
// liveness probe. The gate is evaluated fresh per event; a denial is fatal
// only to that service's dispatch path.
type Dispatcher struct {
	cfg        *services.Config
	probes     map[string]LivenessProber
	forwarders map[string]Forwarder
	logger     *zap.Logger
}

// NewDispatcher builds a Dispatcher with one probe per API service.
func NewDispatcher(cfg *services.Config, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{
		cfg: cfg,
		probes: map[string]LivenessProber{
			services.Autobrr: NewProbe(services.Autobrr, logger),
			services.Radarr:  NewProbe(services.Radarr, logger),
		},
		forwarders: map[string]Forwarder{},
		logger:     logger,
	}
}

// WithProbe replaces the probe for a service. Used by tests.
func (d *Dispatcher) WithProbe(service string, probe LivenessProber) *Dispatcher {
	d.probes[service] = probe
	return d
}

// WithForwarder registers the delivery collaborator for a service.
func (d *Dispatcher) WithForwarder(service string, fw Forwarder) *Dispatcher {
	d.forwarders[service] = fw
	return d
}

// Dispatch authorizes the event for the service and, when a forwarder is
// registered, hands it over. A forward failure does not revoke the
// authorization: the event is durable and the caller decides about retries.
func (d *Dispatcher) Dispatch(ctx context.Context, service string, ev eventlog.Event, payload map[string]any) Decision {
	dec := d.Authorize(ctx, service, payload)
	if !dec.Allowed {
		return dec
	}

	fw, registered := d.forwarders[service]
	if !registered {
		return dec
	}

	if err := fw.Forward(ctx, ev); err != nil {
		d.logger.Error("forward failed",
			zap.String("service", service),
			zap.Uint64("event_id", ev.ID),
			zap.Error(err),
		)
		return dec
	}
	dec.Forwarded = true
	return dec
}

// Authorize decides whether the payload may be dispatched to the service.
func (d *Dispatcher) Authorize(ctx context.Context, service string, payload map[string]any) Decision {
	dec := d.authorize(ctx, service, payload)
	outcome := "denied"
	if dec.Allowed {
		outcome = "allowed"
	}
	metrics.DispatchDecisions.WithLabelValues(service, outcome).Inc()
	return dec
}

func (d *Dispatcher) authorize(ctx context.Context, service string, payload map[string]any) Decision {
	r := CheckReadiness(d.cfg, service)
	if !r.Ready {
		d.logger.Warn("dispatch denied: not ready",
			zap.String("service", service),
			zap.String("reason", r.Reason),
		)
		return Decision{Service: service, Reason: r.Reason}
	}

	if ok, reason := checkFilters(d.cfg.Filters, payload); !ok {
		d.logger.Info("dispatch denied: filtered",
			zap.String("service", service),
			zap.String("reason", reason),
		)
		return Decision{Service: service, Reason: reason}
	}

	if probe, probed := d.probes[service]; probed {
		if !probe.IsAlive(ctx, d.credential(service)) {
			d.logger.Warn("dispatch denied: liveness probe failed",
				zap.String("service", service),
			)
			return Decision{Service: service, Reason: "liveness probe failed"}
		}
	}

	return Decision{Service: service, Allowed: true}
}

// Report evaluates readiness for every known service.
func (d *Dispatcher) Report() []Readiness {
	return []Readiness{
		CheckReadiness(d.cfg, services.Autobrr),
		CheckReadiness(d.cfg, services.Radarr),
		CheckReadiness(d.cfg, services.Qbittorrent),
	}
}

func (d *Dispatcher) credential(service string) services.APICredential {
	switch service {
	case services.Autobrr:
		return d.cfg.Autobrr
	case services.Radarr:
		return d.cfg.Radarr
	default:
		return services.APICredential{}
	}
}

// checkFilters applies the release thresholds from the filters section.
// Payload fields follow Autobrr's naming: Seeders, Resolution.
func checkFilters(f services.Filters, payload map[string]any) (bool, string) {
	if f.MinSeeders > 0 {
		if seeders, ok := numberField(payload, "Seeders"); ok && seeders < float64(f.MinSeeders) {
			return false, fmt.Sprintf("seeders %d below minimum %d", int(seeders), f.MinSeeders)
		}
	}

	if len(f.Quality) > 0 {
		if res, ok := payload["Resolution"].(string); ok && res != "" {
			if !slices.Contains(f.Quality, res) {
				return false, fmt.Sprintf("resolution %q not in allowed quality list", res)
			}
		}
	}

	return true, ""
}

func numberField(payload map[string]any, key string) (float64, bool) {
	switch v := payload[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	default:
		return 0, false
	}
}
