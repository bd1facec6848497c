package downstream

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/your-org/flixbridge/internal/services"
	"github.com/your-org/flixbridge/pkg/metrics"
)

// probeTimeout bounds the DNS resolution and the health-check request
// independently.
const probeTimeout = 3 * time.Second

const livenessPath = "/api/healthz/liveness"

// Probe performs best-effort reachability checks against a downstream
// service. Every failure mode collapses to false; it never returns an error
// and never panics. A circuit breaker short-circuits probing while a service
// keeps failing, so dispatch attempts do not hammer a dead host.
type Probe struct {
	name     string
	resolver *net.Resolver
	client   *http.Client
	cb       *gobreaker.CircuitBreaker[bool]
	logger   *zap.Logger
	timeout  time.Duration
}

// NewProbe constructs a Probe named for the service it guards.
func NewProbe(name string, logger *zap.Logger) *Probe {
	p := &Probe{
		name:     name,
		resolver: net.DefaultResolver,
		client:   &http.Client{Timeout: probeTimeout},
		logger:   logger,
		timeout:  probeTimeout,
	}

	p.cb = gobreaker.NewCircuitBreaker[bool](gobreaker.Settings{
		Name:        "liveness-" + name,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(cbName string, from, to gobreaker.State) {
			logger.Info("liveness breaker state change",
				zap.String("breaker", cbName),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	})
	return p
}

// IsAlive reports whether the service behind cred answers its liveness
// endpoint. Missing credentials, DNS failure, connection failure, timeout,
// or a non-200 response all yield false.
func (p *Probe) IsAlive(ctx context.Context, cred services.APICredential) bool {
	alive, err := p.cb.Execute(func() (bool, error) {
		return p.check(ctx, cred)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			p.logger.Debug("liveness probe short-circuited", zap.Error(err))
		} else {
			p.logger.Debug("liveness probe failed", zap.String("host", cred.Host), zap.Error(err))
		}
		metrics.ProbeResults.WithLabelValues(p.name, "down").Inc()
		return false
	}
	metrics.ProbeResults.WithLabelValues(p.name, "up").Inc()
	return alive
}

func (p *Probe) check(ctx context.Context, cred services.APICredential) (bool, error) {
	if cred.Host == "" || cred.APIKey == "" {
		return false, errors.New("incomplete credential")
	}

	u, err := url.Parse(cred.Host)
	if err != nil || u.Hostname() == "" {
		return false, fmt.Errorf("unparseable host %q", cred.Host)
	}

	dnsCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	if _, err := p.resolver.LookupHost(dnsCtx, u.Hostname()); err != nil {
		return false, fmt.Errorf("resolve %s: %w", u.Hostname(), err)
	}

	reqCtx, cancelReq := context.WithTimeout(ctx, p.timeout)
	defer cancelReq()
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, cred.Host+livenessPath, nil)
	if err != nil {
		return false, err
	}
	req.Header.Set("X-API-Token", cred.APIKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("liveness returned %d", resp.StatusCode)
	}
	return true, nil
}
