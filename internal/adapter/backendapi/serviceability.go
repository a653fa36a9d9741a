package backendapi

import (
	"context"
	"log/slog"

	"github.com/petalpost/location-service/internal/domain"
	"github.com/petalpost/location-service/internal/observability"
)

const (
	// unavailableMessage is shown when the zone collaborator cannot be reached.
	unavailableMessage = "We couldn't confirm delivery for your area right now. Please try again in a moment."

	// expansionMessage is shown for an unserviceable verdict that carries no
	// zone copy of its own.
	expansionMessage = "We don't deliver to this area yet, but we're expanding soon."
)

// Serviceability implements domain.ServiceabilityChecker against the
// backend's delivery-zone endpoint. A collaborator failure never propagates:
// the UI always gets a renderable verdict.
type Serviceability struct {
	client  *Client
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewServiceability creates a checker over the backend client.
func NewServiceability(client *Client, logger *slog.Logger, metrics *observability.Metrics) *Serviceability {
	return &Serviceability{client: client, logger: logger, metrics: metrics}
}

// Check returns the delivery verdict for loc.
func (s *Serviceability) Check(ctx context.Context, loc domain.LocationRecord) domain.ServiceabilityResult {
	result, err := s.client.checkServiceable(ctx, loc)
	if err != nil {
		s.logger.Warn("serviceability check failed",
			"city", loc.City,
			"state", loc.State,
			"error", err,
		)
		s.metrics.ServiceabilityChecks.WithLabelValues("error").Inc()
		return domain.ServiceabilityResult{
			IsServiceable: false,
			Message:       unavailableMessage,
		}
	}

	if result.IsServiceable {
		s.metrics.ServiceabilityChecks.WithLabelValues("serviceable").Inc()
	} else {
		s.metrics.ServiceabilityChecks.WithLabelValues("unserviceable").Inc()
		if result.Message == "" {
			result.Message = expansionMessage
		}
	}
	return result
}
