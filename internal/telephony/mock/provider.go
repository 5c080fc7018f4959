package mock

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/acme/voice-campaign-engine/internal/config"
	"github.com/acme/voice-campaign-engine/internal/telephony"
)

// Provider simulates outbound call behaviour: a fixed call duration and a
// configurable success probability (defaults 2s, 0.9).
type Provider struct {
	successRate  float64
	callDuration time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

// NewProvider constructs a mock provider.
func NewProvider(cfg config.TelephonyConfig) *Provider {
	successRate := cfg.SuccessRate
	if successRate <= 0 || successRate > 1 {
		successRate = 0.9
	}
	callDuration := cfg.CallDuration
	if callDuration <= 0 {
		callDuration = 2 * time.Second
	}
	return &Provider{
		successRate:  successRate,
		callDuration: callDuration,
		rng:          rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Place simulates a call attempt.
func (p *Provider) Place(ctx context.Context, req telephony.PlacementRequest) (telephony.Result, error) {
	externalID := "mock-" + uuid.NewString()

	select {
	case <-ctx.Done():
		return telephony.Result{
			ExternalCallID: externalID,
			Duration:       p.callDuration,
			Error:          ctx.Err().Error(),
		}, ctx.Err()
	case <-time.After(p.callDuration):
	}

	p.mu.Lock()
	roll := p.rng.Float64()
	p.mu.Unlock()

	if roll <= p.successRate {
		return telephony.Result{
			Succeeded:      true,
			ExternalCallID: externalID,
			Duration:       p.callDuration,
		}, nil
	}

	return telephony.Result{
		ExternalCallID: externalID,
		Duration:       p.callDuration,
		Error:          "simulated failure: call did not connect",
	}, nil
}
