package health

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrWong99/earshot/internal/journal"
	"github.com/MrWong99/earshot/internal/resilience"
	"github.com/MrWong99/earshot/pkg/provider/stt"
)

// ProviderReady fails when no speech-to-text provider was constructed.
func ProviderReady(p stt.Provider) Checker {
	return Checker{
		Name: "stt",
		Check: func(context.Context) error {
			if p == nil {
				return errors.New("no stt provider configured")
			}
			return nil
		},
	}
}

// BreakerClosed fails while cb is open. A half-open breaker is ready: it is
// letting a probe through.
func BreakerClosed(cb *resilience.CircuitBreaker) Checker {
	return Checker{
		Name: "breaker",
		Check: func(context.Context) error {
			if s := cb.State(); s == resilience.StateOpen {
				return fmt.Errorf("circuit %q is %s", cb.Name(), s)
			}
			return nil
		},
	}
}

// Pings checks an external dependency such as the journal database.
func Pings(name string, p journal.Pinger) Checker {
	return Checker{Name: name, Check: p.Ping}
}
