package sim

import (
	"math"

	"github.com/signalsfoundry/recovery-simulator/kb"
)

const damageTolerance = 1e-10

// RecoveryTargetChecker decides whether the system has recovered and the
// assessment can stop.
type RecoveryTargetChecker interface {
	TargetMet(step, disasterStep int, store *kb.ComponentStore) bool
}

// CompleteDamageRecovery is met after the disaster once no component is
// damaged.
type CompleteDamageRecovery struct{}

func (CompleteDamageRecovery) TargetMet(step, disasterStep int, store *kb.ComponentStore) bool {
	if step <= disasterStep {
		return false
	}
	for _, c := range store.All() {
		if math.Abs(c.DamageLevel()) > damageTolerance {
			return false
		}
	}
	return true
}
