package distribution

import (
	"context"

	"github.com/signalsfoundry/recovery-simulator/model"
)

// BridgeService is a placeholder for resources that are exchanged with
// systems outside the model. It distributes nothing.
type BridgeService struct {
	resource string
}

func NewBridgeService(resource string) *BridgeService { return &BridgeService{resource: resource} }

func (b *BridgeService) Resource() string                     { return b.resource }
func (b *BridgeService) Distribute(context.Context) error     { return nil }
func (b *BridgeService) TotalSupply(model.Scope) float64      { return 0 }
func (b *BridgeService) TotalDemand(model.Scope) float64      { return 0 }
func (b *BridgeService) TotalConsumption(model.Scope) float64 { return 0 }
