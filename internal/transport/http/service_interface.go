package http

import (
	"context"
	"time"

	"github.com/geisspaul/MoProMa-Auswertung/internal/segments"
	"github.com/geisspaul/MoProMa-Auswertung/internal/services"
)

// ReductionService defines the interface for reduction operations
type ReductionService interface {
	Reduce(ctx context.Context, c services.Campaign) (*services.Reduction, error)
	Get(id string) (*services.Reduction, error)
	List() []*services.Reduction
	Settling(id, column string, target segments.Target) ([]segments.SettlingSample, error)
	Location() *time.Location
}

var _ ReductionService = (*services.ReductionService)(nil)
