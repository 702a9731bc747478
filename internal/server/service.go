package server

import (
	"context"

	"github.com/glassline/configurator/internal/core"
	"github.com/glassline/configurator/internal/repository"
	"github.com/glassline/configurator/internal/service"
)

type Service interface {
	ResolveConfiguration(ctx context.Context, productID int64, selection core.Selection) (service.ResolveResult, error)
	ParseSKU(ctx context.Context, sku string) (service.ParseResult, error)
	ListCandidates(ctx context.Context, lineID int64, filter map[string]int64) ([]repository.ProductCandidate, error)
}

var _ Service = (*service.Service)(nil)
