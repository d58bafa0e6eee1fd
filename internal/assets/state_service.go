package assets

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/hugh/asset-shipper/internal/assets/types"
	"github.com/hugh/asset-shipper/internal/repository"
)

// StateService re-evaluates the state of primary documents from their
// provider presence, their opinions and the type's policy coverage.
type StateService struct {
	repo     repository.Repository
	types    TypeRegistry
	policies PolicyLookup
	logger   *slog.Logger
}

// NewStateService creates a new state service
func NewStateService(repo repository.Repository, registry TypeRegistry, policies PolicyLookup, logger *slog.Logger) *StateService {
	return &StateService{
		repo:     repo,
		types:    registry,
		policies: policies,
		logger:   logger,
	}
}

// Evaluate runs the state pass for the given types, or every registered type
// of the source when none are given. Only changed states are written. It
// returns the number of documents updated.
func (s *StateService) Evaluate(ctx context.Context, tenantID, source string, assetTypes []string) (changed int, err error) {
	if tenantID == "" || source == "" {
		return 0, fmt.Errorf("%w: tenant and data source are required", ErrInvalidJob)
	}

	if len(assetTypes) == 0 {
		assetTypes, err = s.types.ListAssetTypes(ctx, tenantID, source)
		if err != nil {
			return 0, fmt.Errorf("listing asset types: %w", err)
		}
	}
	assetTypes = append([]string(nil), assetTypes...)
	sort.Strings(assetTypes)

	batch := s.repo.NewBatch()
	defer func() {
		if err != nil {
			batch.Cancel()
		}
	}()

	for _, assetType := range assetTypes {
		updates, err := s.evaluateType(ctx, tenantID, source, assetType)
		if err != nil {
			return 0, fmt.Errorf("evaluating %s: %w", assetType, err)
		}

		index := repository.Index{Tenant: tenantID, Name: IndexName(source, assetType)}
		ids := make([]string, 0, len(updates))
		for id := range updates {
			ids = append(ids, id)
		}
		sort.Strings(ids)

		for _, id := range ids {
			fields := map[string]any{types.KeyAssetState: string(updates[id].AssetState)}
			if err := batch.UpdateFields(index, id, fields); err != nil {
				return 0, err
			}
		}
		changed += len(ids)
	}

	if err := batch.Flush(ctx); err != nil {
		return 0, fmt.Errorf("flushing state updates: %w", err)
	}

	s.logger.Info("asset states evaluated",
		"tenant", tenantID,
		"source", source,
		"types", len(assetTypes),
		"changed", changed,
	)
	return changed, nil
}

func (s *StateService) evaluateType(ctx context.Context, tenantID, source, assetType string) (map[string]types.StateRecord, error) {
	managed, err := s.policies.IsTypeManaged(ctx, tenantID, source, assetType)
	if err != nil {
		return nil, fmt.Errorf("checking policies: %w", err)
	}

	primaries, err := s.repo.GetStates(ctx, repository.Index{Tenant: tenantID, Name: IndexName(source, assetType)})
	if err != nil {
		return nil, err
	}
	if len(primaries) == 0 {
		return nil, nil
	}

	opinions, err := s.repo.GetStates(ctx, repository.Index{Tenant: tenantID, Name: OpinionIndexName(source, assetType)})
	if err != nil {
		return nil, err
	}

	return EvaluateAssetStates(primaries, opinions, managed), nil
}
