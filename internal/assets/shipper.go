package assets

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/hugh/asset-shipper/internal/assets/types"
	"github.com/hugh/asset-shipper/internal/repository"
)

// ErrInvalidJob is returned when a job lacks its tenant or data source.
var ErrInvalidJob = errors.New("invalid job")

// Job is one unit of work: a full snapshot of mapper output for a data
// source, optionally reported by another source as opinions.
type Job struct {
	TenantID          string
	DataSource        string
	SourceDisplayName string

	ReportingSource      string
	ReportingService     string
	ReportingServiceName string

	// Prefix locates the mapper files in object storage.
	Prefix string
	// AssetTypes limits the run. Empty means every type found under Prefix.
	AssetTypes []string
	ScanTime   time.Time
}

// CompletionEvent is published after a job's batch has been flushed.
type CompletionEvent struct {
	TenantID         string    `json:"tenant_id"`
	DataSource       string    `json:"data_source"`
	ReportingSource  string    `json:"reporting_source,omitempty"`
	ReportingService string    `json:"reporting_service,omitempty"`
	Prefix           string    `json:"prefix"`
	AssetTypes       []string  `json:"asset_types"`
	CompletedAt      time.Time `json:"completed_at"`
}

// ShipResult counts the documents written by one job.
type ShipResult struct {
	AssetTypes           []string
	NewAssets            int
	UpdatedAssets        int
	MissingAssets        int
	NewPrimaryAssets     int
	UpdatedPrimaryAssets int
	DeletedPrimaryAssets int
	DeletedOpinions      int
	RelationDocuments    int
}

func (r *ShipResult) add(res *MergeResult) {
	r.NewAssets += len(res.NewAssets)
	r.UpdatedAssets += len(res.UpdatedAssets)
	r.MissingAssets += len(res.MissingAssets)
	r.NewPrimaryAssets += len(res.NewPrimaryAssets)
	r.UpdatedPrimaryAssets += len(res.UpdatedPrimaryAssets)
	r.DeletedPrimaryAssets += len(res.DeletedPrimaryAssets)
	r.DeletedOpinions += len(res.DeletedOpinionAssets)
}

// ShipperConfig tunes translation.
type ShipperConfig struct {
	TagPrefix  string
	TagWorkers int
}

// Shipper loads mapper output, reconciles it against stored documents and
// writes the result through one batch per job.
type Shipper struct {
	repo     repository.Repository
	records  RecordSource
	types    TypeRegistry
	policies PolicyLookup
	accounts AccountResolver
	notifier Notifier
	merger   *Merger
	cfg      ShipperConfig
	logger   *slog.Logger
}

// NewShipper creates a new shipper. accounts and notifier may be nil.
func NewShipper(
	repo repository.Repository,
	records RecordSource,
	registry TypeRegistry,
	policies PolicyLookup,
	accounts AccountResolver,
	notifier Notifier,
	cfg ShipperConfig,
	logger *slog.Logger,
) *Shipper {
	return &Shipper{
		repo:     repo,
		records:  records,
		types:    registry,
		policies: policies,
		accounts: accounts,
		notifier: notifier,
		merger:   NewMerger(logger),
		cfg:      cfg,
		logger:   logger,
	}
}

// Ship runs a job. Nothing is written unless every asset type reconciles;
// any failure cancels the batch.
func (s *Shipper) Ship(ctx context.Context, job Job) (result *ShipResult, err error) {
	if job.TenantID == "" || job.DataSource == "" {
		return nil, fmt.Errorf("%w: tenant and data source are required", ErrInvalidJob)
	}
	if job.ScanTime.IsZero() {
		job.ScanTime = time.Now().UTC()
	}

	assetTypes := append([]string(nil), job.AssetTypes...)
	if len(assetTypes) == 0 {
		assetTypes, err = s.records.ListTypes(ctx, job.Prefix)
		if err != nil {
			return nil, fmt.Errorf("listing asset types: %w", err)
		}
	}
	sort.Strings(assetTypes)

	s.logger.Info("starting job",
		"tenant", job.TenantID,
		"source", job.DataSource,
		"reporting_source", job.ReportingSource,
		"prefix", job.Prefix,
		"types", len(assetTypes),
	)

	batch := s.repo.NewBatch()
	defer func() {
		if err != nil {
			batch.Cancel()
		}
	}()

	result = &ShipResult{AssetTypes: assetTypes}
	for _, assetType := range assetTypes {
		if err := s.shipType(ctx, job, assetType, batch, result); err != nil {
			return nil, fmt.Errorf("shipping %s: %w", assetType, err)
		}
	}

	pending := batch.Len()
	if err := batch.Flush(ctx); err != nil {
		return nil, fmt.Errorf("flushing batch: %w", err)
	}

	s.logger.Info("job completed",
		"tenant", job.TenantID,
		"source", job.DataSource,
		"operations", pending,
		"new", result.NewAssets,
		"updated", result.UpdatedAssets,
		"missing", result.MissingAssets,
	)

	if s.notifier != nil {
		event := CompletionEvent{
			TenantID:         job.TenantID,
			DataSource:       job.DataSource,
			ReportingSource:  job.ReportingSource,
			ReportingService: job.ReportingService,
			Prefix:           job.Prefix,
			AssetTypes:       assetTypes,
			CompletedAt:      time.Now().UTC(),
		}
		if err := s.notifier.PublishCompletion(ctx, event); err != nil {
			return result, fmt.Errorf("publishing completion: %w", err)
		}
	}

	return result, nil
}

func (s *Shipper) shipType(ctx context.Context, job Job, assetType string, batch repository.Batch, result *ShipResult) error {
	meta, err := s.types.AssetType(ctx, job.TenantID, job.DataSource, assetType)
	if err != nil {
		return fmt.Errorf("loading metadata: %w", err)
	}
	if meta == nil {
		return fmt.Errorf("asset type %q: %w", assetType, ErrMissingMetadata)
	}

	managed, err := s.policies.IsTypeManaged(ctx, job.TenantID, job.DataSource, assetType)
	if err != nil {
		return fmt.Errorf("checking policies: %w", err)
	}

	records, err := s.records.LoadRecords(ctx, job.Prefix, assetType)
	if err != nil {
		return err
	}
	tags, err := s.records.LoadTags(ctx, job.Prefix, assetType)
	if err != nil {
		return err
	}

	translator, err := NewTranslator(ctx, TranslatorConfig{
		TenantID:             job.TenantID,
		DataSource:           job.DataSource,
		SourceDisplayName:    job.SourceDisplayName,
		Type:                 *meta,
		ReportingSource:      job.ReportingSource,
		ReportingService:     job.ReportingService,
		ReportingServiceName: job.ReportingServiceName,
		TagPrefix:            s.cfg.TagPrefix,
		Tags:                 tags,
		TagWorkers:           s.cfg.TagWorkers,
		ScanTime:             job.ScanTime,
		State:                StateFromPolicy(managed),
		Accounts:             s.accounts,
	}, s.logger)
	if err != nil {
		return err
	}

	primary := repository.Index{Tenant: job.TenantID, Name: IndexName(job.DataSource, assetType)}
	opinions := repository.Index{Tenant: job.TenantID, Name: OpinionIndexName(job.DataSource, assetType)}
	target := primary

	var existing, existingPrimary map[string]*types.Document
	if translator.IsOpinion() {
		target = opinions
		if existing, err = s.repo.GetAssets(ctx, opinions, true, nil); err != nil {
			return err
		}
		if existingPrimary, err = s.repo.GetAssets(ctx, primary, true, nil); err != nil {
			return err
		}
	} else if existing, err = s.repo.GetAssets(ctx, primary, true, nil); err != nil {
		return err
	}

	res, err := s.merger.Process(ctx, translator, existing, records, existingPrimary)
	if err != nil {
		return err
	}

	if err := writeResult(batch, target, primary, res); err != nil {
		return err
	}
	result.add(res)

	relations, err := s.records.LoadRelations(ctx, job.Prefix, assetType)
	if err != nil {
		return err
	}
	written, err := s.writeRelations(batch, target, meta, translator, relations)
	if err != nil {
		return err
	}
	result.RelationDocuments += written

	s.logger.Debug("reconciled asset type",
		"type", assetType,
		"index", target.Name,
		"records", len(records),
		"existing", len(existing),
		"new", len(res.NewAssets),
		"updated", len(res.UpdatedAssets),
		"missing", len(res.MissingAssets),
		"relations", written,
	)
	return nil
}

// writeResult queues every partition in doc id order. target receives the
// reconciled documents; primary receives stubs in the opinion workflow.
func writeResult(batch repository.Batch, target, primary repository.Index, res *MergeResult) error {
	upserts := []struct {
		index repository.Index
		docs  map[string]*types.Document
	}{
		{target, res.NewAssets},
		{target, res.UpdatedAssets},
		{target, res.MissingAssets},
		{primary, res.NewPrimaryAssets},
		{primary, res.UpdatedPrimaryAssets},
	}
	for _, u := range upserts {
		for _, id := range sortedIDs(u.docs) {
			if err := batch.Upsert(u.index, id, u.docs[id]); err != nil {
				return err
			}
		}
	}

	for _, id := range sortedIDs(res.DeletedOpinionAssets) {
		if err := batch.Delete(target, id); err != nil {
			return err
		}
	}
	for _, id := range sortedIDs(res.DeletedPrimaryAssets) {
		if err := batch.Delete(primary, id); err != nil {
			return err
		}
	}
	return nil
}

// writeRelations routes child records under their parent document.
func (s *Shipper) writeRelations(batch repository.Batch, index repository.Index, meta *types.TypeMetadata, helper DocumentHelper, relations map[string][]types.Record) (int, error) {
	children := make([]string, 0, len(relations))
	for child := range relations {
		children = append(children, child)
	}
	sort.Strings(children)

	written := 0
	for _, child := range children {
		if !meta.HasRelation(child) {
			return written, fmt.Errorf("relation %q of %q: %w", child, meta.Name, ErrMissingMetadata)
		}

		for i, record := range relations[child] {
			parentID, err := helper.DocID(record)
			if err != nil {
				if errors.Is(err, ErrInvalidIdentity) {
					s.logger.Warn("skipping relation without parent identity", "child", child, "index", i, "error", err)
					continue
				}
				return written, err
			}

			body, childID, err := relationDocument(meta.Name, child, parentID, record)
			if err != nil {
				return written, err
			}
			if err := batch.RoutedUpsert(index, parentID, childID, body); err != nil {
				return written, err
			}
			written++
		}
	}
	return written, nil
}

// relationDocument builds a child document joined to parentID. The child id
// is stable for identical records.
func relationDocument(assetType, child, parentID string, record types.Record) (map[string]any, string, error) {
	raw, err := json.Marshal(record)
	if err != nil {
		return nil, "", fmt.Errorf("encoding %s relation: %w", child, err)
	}
	sum := sha256.Sum256(raw)
	childID := parentID + "_" + child + "_" + hex.EncodeToString(sum[:8])

	body := make(map[string]any, len(record)+1)
	for k, v := range record {
		body[k] = v
	}
	body[assetType+types.RelationsSuffix] = map[string]any{
		"name":   child,
		"parent": parentID,
	}
	return body, childID, nil
}
