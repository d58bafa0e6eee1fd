package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"sort"
	"strings"

	"github.com/hugh/asset-shipper/internal/assets/types"
)

const (
	dataExt     = ".data"
	tagsSuffix  = "-tags"
	relationSep = "-rel-"
)

// Loader reads mapper files laid out as
//
//	<prefix>/<type>.data               records
//	<prefix>/<type>-tags.data          tag tuples
//	<prefix>/<type>-rel-<child>.data   child relation records
//
// Each file is a JSON array or one JSON object per line.
type Loader struct {
	store  ObjectStore
	logger *slog.Logger
}

func NewLoader(store ObjectStore, logger *slog.Logger) *Loader {
	return &Loader{store: store, logger: logger}
}

// ListTypes returns the asset types with a records file directly under prefix.
func (l *Loader) ListTypes(ctx context.Context, prefix string) ([]string, error) {
	names, err := l.names(ctx, prefix)
	if err != nil {
		return nil, err
	}

	var out []string
	for _, name := range names {
		if strings.HasSuffix(name, tagsSuffix) || strings.Contains(name, relationSep) {
			continue
		}
		out = append(out, name)
	}
	return out, nil
}

// LoadRecords returns the records of one type. A missing file is an error.
func (l *Loader) LoadRecords(ctx context.Context, prefix, assetType string) ([]types.Record, error) {
	key := objectKey(prefix, assetType)
	data, err := l.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("loading %s records: %w", assetType, err)
	}

	records, err := decodeRecords(data)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", key, err)
	}
	l.logger.Debug("loaded records", "key", key, "count", len(records))
	return records, nil
}

// LoadTags returns the tag tuples of one type, or nil when there are none.
func (l *Loader) LoadTags(ctx context.Context, prefix, assetType string) ([]types.TagTuple, error) {
	key := objectKey(prefix, assetType+tagsSuffix)
	data, err := l.store.Get(ctx, key)
	if err != nil {
		if errors.Is(err, ErrObjectNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("loading %s tags: %w", assetType, err)
	}

	records, err := decodeRecords(data)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", key, err)
	}

	tuples := make([]types.TagTuple, 0, len(records))
	for _, rec := range records {
		tuple := make(types.TagTuple, len(rec))
		for k, v := range rec {
			tuple[k] = types.StringValue(v)
		}
		tuples = append(tuples, tuple)
	}
	return tuples, nil
}

// LoadRelations returns child relation records of one type keyed by child name.
func (l *Loader) LoadRelations(ctx context.Context, prefix, assetType string) (map[string][]types.Record, error) {
	names, err := l.names(ctx, prefix)
	if err != nil {
		return nil, err
	}

	relations := make(map[string][]types.Record)
	for _, name := range names {
		child, ok := strings.CutPrefix(name, assetType+relationSep)
		if !ok || child == "" {
			continue
		}
		key := objectKey(prefix, name)
		data, err := l.store.Get(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("loading %s relation %s: %w", assetType, child, err)
		}
		records, err := decodeRecords(data)
		if err != nil {
			return nil, fmt.Errorf("decoding %s: %w", key, err)
		}
		relations[child] = records
	}
	return relations, nil
}

// names returns the sorted base names, without extension, of the data files
// directly under prefix.
func (l *Loader) names(ctx context.Context, prefix string) ([]string, error) {
	dir := strings.Trim(prefix, "/")
	listPrefix := dir
	if listPrefix != "" {
		listPrefix += "/"
	}

	keys, err := l.store.List(ctx, listPrefix)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var out []string
	for _, key := range keys {
		rel := strings.TrimPrefix(key, listPrefix)
		if strings.Contains(rel, "/") || !strings.HasSuffix(rel, dataExt) {
			continue
		}
		name := strings.TrimSuffix(rel, dataExt)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

func objectKey(prefix, name string) string {
	dir := strings.Trim(prefix, "/")
	if dir == "" {
		return name + dataExt
	}
	return path.Join(dir, name+dataExt)
}

// decodeRecords accepts a JSON array of objects or JSON lines. Numbers are
// kept as json.Number so ids survive unchanged.
func decodeRecords(data []byte) ([]types.Record, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}

	if trimmed[0] == '[' {
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.UseNumber()
		var records []types.Record
		if err := dec.Decode(&records); err != nil {
			return nil, err
		}
		return records, nil
	}

	var records []types.Record
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.UseNumber()
	for {
		var rec types.Record
		err := dec.Decode(&rec)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", len(records), err)
		}
		if rec != nil {
			records = append(records, rec)
		}
	}
	return records, nil
}
