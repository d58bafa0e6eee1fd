package assets

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/hugh/asset-shipper/internal/assets/types"
)

// minParallelTags is the side list size below which indexing stays serial.
const minParallelTags = 512

const keySeparator = "\x1f"

// tagIndex groups side-list tag tuples by the identity key of the asset they
// belong to. A tuple is associated with a record only when every key field in
// the tuple equals the record's value.
type tagIndex struct {
	keyFields []string
	byKey     map[string][]types.TagTuple
}

type keyedTuple struct {
	key   string
	tuple types.TagTuple
}

func buildTagIndex(ctx context.Context, tuples []types.TagTuple, keyFields []string, workers int) (*tagIndex, error) {
	idx := &tagIndex{keyFields: keyFields, byKey: make(map[string][]types.TagTuple)}
	if len(tuples) == 0 || len(keyFields) == 0 {
		return idx, nil
	}

	if workers < 1 {
		workers = 1
	}
	if len(tuples) < minParallelTags {
		workers = 1
	}

	chunk := (len(tuples) + workers - 1) / workers
	parts := make([][]keyedTuple, (len(tuples)+chunk-1)/chunk)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i := range parts {
		i := i
		start := i * chunk
		end := start + chunk
		if end > len(tuples) {
			end = len(tuples)
		}
		g.Go(func() error {
			keyed := make([]keyedTuple, 0, end-start)
			for _, tuple := range tuples[start:end] {
				if err := gctx.Err(); err != nil {
					return err
				}
				if strings.TrimSpace(tuple[types.TagKey]) == "" {
					continue
				}
				key, ok := tupleKey(tuple, keyFields)
				if !ok {
					continue
				}
				keyed = append(keyed, keyedTuple{key: key, tuple: tuple})
			}
			parts[i] = keyed
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Merge in chunk order so tags apply in side-list order.
	for _, part := range parts {
		for _, kt := range part {
			idx.byKey[kt.key] = append(idx.byKey[kt.key], kt.tuple)
		}
	}
	return idx, nil
}

// lookup returns the tuples associated with record, in side-list order.
func (idx *tagIndex) lookup(record types.Record) []types.TagTuple {
	if idx == nil || len(idx.byKey) == 0 {
		return nil
	}
	values := make([]string, 0, len(idx.keyFields))
	for _, f := range idx.keyFields {
		v := record.String(f)
		if v == "" {
			return nil
		}
		values = append(values, v)
	}
	return idx.byKey[strings.Join(values, keySeparator)]
}

func tupleKey(tuple types.TagTuple, keyFields []string) (string, bool) {
	values := make([]string, 0, len(keyFields))
	for _, f := range keyFields {
		v := strings.TrimSpace(tuple[f])
		if v == "" {
			return "", false
		}
		values = append(values, v)
	}
	return strings.Join(values, keySeparator), true
}
