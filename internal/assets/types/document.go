package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Document is the persisted form of one asset. Reserved fields are held once
// here and written under both their legacy and current names.
type Document struct {
	DocID                  string
	EntityType             string
	EntityTypeDisplayName  string
	Source                 string
	SourceDisplayName      string
	DocType                string
	IsEntity               bool
	IsLatest               bool
	AssetState             AssetState
	FirstDiscoveryDate     Timestamp
	LastDiscoveryDate      Timestamp
	LoadDate               Timestamp
	PrimaryProvider        string
	ResourceID             string
	ResourceName           string
	AccountID              string
	AccountName            string
	Region                 string
	AssetIDDisplayName     string
	ReportingSource        string
	ReportingSourceService string
	Tags                   map[string]string
	Opinions               Opinions
	// Relations holds join keys such as "ec2_relations".
	Relations            map[string]any
	AdditionalProperties map[string]any

	// legacy keeps legacy-named values exactly as they were read.
	legacy map[string]string
}

// LegacyValue returns the value stored under the legacy name of a field when
// the document was decoded.
func (d *Document) LegacyValue(a FieldAlias) (string, bool) {
	if d.legacy == nil || a.Legacy == "" {
		return "", false
	}
	v, ok := d.legacy[a.Legacy]
	return v, ok
}

// IsOpinionStub reports whether the document is a primary synthesized from
// opinions that no primary scan has confirmed.
func (d *Document) IsOpinionStub() bool {
	return d.PrimaryProvider == ""
}

// SetTag sets a tag, allocating the map when needed.
func (d *Document) SetTag(key, value string) {
	if d.Tags == nil {
		d.Tags = make(map[string]string)
	}
	d.Tags[key] = value
}

// SetAdditional sets an additional property, allocating the map when needed.
func (d *Document) SetAdditional(key string, value any) {
	if d.AdditionalProperties == nil {
		d.AdditionalProperties = make(map[string]any)
	}
	d.AdditionalProperties[key] = value
}

// SetRelation sets a join key, allocating the map when needed.
func (d *Document) SetRelation(key string, value any) {
	if d.Relations == nil {
		d.Relations = make(map[string]any)
	}
	d.Relations[key] = value
}

// Map renders the document with every reserved field written under both names.
func (d *Document) Map() map[string]any {
	m := make(map[string]any, len(d.AdditionalProperties)+48)
	for k, v := range d.AdditionalProperties {
		m[k] = v
	}
	for k, v := range d.Relations {
		m[k] = v
	}
	put := func(a FieldAlias, v any) {
		for _, name := range a.Names() {
			m[name] = v
		}
	}
	for _, f := range StringFields {
		if v := f.Get(d); v != "" {
			put(f.Alias, v)
		}
	}
	for _, f := range BoolFields {
		put(f.Alias, f.Get(d))
	}
	for _, f := range TimeFields {
		if v := f.Get(d); !v.IsZero() {
			put(f.Alias, v.String())
		}
	}
	if len(d.Tags) > 0 {
		tags := make(map[string]string, len(d.Tags))
		for k, v := range d.Tags {
			tags[k] = v
			m[DefaultTagPrefix+k] = v
		}
		m[KeyTags] = tags
	}
	if d.PrimaryProvider != "" {
		m[KeyPrimaryProvider] = d.PrimaryProvider
	}
	if d.AssetState != "" {
		m[KeyAssetState] = string(d.AssetState)
	}
	if len(d.Opinions) > 0 {
		m[KeyOpinions] = d.Opinions
	}
	return m
}

func (d *Document) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Map())
}

func (d *Document) UnmarshalJSON(b []byte) error {
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return fmt.Errorf("decoding document: %w", err)
	}
	return d.fromMap(m)
}

// DocumentFromMap decodes a document from its map form.
func DocumentFromMap(m map[string]any) (*Document, error) {
	d := &Document{}
	if err := d.fromMap(m); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Document) fromMap(m map[string]any) error {
	*d = Document{}
	legacy := make(map[string]string)

	// lookup prefers the current name and records any legacy value seen.
	lookup := func(a FieldAlias) (any, bool) {
		if a.Legacy != "" && a.Legacy != a.Current {
			if v, ok := m[a.Legacy]; ok && v != nil {
				legacy[a.Legacy] = StringValue(v)
			}
		}
		if v, ok := m[a.Current]; ok && v != nil && StringValue(v) != "" {
			return v, true
		}
		if a.Legacy != "" {
			if v, ok := m[a.Legacy]; ok && v != nil {
				return v, true
			}
		}
		return nil, false
	}

	for _, f := range StringFields {
		if v, ok := lookup(f.Alias); ok {
			f.Set(d, StringValue(v))
		}
	}
	for _, f := range BoolFields {
		if v, ok := lookup(f.Alias); ok {
			f.Set(d, boolValue(v))
		}
	}
	for _, f := range TimeFields {
		v, ok := lookup(f.Alias)
		if !ok {
			continue
		}
		ts, err := ParseTimestamp(StringValue(v))
		if err != nil {
			return fmt.Errorf("field %s: %w", f.Alias.Current, err)
		}
		f.Set(d, ts)
	}

	if raw, ok := m[KeyTags].(map[string]any); ok {
		for k, v := range raw {
			d.SetTag(k, StringValue(v))
		}
	}
	if v, ok := m[KeyPrimaryProvider]; ok {
		d.PrimaryProvider = StringValue(v)
	}
	if v, ok := m[KeyAssetState]; ok {
		d.AssetState = AssetState(StringValue(v))
	}
	if raw, ok := m[KeyOpinions]; ok && raw != nil {
		b, err := json.Marshal(raw)
		if err != nil {
			return fmt.Errorf("encoding opinions: %w", err)
		}
		var ops Opinions
		if err := json.Unmarshal(b, &ops); err != nil {
			return fmt.Errorf("decoding opinions: %w", err)
		}
		d.Opinions = ops
	}

	for k, v := range m {
		switch {
		case strings.HasPrefix(k, DefaultTagPrefix):
			name := strings.TrimPrefix(k, DefaultTagPrefix)
			if _, ok := d.Tags[name]; !ok {
				d.SetTag(name, StringValue(v))
			}
		case strings.HasSuffix(k, RelationsSuffix) && len(k) > len(RelationsSuffix):
			d.SetRelation(k, v)
		case !IsKnownField(k):
			d.SetAdditional(k, v)
		}
	}

	if len(legacy) > 0 {
		d.legacy = legacy
	}
	return nil
}

func boolValue(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		return strings.EqualFold(strings.TrimSpace(val), "true")
	default:
		return false
	}
}
