package types

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Record is one flat row produced by a mapper for a single asset.
type Record map[string]any

// String returns the trimmed string form of a field, or "" when the field is
// absent or null.
func (r Record) String(key string) string {
	v, ok := r[key]
	if !ok {
		return ""
	}
	return strings.TrimSpace(StringValue(v))
}

// Has reports whether key is present with a non-blank value.
func (r Record) Has(key string) bool {
	return r.String(key) != ""
}

// JSON returns a stable serialized view of the record for error messages.
func (r Record) JSON() string {
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Sprintf("%v", map[string]any(r))
	}
	return string(b)
}

// StringValue renders a decoded JSON value as a plain string. Numbers keep
// their integer form so that ids such as 123456789012 are not rendered in
// exponent notation.
func StringValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	case map[string]any, []any:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(b)
	default:
		return fmt.Sprintf("%v", val)
	}
}

// TagTuple is one entry of a tag side list. It carries the identity key fields
// of the asset it belongs to plus "key" and "value".
type TagTuple map[string]string

// Tag tuple keys.
const (
	TagKey   = "key"
	TagValue = "value"
)

// TimeLayout is the serialized timestamp format. Seconds are always zero.
const TimeLayout = "2006-01-02 15:04:00-0700"

// Timestamp is a minute-precision UTC instant.
type Timestamp struct {
	time.Time
}

// NewTimestamp truncates t to the minute in UTC.
func NewTimestamp(t time.Time) Timestamp {
	if t.IsZero() {
		return Timestamp{}
	}
	return Timestamp{Time: t.UTC().Truncate(time.Minute)}
}

// ParseTimestamp accepts the serialized layout and RFC 3339.
func ParseTimestamp(s string) (Timestamp, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Timestamp{}, nil
	}
	for _, layout := range []string{TimeLayout, "2006-01-02 15:04:05-0700", time.RFC3339, time.RFC3339Nano} {
		if t, err := time.Parse(layout, s); err == nil {
			return NewTimestamp(t), nil
		}
	}
	return Timestamp{}, fmt.Errorf("parsing timestamp %q", s)
}

// String formats the timestamp, or "" when zero.
func (t Timestamp) String() string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(TimeLayout)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.String())
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	var s *string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	if s == nil {
		*t = Timestamp{}
		return nil
	}
	parsed, err := ParseTimestamp(*s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// AssetState is the lifecycle classification of a primary asset.
type AssetState string

const (
	AssetStateManaged     AssetState = "managed"
	AssetStateUnmanaged   AssetState = "unmanaged"
	AssetStateSuspicious  AssetState = "suspicious"
	AssetStateReconciling AssetState = "reconciling"
)

// Valid reports whether s is one of the known states.
func (s AssetState) Valid() bool {
	switch s {
	case AssetStateManaged, AssetStateUnmanaged, AssetStateSuspicious, AssetStateReconciling:
		return true
	}
	return false
}

// Opinion is one secondary source's view of an asset.
type Opinion struct {
	Data          string    `json:"data"`
	FirstScanDate Timestamp `json:"firstScanDate"`
	LastScanDate  Timestamp `json:"lastScanDate"`
	ServiceName   string    `json:"serviceName,omitempty"`
	DeepLink      string    `json:"deepLink,omitempty"`
}

// Opinions maps reporting source to reporting service to opinion.
type Opinions map[string]map[string]Opinion

// Count returns the number of (source, service) entries.
func (o Opinions) Count() int {
	n := 0
	for _, services := range o {
		n += len(services)
	}
	return n
}

// Get returns the opinion for a source and service.
func (o Opinions) Get(source, service string) (Opinion, bool) {
	services, ok := o[source]
	if !ok {
		return Opinion{}, false
	}
	op, ok := services[service]
	return op, ok
}

// Clone returns a copy whose maps can be mutated without touching o.
func (o Opinions) Clone() Opinions {
	if o == nil {
		return Opinions{}
	}
	out := make(Opinions, len(o))
	for source, services := range o {
		inner := make(map[string]Opinion, len(services))
		for service, op := range services {
			inner[service] = op
		}
		out[source] = inner
	}
	return out
}

// StateRecord is the minimal projection the state pass reads per document.
type StateRecord struct {
	DocID              string
	AssetState         AssetState
	HasPrimaryProvider bool
}

// TypeMetadata describes how mapper records of one asset type are identified.
type TypeMetadata struct {
	Name        string
	DisplayName string
	IDField     string
	DocIDFields []string
	// Relations lists child documents that may be routed under this type.
	Relations []string
}

// HasRelation reports whether child is a mapped relation of the type.
func (m *TypeMetadata) HasRelation(child string) bool {
	for _, r := range m.Relations {
		if r == child {
			return true
		}
	}
	return false
}
