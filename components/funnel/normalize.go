package funnel

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/ettle/strcase"
)

const maxConversionWindowDays = 365

var breakdownAliases = map[string]BreakdownType{
	"event":           BreakdownEvent,
	"event_property":  BreakdownEvent,
	"person":          BreakdownPerson,
	"person_property": BreakdownPerson,
	"cohort":          BreakdownCohort,
}

// Normalizer canonicalizes raw filters into stable request shapes.
type Normalizer struct {
	correct IntervalCorrector
}

// NewNormalizer builds a normalizer; a nil corrector uses the default policy.
func NewNormalizer(correct IntervalCorrector) *Normalizer {
	if correct == nil {
		correct = NewIntervalCorrector(nil)
	}
	return &Normalizer{correct: correct}
}

// Normalize runs the default normalizer.
func Normalize(raw FilterSpec) (FilterSpec, error) {
	return NewNormalizer(nil).Normalize(raw)
}

// Normalize returns the canonical form of raw. It does not modify raw.
func (n *Normalizer) Normalize(raw FilterSpec) (FilterSpec, error) {
	out := FilterSpec{
		DateFrom: strings.TrimSpace(raw.DateFrom),
		DateTo:   strings.TrimSpace(raw.DateTo),
	}

	entities, err := normalizeEntities(raw.Entities)
	if err != nil {
		return FilterSpec{}, err
	}
	out.Entities = entities
	out.Properties = normalizeProperties(raw.Properties)

	breakdown := strings.TrimSpace(raw.Breakdown)
	breakdownType := canonicalToken(string(raw.BreakdownType))
	switch {
	case breakdown != "" && breakdownType == "":
		return FilterSpec{}, &NormalizationError{Field: "breakdown_type", Reason: fmt.Sprintf("breakdown %q has no source type", breakdown)}
	case breakdown != "":
		typ, ok := breakdownAliases[breakdownType]
		if !ok {
			return FilterSpec{}, &NormalizationError{Field: "breakdown_type", Reason: fmt.Sprintf("unsupported value %q", raw.BreakdownType)}
		}
		out.Breakdown = breakdown
		out.BreakdownType = typ
	}

	switch days := raw.ConversionWindowDays; {
	case days <= 0:
	case days > maxConversionWindowDays:
		out.ConversionWindowDays = maxConversionWindowDays
	default:
		out.ConversionWindowDays = days
	}

	interval := Interval(canonicalToken(string(raw.Interval)))
	if interval != "" {
		if _, ok := intervalRank[interval]; !ok {
			return FilterSpec{}, &NormalizationError{Field: "interval", Reason: fmt.Sprintf("unsupported value %q", raw.Interval)}
		}
	}
	out.Interval = n.correct(out.DateFrom, out.DateTo, interval)
	return out, nil
}

func normalizeEntities(raw []Entity) ([]Entity, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	entities := make([]Entity, 0, len(raw))
	for i, e := range raw {
		id := strings.TrimSpace(e.ID)
		if id == "" {
			return nil, &NormalizationError{Field: fmt.Sprintf("entities[%d].id", i), Reason: "identifier is required"}
		}
		kind := EntityKind(canonicalToken(string(e.Kind)))
		switch kind {
		case "", "events":
			kind = EntityEvent
		case "actions":
			kind = EntityAction
		case EntityEvent, EntityAction:
		default:
			return nil, &NormalizationError{Field: fmt.Sprintf("entities[%d].type", i), Reason: fmt.Sprintf("unsupported value %q", e.Kind)}
		}
		name := strings.TrimSpace(e.Name)
		if name == "" {
			name = id
		}
		entities = append(entities, Entity{Kind: kind, ID: id, Name: name, Order: e.Order})
	}
	sort.SliceStable(entities, func(i, j int) bool {
		return entities[i].Order < entities[j].Order
	})
	for i := range entities {
		entities[i].Order = i
	}
	return entities, nil
}

func normalizeProperties(raw []PropertyFilter) []PropertyFilter {
	var out []PropertyFilter
	for _, p := range raw {
		key := strings.TrimSpace(p.Key)
		if key == "" {
			continue
		}
		out = append(out, PropertyFilter{
			Key:      key,
			Value:    p.Value,
			Operator: strings.ToLower(strings.TrimSpace(p.Operator)),
			Type:     canonicalToken(p.Type),
		})
	}
	return out
}

func canonicalToken(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	return strcase.ToSnake(value)
}

// CacheKey returns a deterministic key for a normalized filter.
func CacheKey(spec FilterSpec) string {
	b, err := json.Marshal(spec)
	if err != nil {
		return "invalid"
	}
	sum := sha1.Sum(b)
	return hex.EncodeToString(sum[:])
}
