package corpus

import (
	"fmt"
	"sort"
	"strings"
)

// Variant is a regional language/script convention tag, e.g. zh-tw.
type Variant string

// Known variant tags.
const (
	VariantHans Variant = "zh-hans"
	VariantHant Variant = "zh-hant"
	VariantCN   Variant = "zh-cn"
	VariantHK   Variant = "zh-hk"
	VariantMO   Variant = "zh-mo"
	VariantMY   Variant = "zh-my"
	VariantSG   Variant = "zh-sg"
	VariantTW   Variant = "zh-tw"
)

// KnownVariants lists every tag counted during a scan, in report order.
var KnownVariants = []Variant{
	VariantHans, VariantHant, VariantCN, VariantHK,
	VariantMO, VariantMY, VariantSG, VariantTW,
}

// ParseVariant accepts a known tag, with or without the "zh-" prefix.
func ParseVariant(raw string) (Variant, error) {
	tag := strings.ToLower(strings.TrimSpace(raw))
	if tag != "" && !strings.HasPrefix(tag, "zh-") {
		tag = "zh-" + tag
	}
	for _, v := range KnownVariants {
		if string(v) == tag {
			return v, nil
		}
	}
	return "", fmt.Errorf("unknown variant %q", raw)
}

// VariantCounters counts pages whose body references a variant tag.
type VariantCounters map[Variant]int

// NewVariantCounters returns counters initialized to zero for each tag.
func NewVariantCounters(tags []Variant) VariantCounters {
	counters := make(VariantCounters, len(tags))
	for _, tag := range tags {
		counters[tag] = 0
	}
	return counters
}

// Merge adds other into c.
func (c VariantCounters) Merge(other VariantCounters) {
	for tag, n := range other {
		c[tag] += n
	}
}

// Sorted returns the tags in lexical order.
func (c VariantCounters) Sorted() []Variant {
	tags := make([]Variant, 0, len(c))
	for tag := range c {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })
	return tags
}
