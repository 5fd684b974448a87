package aggregate

import (
	"fmt"

	"exportestimator/internal/model"
)

// Grouping strategy names. They also key the statistics cache.
const (
	GroupingProviderName = "provider_name"
	GroupingProviderType = "provider_type"
)

// UnknownProvider is the group of provider tasks without a known provider.
const UnknownProvider = "unknown_provider"

// GroupingStrategy assigns a provider task to a statistics group.
type GroupingStrategy interface {
	Name() string
	GroupOf(t *model.ProviderTask) string
}

// ByProviderName groups by the provider task's name.
type ByProviderName struct{}

func (ByProviderName) Name() string { return GroupingProviderName }

func (ByProviderName) GroupOf(t *model.ProviderTask) string {
	return t.Name
}

// ByProviderType groups by the slug of the provider whose name matches the
// provider task.
type ByProviderType struct {
	slugByName map[string]string
}

// NewByProviderType indexes providers by name.
func NewByProviderType(providers []*model.DataProvider) *ByProviderType {
	idx := make(map[string]string, len(providers))
	for _, p := range providers {
		if p != nil {
			idx[p.Name] = p.Slug
		}
	}
	return &ByProviderType{slugByName: idx}
}

func (g *ByProviderType) Name() string { return GroupingProviderType }

func (g *ByProviderType) GroupOf(t *model.ProviderTask) string {
	if slug, ok := g.slugByName[t.Name]; ok && slug != "" {
		return slug
	}
	return UnknownProvider
}

// NewGrouping returns the strategy registered under name.
func NewGrouping(name string, providers []*model.DataProvider) (GroupingStrategy, error) {
	switch name {
	case GroupingProviderName:
		return ByProviderName{}, nil
	case GroupingProviderType:
		return NewByProviderType(providers), nil
	}
	return nil, fmt.Errorf("invalid grouping %q", name)
}

// IsGrouping reports whether name is a known grouping strategy.
func IsGrouping(name string) bool {
	return name == GroupingProviderName || name == GroupingProviderType
}

// Groupings lists the known strategy names.
func Groupings() []string {
	return []string{GroupingProviderName, GroupingProviderType}
}

// HasTiles reports whether a task's output scales with the area it covers.
// Whole-AOI artifacts would add the same area to every tile.
func HasTiles(taskName string) bool {
	switch taskName {
	case "Area of Interest (.geojson)", "Project File (.zip)":
		return false
	}
	return true
}
