package discovery

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/oneagent/coordination/registry"
	"github.com/oneagent/coordination/types"
)

// MatchMode selects how requested capability tags are matched against an
// agent's capability set.
type MatchMode string

const (
	// MatchAny matches agents whose capability set intersects the requested
	// tags.
	MatchAny MatchMode = "any"
	// MatchAll matches agents whose capability set is a superset of the
	// requested tags.
	MatchAll MatchMode = "all"
)

// Request describes a discovery query.
type Request struct {
	// Capabilities is the set of requested capability tags. Empty matches
	// every registered agent.
	Capabilities []string `json:"capabilities,omitempty"`

	// Mode is the match mode. Defaults to MatchAny.
	Mode MatchMode `json:"mode,omitempty"`

	// Limit caps the number of results. Zero means no limit.
	Limit int `json:"limit,omitempty"`
}

// Lister is the registry read surface discovery depends on.
type Lister interface {
	List(ctx context.Context, filter *registry.Filter) []*types.AgentDescriptor
}

// Service answers capability queries against the agent registry. Results are
// ordered most-recently-active first, ties broken by ascending agent id.
type Service struct {
	agents Lister
	logger *zap.Logger
}

// NewService creates a discovery service backed by the given registry.
func NewService(agents Lister, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		agents: agents,
		logger: logger.With(zap.String("component", "discovery")),
	}
}

// Discover returns agents matching the request. An empty result is a valid
// answer, not an error.
func (s *Service) Discover(ctx context.Context, req *Request) ([]*types.AgentDescriptor, error) {
	if req == nil {
		req = &Request{}
	}

	mode := req.Mode
	if mode == "" {
		mode = MatchAny
	}
	if mode != MatchAny && mode != MatchAll {
		return nil, types.NewErrorf(types.ErrInvalidArgument, "unknown match mode %q", mode)
	}

	candidates := s.agents.List(ctx, nil)

	matched := make([]*types.AgentDescriptor, 0, len(candidates))
	for _, desc := range candidates {
		if s.matches(desc, req.Capabilities, mode) {
			matched = append(matched, desc)
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].LastActive.Equal(matched[j].LastActive) {
			return matched[i].LastActive.After(matched[j].LastActive)
		}
		return matched[i].ID < matched[j].ID
	})

	if req.Limit > 0 && len(matched) > req.Limit {
		matched = matched[:req.Limit]
	}

	s.logger.Debug("discovery query answered",
		zap.Strings("capabilities", req.Capabilities),
		zap.String("mode", string(mode)),
		zap.Int("matches", len(matched)),
	)

	return matched, nil
}

func (s *Service) matches(desc *types.AgentDescriptor, tags []string, mode MatchMode) bool {
	if len(tags) == 0 {
		return true
	}
	if mode == MatchAll {
		return desc.HasAllCapabilities(tags)
	}
	return desc.HasAnyCapability(tags)
}
