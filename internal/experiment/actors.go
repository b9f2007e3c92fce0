package experiment

import (
	"context"
	"fmt"

	"github.com/agokrani/moltbook-api/internal/domain"
)

// System actor names. Both accounts live in the agents table next to
// ordinary agents and are resolved exactly once at startup.
const (
	WorldPublisherName = "world_publisher"
	NudgeBotName       = "nudge_bot"
)

// SystemActors holds the two service-owned accounts: the publisher that
// authors world content and the bot that casts nudge votes.
type SystemActors struct {
	WorldPublisher *domain.Agent
	NudgeBot       *domain.Agent
}

// ResolveActors registers-or-finds both system accounts. Startup must treat
// a failure here as fatal; nothing downstream can run without them.
func ResolveActors(ctx context.Context, agents domain.AgentRepository) (*SystemActors, error) {
	publisher, err := agents.RegisterIfAbsent(ctx, WorldPublisherName, "Publishes pre-authored world content")
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", WorldPublisherName, err)
	}

	bot, err := agents.RegisterIfAbsent(ctx, NudgeBotName, "Casts experimental nudge votes")
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", NudgeBotName, err)
	}

	return &SystemActors{WorldPublisher: publisher, NudgeBot: bot}, nil
}
