package engine

import (
	"context"
	"strings"

	"teamline/internal/domain"
	"teamline/internal/experience"
	"teamline/internal/ranking"
)

// RankAssignees orders the project's members as candidates for a task in
// specialization. An empty specialization ranks on the default one.
func (e Engine) RankAssignees(ctx context.Context, projectID, specialization string) ([]ranking.Ranked, error) {
	if _, err := e.GetProject(ctx, projectID); err != nil {
		return nil, err
	}
	cfg, err := e.configFor(ctx, nil, projectID)
	if err != nil {
		return nil, err
	}
	spec := experience.Specialization(specialization, cfg.Experience.DefaultSpecialization)
	members, err := e.Repo.ListMembers(ctx, projectID)
	if err != nil {
		return nil, persist("list members", err)
	}
	ids := make([]string, 0, len(members))
	for _, m := range members {
		ids = append(ids, m.UserID)
	}
	exp, err := e.Repo.ExperienceFor(ctx, ids, spec)
	if err != nil {
		return nil, persist("load experience", err)
	}
	return ranking.Rank(candidates(members, exp, spec), spec, experience.LevelSize), nil
}

func candidates(members []domain.Member, exp map[string]int, spec string) []ranking.Candidate {
	res := make([]ranking.Candidate, 0, len(members))
	for _, m := range members {
		c := ranking.Candidate{UserID: m.UserID, OpenTasks: m.OpenTasks}
		if v, ok := exp[m.UserID]; ok {
			c.Experience = map[string]int{spec: v}
		}
		res = append(res, c)
	}
	return res
}

// ExperienceProfile is a user's standing in every specialization touched.
type ExperienceProfile struct {
	UserID    string                   `json:"user_id"`
	Standings []experience.Standing    `json:"standings"`
	Awards    []domain.ExperienceAward `json:"awards"`
}

func (e Engine) ExperienceProfile(ctx context.Context, userID string) (ExperienceProfile, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ExperienceProfile{}, invalid("user_id", "user is required")
	}
	standings, err := e.ledger().Profile(ctx, userID)
	if err != nil {
		return ExperienceProfile{}, persist("load experience", err)
	}
	awards, err := e.Repo.ListAwards(ctx, "", userID)
	if err != nil {
		return ExperienceProfile{}, persist("list awards", err)
	}
	if awards == nil {
		awards = []domain.ExperienceAward{}
	}
	return ExperienceProfile{UserID: userID, Standings: standings, Awards: awards}, nil
}
