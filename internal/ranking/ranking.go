// Package ranking orders project members as assignee candidates for a
// specialization. The order is advisory.
package ranking

import (
	"sort"

	"teamline/internal/experience"
)

// Candidate is a member considered for a task.
type Candidate struct {
	UserID string
	// Experience maps specialization to accumulated exp.
	Experience map[string]int
	OpenTasks  int
}

type Ranked struct {
	UserID      string `json:"user_id"`
	Level       int    `json:"level"`
	Exp         int    `json:"exp"`
	OpenTasks   int    `json:"open_tasks"`
	Recommended bool   `json:"recommended"`
}

// Rank orders candidates by level in specialization descending, then open
// task count ascending, then user id. The first entry is marked recommended.
func Rank(candidates []Candidate, specialization string, levelSize int) []Ranked {
	res := make([]Ranked, 0, len(candidates))
	for _, c := range candidates {
		exp := c.Experience[specialization]
		res = append(res, Ranked{
			UserID:    c.UserID,
			Level:     experience.Level(exp, levelSize),
			Exp:       exp,
			OpenTasks: c.OpenTasks,
		})
	}
	sort.SliceStable(res, func(i, j int) bool {
		if res[i].Level != res[j].Level {
			return res[i].Level > res[j].Level
		}
		if res[i].OpenTasks != res[j].OpenTasks {
			return res[i].OpenTasks < res[j].OpenTasks
		}
		return res[i].UserID < res[j].UserID
	})
	if len(res) > 0 {
		res[0].Recommended = true
	}
	return res
}
