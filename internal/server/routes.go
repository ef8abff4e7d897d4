package server

import (
	"context"
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"

	"teamline/internal/domain"
	"teamline/internal/engine"
	"teamline/internal/engine/auth"
	"teamline/internal/ranking"
	"teamline/internal/repo"
)

type projectPath struct {
	ProjectID string `path:"project_id"`
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerMe(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current principal and memberships",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body WhoAmIResponse `json:"body"`
	}, error) {
		principal, ok := principalFromContext(ctx)
		if !ok || principal.ActorID == "" {
			return nil, newAPIError(http.StatusUnauthorized, "unauthorized", "authentication required", nil)
		}
		projects, err := e.ListProjects(ctx, principal.ActorID)
		if err != nil {
			return nil, handleError(err)
		}
		az := auth.Service{Repo: e.Repo}
		resp := WhoAmIResponse{ActorID: principal.ActorID, Source: principal.Source, Memberships: []MembershipResponse{}}
		for _, p := range projects {
			role, err := az.ActorRole(ctx, p.ID, principal.ActorID)
			if err != nil {
				return nil, handleError(err)
			}
			perms, err := az.ActorPermissions(ctx, p.ID, principal.ActorID)
			if err != nil {
				return nil, handleError(err)
			}
			resp.Memberships = append(resp.Memberships, MembershipResponse{
				ProjectID:   p.ID,
				Role:        role,
				Permissions: nonNilSlice(perms),
			})
		}
		return &struct {
			Body WhoAmIResponse `json:"body"`
		}{Body: resp}, nil
	})
}

func registerProjects(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-project",
		Method:        http.MethodPost,
		Path:          "/projects",
		Summary:       "Create project",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusInternalServerError},
	}, func(ctx context.Context, input *struct {
		Body CreateProjectRequest `json:"body"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		p, err := e.CreateProject(ctx, input.Body.Name, input.Body.Description, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-projects",
		Method:      http.MethodGet,
		Path:        "/projects",
		Summary:     "List projects the caller belongs to",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body []domain.Project `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		items, err := e.ListProjects(ctx, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Project `json:"body"`
		}{Body: nonNilSlice(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-project",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}",
		Summary:     "Get project",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *projectPath) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, e, input.ProjectID, auth.PermProjectRead); err != nil {
			return nil, handleError(err)
		}
		p, err := e.GetProject(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-project",
		Method:      http.MethodPatch,
		Path:        "/projects/{project_id}",
		Summary:     "Update project name or description",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string               `path:"project_id"`
		Body      UpdateProjectRequest `json:"body"`
	}) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		actorID, err := requirePermission(ctx, e, input.ProjectID, auth.PermProjectUpdate)
		if err != nil {
			return nil, handleError(err)
		}
		p, err := e.UpdateProject(ctx, input.ProjectID, engine.ProjectUpdate{
			Name:        input.Body.Name,
			Description: input.Body.Description,
		}, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "complete-project",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/complete",
		Summary:     "Mark project completed",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *projectPath) (*struct {
		Body domain.Project `json:"body"`
	}, error) {
		actorID, err := requirePermission(ctx, e, input.ProjectID, auth.PermProjectComplete)
		if err != nil {
			return nil, handleError(err)
		}
		p, err := e.CompleteProject(ctx, input.ProjectID, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Project `json:"body"`
		}{Body: p}, nil
	})
}

func registerMembers(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-members",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/members",
		Summary:     "List members with open task counts",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *projectPath) (*struct {
		Body []domain.Member `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, e, input.ProjectID, auth.PermProjectRead); err != nil {
			return nil, handleError(err)
		}
		items, err := e.ListMembers(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Member `json:"body"`
		}{Body: nonNilSlice(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "add-member",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/members",
		Summary:       "Add member or change role",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string           `path:"project_id"`
		Body      AddMemberRequest `json:"body"`
	}) (*struct {
		Body domain.Member `json:"body"`
	}, error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		actorID, err := requirePermission(ctx, e, input.ProjectID, auth.PermMemberManage)
		if err != nil {
			return nil, handleError(err)
		}
		m, err := e.AddMember(ctx, input.ProjectID, input.Body.UserID, input.Body.Role, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Member `json:"body"`
		}{Body: m}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "remove-member",
		Method:        http.MethodDelete,
		Path:          "/projects/{project_id}/members/{user_id}",
		Summary:       "Remove member and unassign their tasks",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		UserID    string `path:"user_id"`
	}) (*struct{}, error) {
		actorID, err := requirePermission(ctx, e, input.ProjectID, auth.PermMemberManage)
		if err != nil {
			return nil, handleError(err)
		}
		if err := e.RemoveMember(ctx, input.ProjectID, input.UserID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})
}

func registerSprints(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-sprints",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/sprints",
		Summary:     "List sprints",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		Status    string `query:"status" doc:"active or completed"`
	}) (*struct {
		Body []domain.Sprint `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, e, input.ProjectID, auth.PermProjectRead); err != nil {
			return nil, handleError(err)
		}
		items, err := e.ListSprints(ctx, input.ProjectID, input.Status)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Sprint `json:"body"`
		}{Body: nonNilSlice(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-sprint",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/sprints",
		Summary:       "Open a sprint",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		ProjectID string              `path:"project_id"`
		Body      CreateSprintRequest `json:"body"`
	}) (*struct {
		Body domain.Sprint `json:"body"`
	}, error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		actorID, err := requirePermission(ctx, e, input.ProjectID, auth.PermSprintCreate)
		if err != nil {
			return nil, handleError(err)
		}
		s, err := e.CreateSprint(ctx, input.ProjectID, input.Body.Name, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Sprint `json:"body"`
		}{Body: s}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-sprint",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/sprints/{sprint_id}",
		Summary:     "Sprint with its tasks and awards",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		SprintID  string `path:"sprint_id"`
	}) (*struct {
		Body engine.SprintHistory `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, e, input.ProjectID, auth.PermProjectRead); err != nil {
			return nil, handleError(err)
		}
		h, err := e.SprintHistory(ctx, input.ProjectID, input.SprintID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.SprintHistory `json:"body"`
		}{Body: h}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "close-sprint",
		Method:      http.MethodPost,
		Path:        "/projects/{project_id}/sprints/{sprint_id}/close",
		Summary:     "Close the active sprint",
		Description: "Awards experience for done tasks and moves unfinished tasks to the backlog or a new sprint.",
		Errors: []int{
			http.StatusBadRequest,
			http.StatusForbidden,
			http.StatusNotFound,
			http.StatusConflict,
			http.StatusInternalServerError,
		},
	}, func(ctx context.Context, input *struct {
		ProjectID string             `path:"project_id"`
		SprintID  string             `path:"sprint_id"`
		Body      CloseSprintRequest `json:"body"`
	}) (*struct {
		Body engine.CloseResult `json:"body"`
	}, error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		d, err := engine.ParseDisposition(input.Body.Disposition, input.Body.NextSprintName)
		if err != nil {
			return nil, handleError(err)
		}
		actorID, err := requirePermission(ctx, e, input.ProjectID, auth.PermSprintClose)
		if err != nil {
			return nil, handleError(err)
		}
		res, err := e.CloseSprint(ctx, input.ProjectID, input.SprintID, d, actorID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.CloseResult `json:"body"`
		}{Body: res}, nil
	})
}

func registerTasks(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-task",
		Method:        http.MethodPost,
		Path:          "/projects/{project_id}/tasks",
		Summary:       "Create task",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string            `path:"project_id"`
		Body      CreateTaskRequest `json:"body"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		actorID, err := requirePermission(ctx, e, input.ProjectID, auth.PermTaskCreate)
		if err != nil {
			return nil, handleError(err)
		}
		t, err := e.CreateTask(ctx, engine.TaskCreateOptions{
			ProjectID:      input.ProjectID,
			Title:          input.Body.Title,
			Description:    input.Body.Description,
			Specialization: input.Body.Specialization,
			AssigneeID:     input.Body.AssigneeID,
			SprintID:       input.Body.SprintID,
			StartDate:      input.Body.StartDate,
			EndDate:        input.Body.EndDate,
			ActorID:        actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-tasks",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/tasks",
		Summary:     "List tasks",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID      string `path:"project_id"`
		SprintID       string `query:"sprint_id"`
		Backlog        bool   `query:"backlog"`
		Status         string `query:"status"`
		AssigneeID     string `query:"assignee_id"`
		Specialization string `query:"specialization"`
		Limit          int    `query:"limit"`
	}) (*struct {
		Body []domain.Task `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, e, input.ProjectID, auth.PermProjectRead); err != nil {
			return nil, handleError(err)
		}
		items, err := e.ListTasks(ctx, repo.TaskFilters{
			ProjectID:      input.ProjectID,
			SprintID:       input.SprintID,
			Backlog:        input.Backlog,
			Status:         input.Status,
			AssigneeID:     input.AssigneeID,
			Specialization: input.Specialization,
			Limit:          input.Limit,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []domain.Task `json:"body"`
		}{Body: nonNilSlice(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-task",
		Method:      http.MethodPatch,
		Path:        "/projects/{project_id}/tasks/{task_id}",
		Summary:     "Update task",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string            `path:"project_id"`
		TaskID    string            `path:"task_id"`
		Body      UpdateTaskRequest `json:"body"`
	}) (*struct {
		Body domain.Task `json:"body"`
	}, error) {
		if err := requireBody(ctx); err != nil {
			return nil, err
		}
		actorID, err := requirePermission(ctx, e, input.ProjectID, auth.PermTaskUpdate)
		if err != nil {
			return nil, handleError(err)
		}
		t, err := e.UpdateTask(ctx, engine.TaskUpdateOptions{
			ProjectID:      input.ProjectID,
			ID:             input.TaskID,
			Title:          input.Body.Title,
			Description:    input.Body.Description,
			Specialization: input.Body.Specialization,
			Status:         input.Body.Status,
			Assign:         input.Body.AssigneeID,
			Sprint:         input.Body.SprintID,
			StartDate:      input.Body.StartDate,
			EndDate:        input.Body.EndDate,
			ActorID:        actorID,
		})
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Task `json:"body"`
		}{Body: t}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-task",
		Method:        http.MethodDelete,
		Path:          "/projects/{project_id}/tasks/{task_id}",
		Summary:       "Delete task",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		TaskID    string `path:"task_id"`
	}) (*struct{}, error) {
		actorID, err := requirePermission(ctx, e, input.ProjectID, auth.PermTaskDelete)
		if err != nil {
			return nil, handleError(err)
		}
		if err := e.DeleteTask(ctx, input.ProjectID, input.TaskID, actorID); err != nil {
			return nil, handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "board",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/board",
		Summary:     "Sprint, backlog and completed views",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *projectPath) (*struct {
		Body engine.ProjectBoard `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, e, input.ProjectID, auth.PermProjectRead); err != nil {
			return nil, handleError(err)
		}
		b, err := e.Board(ctx, input.ProjectID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.ProjectBoard `json:"body"`
		}{Body: b}, nil
	})
}

func registerExperience(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "recommend-assignees",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/recommendations",
		Summary:     "Rank members as assignees for a specialization",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID      string `path:"project_id"`
		Specialization string `query:"specialization"`
	}) (*struct {
		Body []ranking.Ranked `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, e, input.ProjectID, auth.PermProjectRead); err != nil {
			return nil, handleError(err)
		}
		items, err := e.RankAssignees(ctx, input.ProjectID, input.Specialization)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body []ranking.Ranked `json:"body"`
		}{Body: nonNilSlice(items)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "user-experience",
		Method:      http.MethodGet,
		Path:        "/users/{user_id}/experience",
		Summary:     "Experience, levels and awards of a user",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		UserID string `path:"user_id"`
	}) (*struct {
		Body engine.ExperienceProfile `json:"body"`
	}, error) {
		if _, authErr := actorIDFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		p, err := e.ExperienceProfile(ctx, input.UserID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body engine.ExperienceProfile `json:"body"`
		}{Body: p}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/projects/{project_id}/events",
		Summary:     "List recent events",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ProjectID string `path:"project_id"`
		Type      string `query:"type"`
		Limit     int    `query:"limit" default:"50"`
		Cursor    string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		if _, err := requirePermission(ctx, e, input.ProjectID, auth.PermProjectRead); err != nil {
			return nil, handleError(err)
		}
		limit := normalizeLimit(input.Limit)
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil || parsed <= 0 {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		items, err := e.Repo.LatestEvents(ctx, limit+1, cursorID, input.ProjectID, input.Type)
		if err != nil {
			return nil, handleError(err)
		}
		resp := paginatedEvents{Items: []EventResponse{}}
		if len(items) > limit {
			// Next page starts below the last returned id.
			resp.NextCursor = strconv.FormatInt(items[limit-1].ID, 10)
			items = items[:limit]
		}
		for _, evt := range items {
			resp.Items = append(resp.Items, eventResponse(evt))
		}
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}
