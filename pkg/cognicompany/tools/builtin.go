package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jholhewres/cognicompany/pkg/cognicompany/store"
)

// taskNamespace derives task ids from tool call ids, so a call delivered
// twice stores one task.
var taskNamespace = uuid.MustParse("6f1c2a4e-8d3b-4b7a-9c55-2e0f7d9a61b3")

func (r *Registry) dateTime(_ context.Context, _ DateTimeArgs) (any, error) {
	now := r.env.Now()
	return map[string]string{
		"datetime": now.Format(time.RFC3339),
		"day":      now.Weekday().String(),
	}, nil
}

func (r *Registry) userLookup(ctx context.Context, args UserLookupArgs) (any, error) {
	u, err := r.env.Users.Get(ctx, args.ID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("user %s not found", args.ID)
	}
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"id":             u.ID,
		"name":           u.Name(),
		"display_name":   u.DisplayName,
		"nickname":       u.Nickname,
		"preferred_name": u.PreferredName,
		"bot":            u.Bot,
	}, nil
}

func (r *Registry) mention(_ context.Context, args MentionArgs) (any, error) {
	id := strings.Trim(args.ID, "<@!>")
	if id == "" {
		return nil, &ArgumentError{Field: "id", Message: "must not be empty"}
	}
	return map[string]string{"mention_format": "<@" + id + ">"}, nil
}

func (r *Registry) taskCreate(ctx context.Context, callID string, args TaskCreateArgs) (any, error) {
	if strings.TrimSpace(args.Title) == "" {
		return nil, &ArgumentError{Field: "title", Message: "must not be empty"}
	}

	id := uuid.NewString()
	if callID != "" {
		id = uuid.NewSHA1(taskNamespace, []byte(callID)).String()
	}

	t := store.Task{
		ID:            id,
		UserID:        args.UserID,
		Title:         args.Title,
		Description:   args.Description,
		DueDate:       args.DueDate,
		EstimatedTime: args.EstimatedTime,
		CreatedAt:     r.env.Now().UTC(),
	}
	if err := r.env.Tasks.Put(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (r *Registry) taskList(ctx context.Context, args TaskListArgs) (any, error) {
	tasks, err := r.env.Tasks.ListByUser(ctx, args.UserID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"tasks": tasks}, nil
}

func (r *Registry) taskComplete(ctx context.Context, args TaskCompleteArgs) (any, error) {
	if err := r.env.Tasks.Delete(ctx, args.ID); err != nil {
		return nil, err
	}
	return map[string]any{"id": args.ID, "completed": true}, nil
}

func (r *Registry) assistantList(ctx context.Context, _ AssistantListArgs) (any, error) {
	assistants, err := r.env.Assistants.ListAssistants(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]map[string]any, 0, len(assistants))
	for _, a := range assistants {
		out = append(out, map[string]any{
			"id":          a.ID,
			"name":        a.Name,
			"description": a.Description,
			"metadata":    a.Metadata,
		})
	}
	return map[string]any{"assistants": out}, nil
}
