package records

import (
	"context"
	"time"

	"github.com/dalemusser/bandhub/internal/app/store/docstore"
	"github.com/dalemusser/bandhub/internal/domain/models"
)

const TasksCollection = "tasks"

// Tasks is the group to-do list.
type Tasks struct {
	*Collection[models.Task, *models.Task]
}

func NewTasks(s docstore.Store, gate Gate) *Tasks {
	return &Tasks{NewCollection[models.Task](s, TasksCollection, models.ModuleTasks, gate)}
}

// Complete marks a task done. Completing a done task keeps its original
// completion time.
func (t *Tasks) Complete(ctx context.Context, groupID, id string) (models.Task, error) {
	return t.Update(ctx, groupID, id, func(task *models.Task) error {
		if task.Done {
			return docstore.ErrSkipWrite
		}
		now := time.Now().UTC()
		task.Done = true
		task.CompletedAt = &now
		return nil
	})
}

// Reopen clears completion.
func (t *Tasks) Reopen(ctx context.Context, groupID, id string) (models.Task, error) {
	return t.Update(ctx, groupID, id, func(task *models.Task) error {
		if !task.Done {
			return docstore.ErrSkipWrite
		}
		task.Done = false
		task.CompletedAt = nil
		return nil
	})
}

// Assign sets or clears the assignee.
func (t *Tasks) Assign(ctx context.Context, groupID, id, assigneeID string) (models.Task, error) {
	return t.Update(ctx, groupID, id, func(task *models.Task) error {
		task.AssigneeID = assigneeID
		return nil
	})
}
