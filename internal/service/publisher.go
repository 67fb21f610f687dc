package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"mindbridge-go/pkg/log"
	"mindbridge-go/pkg/tasks"
)

// TaskPublisher 把通知任务交给异步管道，kafka.Producer 实现了该接口。
type TaskPublisher interface {
	Publish(ctx context.Context, task tasks.NotificationTask) error
}

// publish 补全任务 ID 与时间后发送。通知失败只记录日志，不影响主流程。
func publish(ctx context.Context, p TaskPublisher, task tasks.NotificationTask, now time.Time) {
	if p == nil {
		return
	}
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	if err := p.Publish(ctx, task); err != nil {
		log.Errorf("发送通知任务失败: kind=%s, id=%s, error: %v", task.Kind, task.ID, err)
	}
}
