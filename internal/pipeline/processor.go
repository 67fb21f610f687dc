// Package pipeline 定义了通知任务的异步处理流程。
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"mindbridge-go/internal/model"
	"mindbridge-go/internal/repository"
	"mindbridge-go/pkg/apperr"
	"mindbridge-go/pkg/log"
	"mindbridge-go/pkg/tasks"
)

// Notification 是发给单个用户的一条通知。
type Notification struct {
	RecipientID uint
	Kind        tasks.Kind
	Subject     string
	Body        string
}

// Notifier 负责把通知送达用户。
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// LogNotifier 只把通知写入日志。
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, n Notification) error {
	log.Infow("notification", "recipient", n.RecipientID, "kind", n.Kind, "subject", n.Subject, "body", n.Body)
	return nil
}

// Processor 封装了通知任务处理的所有依赖和逻辑。
type Processor struct {
	users      repository.UserRepository
	screenings repository.ScreeningRepository
	notifier   Notifier
}

// NewProcessor 创建一个新的 Processor 实例，notifier 为 nil 时使用 LogNotifier。
func NewProcessor(users repository.UserRepository, screenings repository.ScreeningRepository, notifier Notifier) *Processor {
	if notifier == nil {
		notifier = LogNotifier{}
	}
	return &Processor{users: users, screenings: screenings, notifier: notifier}
}

// Process 是通知任务处理的主函数，返回错误时由消费者重试。
func (p *Processor) Process(ctx context.Context, task tasks.NotificationTask) error {
	log.Infof("[Processor] 开始处理通知任务, ID: %s, Kind: %s", task.ID, task.Kind)

	switch task.Kind {
	case tasks.KindChatEscalated:
		return p.chatEscalated(ctx, task)
	case tasks.KindScreeningFollowUp:
		return p.screeningFollowUp(ctx, task)
	case tasks.KindAppointmentBooked, tasks.KindAppointmentCancelled,
		tasks.KindAppointmentMoved, tasks.KindAppointmentStatus:
		return p.appointmentChanged(ctx, task)
	case tasks.KindPeerContentFlagged:
		return p.peerContentFlagged(ctx, task)
	default:
		// 未知类型重试也没有意义
		log.Warnf("[Processor] 未知的通知类型, ID: %s, Kind: %s", task.ID, task.Kind)
		return nil
	}
}

// onCall 返回当前所有启用的咨询师。
func (p *Processor) onCall(ctx context.Context) ([]uint, error) {
	counselors, err := p.users.ListActiveByRole(ctx, model.RoleCounselor)
	if err != nil {
		return nil, fmt.Errorf("list counselors: %w", err)
	}
	ids := make([]uint, 0, len(counselors))
	for _, c := range counselors {
		ids = append(ids, c.ID)
	}
	return ids, nil
}

func (p *Processor) notifyAll(ctx context.Context, recipients []uint, n Notification) error {
	var errs []error
	for _, id := range recipients {
		n.RecipientID = id
		if err := p.notifier.Notify(ctx, n); err != nil {
			errs = append(errs, fmt.Errorf("notify user %d: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

// chatEscalated 指定了咨询师时只通知该咨询师，否则通知所有值班咨询师。
func (p *Processor) chatEscalated(ctx context.Context, task tasks.NotificationTask) error {
	recipients := []uint{task.CounselorID}
	if task.CounselorID == 0 {
		var err error
		if recipients, err = p.onCall(ctx); err != nil {
			return err
		}
		if len(recipients) == 0 {
			log.Errorf("[Processor] 会话需要人工介入但没有可用的咨询师, SessionID: %s, RiskLevel: %s", task.SessionID, task.RiskLevel)
			return nil
		}
	}
	return p.notifyAll(ctx, recipients, Notification{
		Kind:    task.Kind,
		Subject: fmt.Sprintf("会话 %s 需要人工介入 (风险等级: %s)", task.SessionID, task.RiskLevel),
		Body:    task.Reason,
	})
}

// screeningFollowUp 通知咨询师并标记量表结果已通知。
func (p *Processor) screeningFollowUp(ctx context.Context, task tasks.NotificationTask) error {
	recipients, err := p.onCall(ctx)
	if err != nil {
		return err
	}
	body := fmt.Sprintf("用户 %d 的量表结果为 %s", task.UserID, task.Severity)
	if task.ScheduledFor != nil {
		body += "，建议回访时间 " + task.ScheduledFor.Format("2006-01-02")
	}
	if err := p.notifyAll(ctx, recipients, Notification{
		Kind:    task.Kind,
		Subject: "量表结果需要回访",
		Body:    body,
	}); err != nil {
		return err
	}

	if err := p.screenings.MarkCounselorNotified(ctx, task.ScreeningID); err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			log.Warnf("[Processor] 量表结果不存在, ScreeningID: %d", task.ScreeningID)
			return nil
		}
		return err
	}
	return nil
}

// appointmentChanged 通知预约双方。
func (p *Processor) appointmentChanged(ctx context.Context, task tasks.NotificationTask) error {
	subject := fmt.Sprintf("预约 #%d 状态更新: %s", task.AppointmentID, task.Status)
	body := task.Reason
	if task.ScheduledFor != nil {
		body = fmt.Sprintf("时间: %s %s", task.ScheduledFor.Format("2006-01-02 15:04"), task.Reason)
	}
	var recipients []uint
	for _, id := range []uint{task.UserID, task.CounselorID} {
		if id != 0 {
			recipients = append(recipients, id)
		}
	}
	return p.notifyAll(ctx, recipients, Notification{Kind: task.Kind, Subject: subject, Body: body})
}

// peerContentFlagged 互助社区中出现危机内容时通知所有值班咨询师。
func (p *Processor) peerContentFlagged(ctx context.Context, task tasks.NotificationTask) error {
	recipients, err := p.onCall(ctx)
	if err != nil {
		return err
	}
	if len(recipients) == 0 {
		log.Errorf("[Processor] 互助社区出现危机内容但没有可用的咨询师, PostID: %d, CommentID: %d", task.PostID, task.CommentID)
		return nil
	}
	subject := fmt.Sprintf("互助帖子 #%d 出现危机内容", task.PostID)
	if task.CommentID != 0 {
		subject = fmt.Sprintf("互助帖子 #%d 的评论 #%d 出现危机内容", task.PostID, task.CommentID)
	}
	return p.notifyAll(ctx, recipients, Notification{
		Kind:    task.Kind,
		Subject: subject,
		Body:    fmt.Sprintf("作者 %d，%s", task.UserID, task.Reason),
	})
}
