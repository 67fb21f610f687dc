package service

import (
	"context"
	"time"

	"mindbridge-go/internal/model"
	"mindbridge-go/internal/repository"
	"mindbridge-go/internal/screening"
	"mindbridge-go/pkg/log"
	"mindbridge-go/pkg/tasks"
)

// QuestionSet 是返回给前端的量表题目。
type QuestionSet struct {
	ScreeningType string               `json:"screeningType"`
	Name          string               `json:"name"`
	MaxScore      int                  `json:"maxScore"`
	Questions     []screening.Question `json:"questions"`
}

// InstrumentStats 是单个量表按严重程度的统计。
type InstrumentStats struct {
	ScreeningType string           `json:"screeningType"`
	TotalCount    int64            `json:"totalCount"`
	BySeverity    map[string]int64 `json:"bySeverity"`
}

// ScreeningService 定义了心理量表相关的业务操作。
type ScreeningService interface {
	Questions(screeningType string) (*QuestionSet, error)
	Submit(ctx context.Context, actor Actor, userID uint, screeningType string, responses []screening.Response) (*model.ScreeningResult, error)
	History(ctx context.Context, actor Actor, userID uint) ([]model.ScreeningResult, error)
	Stats(ctx context.Context, actor Actor) ([]InstrumentStats, error)
}

type screeningService struct {
	results   repository.ScreeningRepository
	scorer    *screening.Scorer
	publisher TaskPublisher
	now       func() time.Time
}

// NewScreeningService 创建一个新的 ScreeningService 实例。
func NewScreeningService(results repository.ScreeningRepository, scorer *screening.Scorer, publisher TaskPublisher) ScreeningService {
	return newScreeningService(results, scorer, publisher)
}

func newScreeningService(results repository.ScreeningRepository, scorer *screening.Scorer, publisher TaskPublisher) *screeningService {
	if scorer == nil {
		scorer = screening.NewScorer(0)
	}
	return &screeningService{results: results, scorer: scorer, publisher: publisher, now: time.Now}
}

func (s *screeningService) Questions(screeningType string) (*QuestionSet, error) {
	in, err := screening.Lookup(screeningType)
	if err != nil {
		return nil, err
	}
	return &QuestionSet{
		ScreeningType: in.ID,
		Name:          in.Name,
		MaxScore:      in.MaxScore(),
		Questions:     in.Questions,
	}, nil
}

// Submit 计分并保存结果。需要回访时发送 screening.follow_up 通知，由通知管道标记咨询师已知晓。
func (s *screeningService) Submit(ctx context.Context, actor Actor, userID uint, screeningType string, responses []screening.Response) (*model.ScreeningResult, error) {
	if userID == 0 {
		userID = actor.UserID
	}
	if !actor.IsStaff() && userID != actor.UserID {
		return nil, ErrNotOwner
	}
	in, err := screening.Lookup(screeningType)
	if err != nil {
		return nil, err
	}
	scored, err := s.scorer.Score(in, responses, s.now())
	if err != nil {
		return nil, err
	}

	answers := make([]model.ScreeningAnswer, len(scored.Responses))
	for i, r := range scored.Responses {
		answers[i] = model.ScreeningAnswer{QuestionID: r.QuestionID, Response: r.Score}
	}
	result := &model.ScreeningResult{
		UserID:           userID,
		ScreeningType:    scored.Instrument,
		Responses:        answers,
		TotalScore:       scored.TotalScore,
		Severity:         string(scored.Severity),
		Interpretation:   scored.Interpretation,
		Recommendations:  scored.Recommendations,
		FollowUpRequired: scored.FollowUpRequired,
		FollowUpDate:     scored.FollowUpDate,
		CompletedAt:      scored.SubmittedAt,
	}
	if err := s.results.Create(ctx, result); err != nil {
		return nil, err
	}

	log.Infow("screening submitted", "resultId", result.ID, "userId", userID,
		"type", result.ScreeningType, "score", result.TotalScore, "severity", result.Severity)
	if result.FollowUpRequired {
		publish(ctx, s.publisher, tasks.NotificationTask{
			Kind:         tasks.KindScreeningFollowUp,
			UserID:       userID,
			ScreeningID:  result.ID,
			Severity:     result.Severity,
			ScheduledFor: result.FollowUpDate,
		}, s.now())
	}
	return result, nil
}

// History 返回用户的量表记录，最新的在前。
func (s *screeningService) History(ctx context.Context, actor Actor, userID uint) ([]model.ScreeningResult, error) {
	if !actor.IsStaff() && userID != actor.UserID {
		return nil, ErrNotOwner
	}
	return s.results.ListByUser(ctx, userID)
}

// Stats 按量表汇总各严重程度的人次，已注册的量表即使没有记录也会出现。
func (s *screeningService) Stats(ctx context.Context, actor Actor) ([]InstrumentStats, error) {
	if !actor.IsStaff() {
		return nil, ErrNotOwner
	}
	counts, err := s.results.CountByTypeAndSeverity(ctx)
	if err != nil {
		return nil, err
	}

	var out []InstrumentStats
	index := make(map[string]int)
	for _, in := range screening.Instruments() {
		index[in.ID] = len(out)
		out = append(out, InstrumentStats{ScreeningType: in.ID, BySeverity: map[string]int64{}})
	}
	for _, c := range counts {
		i, ok := index[c.ScreeningType]
		if !ok {
			i = len(out)
			index[c.ScreeningType] = i
			out = append(out, InstrumentStats{ScreeningType: c.ScreeningType, BySeverity: map[string]int64{}})
		}
		out[i].BySeverity[c.Severity] += c.Count
		out[i].TotalCount += c.Count
	}
	return out, nil
}
