package screening

import (
	"fmt"
	"time"
)

// DefaultFollowUpAfter 是中度及以上结果的默认回访间隔。
const DefaultFollowUpAfter = 7 * 24 * time.Hour

const (
	minResponse = 0
	maxResponse = 3
)

// Response 是对单道题的作答。
type Response struct {
	QuestionID string `json:"questionId"`
	Score      int    `json:"response"`
}

// Result 是一次提交的计分结果。
type Result struct {
	Instrument       string     `json:"screeningType"`
	Responses        []Response `json:"responses"`
	TotalScore       int        `json:"totalScore"`
	Severity         Severity   `json:"severity"`
	Interpretation   string     `json:"interpretation"`
	Recommendations  []string   `json:"recommendations"`
	FollowUpRequired bool       `json:"followUpRequired"`
	FollowUpDate     *time.Time `json:"followUpDate,omitempty"`
	SubmittedAt      time.Time  `json:"completedAt"`
}

// Scorer 计算量表结果，回访间隔可配置。
type Scorer struct {
	FollowUpAfter time.Duration
}

// NewScorer 创建 Scorer，followUpAfter <= 0 时使用默认的 7 天。
func NewScorer(followUpAfter time.Duration) *Scorer {
	if followUpAfter <= 0 {
		followUpAfter = DefaultFollowUpAfter
	}
	return &Scorer{FollowUpAfter: followUpAfter}
}

// Score 校验作答并计算总分与等级。每道题必须且只能作答一次，分值在 [0,3]。
// 返回的 Responses 按量表题目顺序排列。
func (s *Scorer) Score(in *Instrument, responses []Response, submittedAt time.Time) (Result, error) {
	byID := make(map[string]int, len(responses))
	for _, r := range responses {
		if r.Score < minResponse || r.Score > maxResponse {
			return Result{}, fmt.Errorf("%w: question %q score %d out of range [%d,%d]",
				ErrInvalidResponse, r.QuestionID, r.Score, minResponse, maxResponse)
		}
		if _, dup := byID[r.QuestionID]; dup {
			return Result{}, fmt.Errorf("%w: duplicate answer for question %q", ErrInvalidResponse, r.QuestionID)
		}
		byID[r.QuestionID] = r.Score
	}

	ordered := make([]Response, 0, len(in.Questions))
	total := 0
	var missing []string
	for _, q := range in.Questions {
		score, ok := byID[q.ID]
		if !ok {
			missing = append(missing, q.ID)
			continue
		}
		delete(byID, q.ID)
		ordered = append(ordered, Response{QuestionID: q.ID, Score: score})
		total += score
	}
	for id := range byID {
		return Result{}, fmt.Errorf("%w: question %q is not part of %s", ErrInvalidResponse, id, in.ID)
	}
	if len(missing) > 0 {
		return Result{}, fmt.Errorf("%w: %s missing %v", ErrIncompleteResponses, in.ID, missing)
	}

	band := in.Band(total)
	res := Result{
		Instrument:       in.ID,
		Responses:        ordered,
		TotalScore:       total,
		Severity:         band.Severity,
		Interpretation:   band.Interpretation,
		Recommendations:  append([]string(nil), band.Recommendations...),
		FollowUpRequired: band.Severity.RequiresFollowUp(),
		SubmittedAt:      submittedAt,
	}
	if res.FollowUpRequired {
		due := submittedAt.Add(s.FollowUpAfter)
		res.FollowUpDate = &due
	}
	return res, nil
}
