// Package screening 实现 PHQ-9 / GAD-7 自评量表的计分与严重程度分级。
// 本包不做持久化，结果由调用方保存。
package screening

import (
	"strconv"
	"strings"
)

// Severity 是量表总分对应的严重程度等级。
type Severity string

const (
	SeverityMinimal          Severity = "minimal"
	SeverityMild             Severity = "mild"
	SeverityModerate         Severity = "moderate"
	SeverityModeratelySevere Severity = "moderately-severe"
	SeveritySevere           Severity = "severe"
)

func (s Severity) Valid() bool {
	switch s {
	case SeverityMinimal, SeverityMild, SeverityModerate, SeverityModeratelySevere, SeveritySevere:
		return true
	}
	return false
}

// RequiresFollowUp 中度及以上需要回访。
func (s Severity) RequiresFollowUp() bool {
	switch s {
	case SeverityModerate, SeverityModeratelySevere, SeveritySevere:
		return true
	}
	return false
}

// Option 是一道题的一个选项。
type Option struct {
	Text  string `json:"text"`
	Score int    `json:"score"`
}

// Question 是量表中的一道题。
type Question struct {
	ID      string   `json:"questionId"`
	Text    string   `json:"question"`
	Options []Option `json:"options"`
}

// Band 描述一个分数段：总分 <= Max 时落入该段。
type Band struct {
	Max             int
	Severity        Severity
	Interpretation  string
	Recommendations []string
}

// Instrument 是一份只读的量表定义。
type Instrument struct {
	ID        string
	Name      string
	Questions []Question
	Bands     []Band
}

// MaxScore 是所有题目取最高分时的总分。
func (in *Instrument) MaxScore() int {
	total := 0
	for _, q := range in.Questions {
		best := 0
		for _, o := range q.Options {
			if o.Score > best {
				best = o.Score
			}
		}
		total += best
	}
	return total
}

// Band 返回总分所在的分数段，超出最高段时归入最后一段。
func (in *Instrument) Band(total int) Band {
	for _, b := range in.Bands {
		if total <= b.Max {
			return b
		}
	}
	return in.Bands[len(in.Bands)-1]
}

// Severities 按从轻到重的顺序返回量表的全部等级。
func (in *Instrument) Severities() []Severity {
	out := make([]Severity, 0, len(in.Bands))
	for _, b := range in.Bands {
		out = append(out, b.Severity)
	}
	return out
}

var frequencyOptions = []Option{
	{Text: "Not at all", Score: 0},
	{Text: "Several days", Score: 1},
	{Text: "More than half the days", Score: 2},
	{Text: "Nearly every day", Score: 3},
}

func buildQuestions(prefix string, texts []string) []Question {
	qs := make([]Question, len(texts))
	for i, t := range texts {
		qs[i] = Question{
			ID:      prefix + "_" + strconv.Itoa(i+1),
			Text:    t,
			Options: frequencyOptions,
		}
	}
	return qs
}

var phq9 = &Instrument{
	ID:   "PHQ-9",
	Name: "Patient Health Questionnaire-9",
	Questions: buildQuestions("phq-9", []string{
		"Little interest or pleasure in doing things",
		"Feeling down, depressed, or hopeless",
		"Trouble falling or staying asleep, or sleeping too much",
		"Feeling tired or having little energy",
		"Poor appetite or overeating",
		"Feeling bad about yourself - or that you are a failure or have let yourself or your family down",
		"Trouble concentrating on things, such as reading the newspaper or watching television",
		"Moving or speaking so slowly that other people could have noticed, or the opposite - being so fidgety or restless that you have been moving around a lot more than usual",
		"Thoughts that you would be better off dead, or of hurting yourself",
	}),
	Bands: []Band{
		{Max: 4, Severity: SeverityMinimal, Interpretation: "Minimal depression symptoms",
			Recommendations: []string{"Continue self-care practices", "Monitor mood regularly"}},
		{Max: 9, Severity: SeverityMild, Interpretation: "Mild depression symptoms",
			Recommendations: []string{"Practice stress management techniques", "Consider lifestyle changes", "Monitor symptoms"}},
		{Max: 14, Severity: SeverityModerate, Interpretation: "Moderate depression symptoms",
			Recommendations: []string{"Consider counseling or therapy", "Practice self-care", "Seek support from friends/family"}},
		{Max: 19, Severity: SeverityModeratelySevere, Interpretation: "Moderately severe depression symptoms",
			Recommendations: []string{"Strongly recommend professional help", "Consider medication evaluation", "Increase support network"}},
		{Max: 27, Severity: SeveritySevere, Interpretation: "Severe depression symptoms",
			Recommendations: []string{"Immediate professional intervention recommended", "Consider crisis support", "Safety planning"}},
	},
}

// GAD-7 只有四个等级，没有 moderately-severe。
var gad7 = &Instrument{
	ID:   "GAD-7",
	Name: "Generalized Anxiety Disorder-7",
	Questions: buildQuestions("gad-7", []string{
		"Feeling nervous, anxious, or on edge",
		"Not being able to stop or control worrying",
		"Worrying too much about different things",
		"Trouble relaxing",
		"Being so restless that it's hard to sit still",
		"Becoming easily annoyed or irritable",
		"Feeling afraid as if something awful might happen",
	}),
	Bands: []Band{
		{Max: 4, Severity: SeverityMinimal, Interpretation: "Minimal anxiety symptoms",
			Recommendations: []string{"Continue current coping strategies", "Practice relaxation techniques"}},
		{Max: 9, Severity: SeverityMild, Interpretation: "Mild anxiety symptoms",
			Recommendations: []string{"Practice mindfulness and relaxation", "Consider stress management techniques"}},
		{Max: 14, Severity: SeverityModerate, Interpretation: "Moderate anxiety symptoms",
			Recommendations: []string{"Consider counseling or therapy", "Practice anxiety management techniques"}},
		{Max: 21, Severity: SeveritySevere, Interpretation: "Severe anxiety symptoms",
			Recommendations: []string{"Strongly recommend professional help", "Consider medication evaluation", "Practice immediate coping strategies"}},
	},
}

var registry = map[string]*Instrument{
	"phq-9": phq9,
	"gad-7": gad7,
}

// Lookup 按标识查找量表，大小写不敏感。
func Lookup(id string) (*Instrument, error) {
	in, ok := registry[strings.ToLower(strings.TrimSpace(id))]
	if !ok {
		return nil, ErrUnknownInstrument
	}
	return in, nil
}

// Instruments 返回所有已注册的量表。
func Instruments() []*Instrument {
	return []*Instrument{phq9, gad7}
}
