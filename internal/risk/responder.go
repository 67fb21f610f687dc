package risk

import (
	"math/rand"
	"regexp"
	"strings"

	"mindbridge-go/internal/model"
)

const fallbackReply = "I'm here to listen and support you. Can you tell me more about what you're experiencing?"

// Reply 是自动回复。
type Reply struct {
	Content          string
	Topic            string
	Type             model.MessageType
	Confidence       float64
	SuggestedActions []string
}

// Responder 根据用户消息生成回复。替换实现不影响风险分级。
type Responder interface {
	Respond(text string, a Assessment) Reply
}

// Topic 是一组关键词及其候选回复。
type Topic struct {
	Name     string
	Keywords []string
	Replies  []string

	patterns []*regexp.Regexp
}

// DefaultTopics 按优先级排列，第一个命中的主题生效。
func DefaultTopics() []Topic {
	return []Topic{
		{
			Name:     "greeting",
			Keywords: []string{"hello", "hi", "hey"},
			Replies: []string{
				"Hello! I'm here to help you with your mental health concerns. How are you feeling today?",
				"Hi there! I'm your mental health assistant. What's on your mind?",
				"Welcome! I'm here to listen and provide support. What would you like to talk about?",
			},
		},
		{
			Name:     "anxiety",
			Keywords: []string{"anxious", "anxiety", "worried"},
			Replies: []string{
				"I understand you're feeling anxious. Let's try some breathing exercises together. Take a deep breath in for 4 counts, hold for 4, and exhale for 6 counts.",
				"Anxiety can be overwhelming. Remember, it's okay to feel this way. Would you like to try some grounding techniques?",
				"Let's focus on what you can control right now. Can you name 3 things you can see, hear, or feel in this moment?",
			},
		},
		{
			Name:     "depression",
			Keywords: []string{"depressed", "sad", "hopeless"},
			Replies: []string{
				"I hear that you're struggling. Depression can make everything feel heavy. You're not alone in this.",
				"It takes courage to reach out. Even small steps matter. What's one thing that brought you a little joy recently?",
				"Depression can be isolating. Remember that seeking help is a sign of strength, not weakness.",
			},
		},
		{
			Name:     "stress",
			Keywords: []string{"stressed", "overwhelmed", "pressure"},
			Replies: []string{
				"Stress is a natural response, but it can be managed. Let's break down what's causing you stress right now.",
				"When we're stressed, our thoughts can spiral. Let's focus on one thing at a time. What's the most pressing concern?",
				"Stress management is a skill that can be learned. Would you like to try some relaxation techniques?",
			},
		},
		{
			Name:     "crisis",
			Keywords: []string{"hurt", "suicide", "end it"},
			Replies: []string{
				"I'm concerned about your safety. Please reach out to a trusted person or professional immediately.",
				"If you're having thoughts of self-harm, please contact your local emergency services or a crisis hotline.",
				"Your safety is the most important thing right now. Please seek immediate professional help.",
			},
		},
	}
}

// CannedResponder 基于关键词表的回复策略。关键词按单词边界匹配，
// 避免 "this" 这类词误命中 "hi"。
type CannedResponder struct {
	topics []Topic
	crisis *Topic
	// pick 从 n 个候选中选一个下标
	pick func(n int) int
}

// NewCannedResponder 创建回复器，pick 为 nil 时随机选择。
func NewCannedResponder(topics []Topic, pick func(n int) int) *CannedResponder {
	if len(topics) == 0 {
		topics = DefaultTopics()
	}
	if pick == nil {
		pick = rand.Intn
	}
	r := &CannedResponder{topics: make([]Topic, len(topics)), pick: pick}
	for i, t := range topics {
		for _, k := range t.Keywords {
			t.patterns = append(t.patterns, regexp.MustCompile(`\b`+regexp.QuoteMeta(strings.ToLower(k))+`\b`))
		}
		r.topics[i] = t
	}
	for i := range r.topics {
		if r.topics[i].Name == "crisis" {
			r.crisis = &r.topics[i]
		}
	}
	return r
}

func (t *Topic) matches(lower string) bool {
	for _, p := range t.patterns {
		if p.MatchString(lower) {
			return true
		}
	}
	return false
}

// Respond 危机消息总是使用 crisis 主题回复，其余按主题顺序匹配，未命中则使用兜底回复。
func (r *CannedResponder) Respond(text string, a Assessment) Reply {
	if a.Crisis && r.crisis != nil {
		return r.reply(r.crisis, model.MessageEmergency)
	}
	lower := strings.ToLower(text)
	for i := range r.topics {
		t := &r.topics[i]
		if t.matches(lower) {
			typ := model.MessageText
			if t == r.crisis {
				typ = model.MessageEmergency
			}
			return r.reply(t, typ)
		}
	}
	return Reply{
		Content:          fallbackReply,
		Type:             model.MessageText,
		Confidence:       0.5,
		SuggestedActions: defaultActions,
	}
}

var defaultActions = []string{"breathing_exercise", "grounding_technique", "schedule_appointment"}

func (r *CannedResponder) reply(t *Topic, typ model.MessageType) Reply {
	actions := defaultActions
	if typ == model.MessageEmergency {
		actions = []string{"contact_crisis_line", "schedule_appointment"}
	}
	return Reply{
		Content:          t.Replies[r.pick(len(t.Replies))],
		Topic:            t.Name,
		Type:             typ,
		Confidence:       0.8,
		SuggestedActions: actions,
	}
}
