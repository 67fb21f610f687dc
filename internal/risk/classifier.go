// Package risk 识别聊天消息中的危机信号，并提供可替换的自动回复策略。
package risk

import (
	"strings"

	"mindbridge-go/internal/model"
)

// DefaultCrisisKeywords 是危机关键词，命中任意一个即视为危机消息。
var DefaultCrisisKeywords = []string{
	"suicide",
	"hurt myself",
	"end it all",
	"not worth living",
	"kill myself",
	"want to die",
}

// Assessment 是单条消息的风险评估结果。
type Assessment struct {
	Crisis  bool
	Level   model.RiskLevel
	Matched []string
}

// Classifier 评估消息风险。实现必须是无状态、并发安全的。
type Classifier interface {
	Classify(text string) Assessment
}

// KeywordClassifier 大小写不敏感的子串匹配。
type KeywordClassifier struct {
	keywords []string
}

func NewKeywordClassifier(keywords []string) *KeywordClassifier {
	if len(keywords) == 0 {
		keywords = DefaultCrisisKeywords
	}
	lowered := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			lowered = append(lowered, k)
		}
	}
	return &KeywordClassifier{keywords: lowered}
}

// Classify 命中危机关键词时返回 critical，否则 Level 为空，调用方保持原等级。
func (c *KeywordClassifier) Classify(text string) Assessment {
	lower := strings.ToLower(text)
	var matched []string
	for _, k := range c.keywords {
		if strings.Contains(lower, k) {
			matched = append(matched, k)
		}
	}
	if len(matched) == 0 {
		return Assessment{}
	}
	return Assessment{Crisis: true, Level: model.RiskCritical, Matched: matched}
}

// Apply 把评估结果作用到会话上：危机消息将风险提升为 critical 并升级会话，
// 非危机消息不改变风险等级。返回会话是否因此新进入 escalated。
func Apply(session *model.ChatSession, a Assessment) bool {
	if !a.Crisis {
		return false
	}
	session.RiskLevel = model.MaxRisk(session.RiskLevel, a.Level)
	if session.Status == model.SessionEscalated {
		return false
	}
	session.Status = model.SessionEscalated
	return true
}
