package model

import (
	"strings"
	"time"
)

// LocalTime 在 JSON 中输出为 "YYYY-MM-DD HH:MM:SS"，供管理后台展示。
type LocalTime time.Time

const timeFormat = "2006-01-02 15:04:05"

// NewLocalTime 转换可空的时间字段，nil 保持为 nil。
func NewLocalTime(t *time.Time) *LocalTime {
	if t == nil {
		return nil
	}
	lt := LocalTime(*t)
	return &lt
}

func (t LocalTime) String() string {
	return time.Time(t).Format(timeFormat)
}

func (t LocalTime) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

// UnmarshalJSON 按 UTC 解析，空字符串和 null 解析为零值。
func (t *LocalTime) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*t = LocalTime{}
		return nil
	}
	parsed, err := time.ParseInLocation(timeFormat, s, time.UTC)
	if err != nil {
		return err
	}
	*t = LocalTime(parsed)
	return nil
}
