// Package availability 计算咨询师某一天的可预约时段。
package availability

import (
	"errors"
	"fmt"
	"time"

	"mindbridge-go/internal/model"
	"mindbridge-go/pkg/apperr"
)

const (
	dateLayout    = "2006-01-02"
	displayLayout = "03:04 PM"
)

// Policy 描述排班策略：每天 [StartHour, EndHour) 内按 Slot 粒度切分。
type Policy struct {
	Location  *time.Location
	StartHour int
	EndHour   int
	Slot      time.Duration
}

// DefaultPolicy 为 09:00-17:00，每小时一个时段。
func DefaultPolicy() Policy {
	return Policy{Location: time.UTC, StartHour: 9, EndHour: 17, Slot: time.Hour}
}

func (p Policy) Validate() error {
	if p.StartHour < 0 || p.EndHour > 24 || p.StartHour >= p.EndHour {
		return fmt.Errorf("invalid working window %02d:00-%02d:00", p.StartHour, p.EndHour)
	}
	if p.Slot <= 0 {
		return errors.New("slot duration must be positive")
	}
	return nil
}

func (p Policy) loc() *time.Location {
	if p.Location == nil {
		return time.UTC
	}
	return p.Location
}

// Booking 是计算可用时段时需要的预约视图。
type Booking struct {
	Start  time.Time
	Status model.AppointmentStatus
}

// Slot 是一个可预约时段。
type Slot struct {
	Time        time.Time `json:"time"`
	DisplayTime string    `json:"displayTime"`
}

// ParseDate 解析 YYYY-MM-DD，返回 loc 中当天零点。
func ParseDate(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	d, err := time.ParseInLocation(dateLayout, s, loc)
	if err != nil {
		return time.Time{}, apperr.Invalid("date", "must be in YYYY-MM-DD format")
	}
	return d, nil
}

// DayBounds 返回 date 所在自然日的 [start, end)。
func (p Policy) DayBounds(date time.Time) (time.Time, time.Time) {
	d := date.In(p.loc())
	start := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, p.loc())
	return start, start.AddDate(0, 0, 1)
}

// starts 返回 date 当天所有时段的起始时刻，升序。
func (p Policy) starts(date time.Time) []time.Time {
	day, _ := p.DayBounds(date)
	open := day.Add(time.Duration(p.StartHour) * time.Hour)
	closeAt := day.Add(time.Duration(p.EndHour) * time.Hour)

	var out []time.Time
	for t := open; !t.Add(p.Slot).After(closeAt); t = t.Add(p.Slot) {
		out = append(out, t)
	}
	return out
}

// OnGrid 报告 instant 是否恰好是某个时段的起点。
func (p Policy) OnGrid(instant time.Time) bool {
	for _, s := range p.starts(instant) {
		if s.Equal(instant) {
			return true
		}
	}
	return false
}

// Slots 计算 date 当天的空闲时段。若有效预约（非取消、非爽约）的开始时间
// 落在 [slot, slot+Slot) 内，该时段视为已占用。
func (p Policy) Slots(date time.Time, bookings []Booking) []Slot {
	starts := p.starts(date)
	slots := make([]Slot, 0, len(starts))
	for _, s := range starts {
		if p.occupied(s, bookings) {
			continue
		}
		local := s.In(p.loc())
		slots = append(slots, Slot{Time: local, DisplayTime: local.Format(displayLayout)})
	}
	return slots
}

func (p Policy) occupied(start time.Time, bookings []Booking) bool {
	end := start.Add(p.Slot)
	for _, b := range bookings {
		if !b.Status.HoldsSlot() {
			continue
		}
		if !b.Start.Before(start) && b.Start.Before(end) {
			return true
		}
	}
	return false
}

// IsFree 报告以 start 开始的时段是否未被有效预约占用。
func (p Policy) IsFree(start time.Time, bookings []Booking) bool {
	return !p.occupied(start, bookings)
}
