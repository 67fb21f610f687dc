// Package tasks defines the notification events sent through Kafka.
package tasks

import "time"

// Kind identifies what happened.
type Kind string

const (
	KindChatEscalated        Kind = "chat.escalated"
	KindScreeningFollowUp    Kind = "screening.follow_up"
	KindAppointmentBooked    Kind = "appointment.booked"
	KindAppointmentCancelled Kind = "appointment.cancelled"
	KindAppointmentMoved     Kind = "appointment.rescheduled"
	KindAppointmentStatus    Kind = "appointment.status_changed"
	KindPeerContentFlagged   Kind = "peer.content_flagged"
)

// NotificationTask is a single event for the notification pipeline.
// Only the fields relevant to Kind are set.
type NotificationTask struct {
	ID            string     `json:"id"`
	Kind          Kind       `json:"kind"`
	UserID        uint       `json:"user_id,omitempty"`
	CounselorID   uint       `json:"counselor_id,omitempty"`
	SessionID     string     `json:"session_id,omitempty"`
	AppointmentID uint       `json:"appointment_id,omitempty"`
	ScreeningID   uint       `json:"screening_id,omitempty"`
	PostID        uint       `json:"post_id,omitempty"`
	CommentID     uint       `json:"comment_id,omitempty"`
	RiskLevel     string     `json:"risk_level,omitempty"`
	Status        string     `json:"status,omitempty"`
	Severity      string     `json:"severity,omitempty"`
	Reason        string     `json:"reason,omitempty"`
	ScheduledFor  *time.Time `json:"scheduled_for,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}
