package service

import (
	"errors"
	"fmt"

	"mindbridge-go/pkg/apperr"
)

var (
	ErrUserNotFound        = fmt.Errorf("%w: user not found", apperr.ErrNotFound)
	ErrCounselorNotFound   = fmt.Errorf("%w: counselor not found", apperr.ErrNotFound)
	ErrAppointmentNotFound = fmt.Errorf("%w: appointment not found", apperr.ErrNotFound)
	ErrSessionNotFound     = fmt.Errorf("%w: chat session not found", apperr.ErrNotFound)
	ErrResourceNotFound    = fmt.Errorf("%w: resource not found", apperr.ErrNotFound)
	ErrNoAttachment        = fmt.Errorf("%w: resource has no attachment", apperr.ErrNotFound)
	ErrPostNotFound        = fmt.Errorf("%w: post not found", apperr.ErrNotFound)
	ErrCommentNotFound     = fmt.Errorf("%w: comment not found", apperr.ErrNotFound)
	ErrGroupNotFound       = fmt.Errorf("%w: support group not found", apperr.ErrNotFound)

	ErrSlotUnavailable = fmt.Errorf("%w: time slot is not available", apperr.ErrConflict)
	ErrFeedbackExists  = fmt.Errorf("%w: feedback already submitted", apperr.ErrConflict)
	ErrUsernameTaken   = fmt.Errorf("%w: username already exists", apperr.ErrConflict)
	ErrAlreadyLiked    = fmt.Errorf("%w: post already liked", apperr.ErrConflict)
	ErrAlreadyMember   = fmt.Errorf("%w: already a member of this group", apperr.ErrConflict)
	ErrGroupFull       = fmt.Errorf("%w: support group is full", apperr.ErrConflict)

	// 对已完成预约的修改既是非法状态也是冲突
	ErrAlreadyCompleted  = apperr.NewKinded("appointment already completed", apperr.ErrState, apperr.ErrConflict)
	ErrAlreadyCancelled  = fmt.Errorf("%w: appointment already cancelled", apperr.ErrState)
	ErrInvalidTransition = fmt.Errorf("%w: invalid status transition", apperr.ErrState)
	ErrNotCompleted      = fmt.Errorf("%w: appointment is not completed", apperr.ErrState)
	ErrSessionClosed     = fmt.Errorf("%w: chat session no longer accepts messages", apperr.ErrState)
	ErrPostNotOpen       = fmt.Errorf("%w: post is not published", apperr.ErrState)
	ErrNotMember         = fmt.Errorf("%w: not a member of this group", apperr.ErrState)

	ErrNotOwner = fmt.Errorf("%w: not allowed to access this record", apperr.ErrForbidden)

	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountDisabled    = fmt.Errorf("%w: account is disabled", apperr.ErrForbidden)
)
