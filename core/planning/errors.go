package planning

import (
	"errors"

	"github.com/trezcool/planner/core"
)

var (
	ErrPlanNotFound       = core.NewError(core.KindNotFound, "planning_not_found", "planning not found")
	ErrAttachmentNotFound = core.NewError(core.KindNotFound, "attachment_not_found", "attachment not found")
	ErrCommentNotFound    = core.NewError(core.KindNotFound, "comment_not_found", "comment not found")

	ErrDuplicatePlanningKey = core.NewError(core.KindConflict, "duplicate_planning_key", "a planning already exists for this class and week")
	ErrNoOpTransition       = core.NewError(core.KindConflict, "noop_transition", "the planning already has this status")

	ErrUnauthorized          = core.NewError(core.KindForbidden, "unauthorized", "permission denied")
	ErrInvalidAttachmentType = core.NewError(core.KindInvalid, "invalid_attachment_type", "only pdf, doc, docx and odt files are allowed")
	ErrEmptyComment          = core.NewError(core.KindInvalid, "empty_comment", "comment cannot be empty")
	ErrInvalidAction         = core.NewError(core.KindInvalid, "invalid_action", "action must be one of approve or reject")

	// ErrNotificationDelivery is only ever logged.
	ErrNotificationDelivery = errors.New("notification delivery failed")
)
