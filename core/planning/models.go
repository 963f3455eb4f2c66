package planning

import (
	"io"
	"mime"
	"path/filepath"
	"strings"
	"time"

	"github.com/trezcool/planner/core/calendar"
)

// Status is the moderation state of a plan.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Action is a moderation request on a plan.
type Action string

const (
	ActionApprove Action = "approve"
	ActionReject  Action = "reject"
)

// Target returns the status the action moves a plan to.
func (a Action) Target() (Status, bool) {
	switch a {
	case ActionApprove:
		return StatusApproved, true
	case ActionReject:
		return StatusRejected, true
	}
	return "", false
}

// Key identifies the single plan of a class for an ISO week.
type Key struct {
	ClassID int64 `json:"class_id" validate:"required,gt=0"`
	ISOYear int   `json:"iso_year" validate:"required"`
	ISOWeek int   `json:"iso_week" validate:"required"`
}

// code packs the ISO year and week into a single sortable number (eg. 202518).
func (k Key) code() int64 {
	return int64(k.ISOYear)*100 + int64(k.ISOWeek)
}

// WeekCode is the packed (iso_year, iso_week) form used to look plans up by week.
func WeekCode(isoYear, isoWeek int) int64 {
	return Key{ISOYear: isoYear, ISOWeek: isoWeek}.code()
}

type Plan struct {
	ID             string    `json:"id"`
	ClassID        int64     `json:"class_id"`
	ISOYear        int       `json:"iso_year"`
	ISOWeek        int       `json:"iso_week"`
	Status         Status    `json:"status"`
	CreatedBy      string    `json:"created_by,omitempty"`
	CreatedAt      time.Time `json:"created_at"`       // UTC
	LastModifiedAt time.Time `json:"last_modified_at"` // UTC
}

func (p Plan) Key() Key {
	return Key{ClassID: p.ClassID, ISOYear: p.ISOYear, ISOWeek: p.ISOWeek}
}

type Attachment struct {
	ID           string    `json:"id"`
	PlanID       string    `json:"planning_id"`
	OriginalName string    `json:"original_name"`
	StorageRef   string    `json:"-"`
	MimeType     string    `json:"mime_type"`
	Size         int64     `json:"size"`
	UploadedBy   string    `json:"uploaded_by"`
	UploadedAt   time.Time `json:"uploaded_at"` // UTC
}

type Comment struct {
	ID         string    `json:"id"`
	PlanID     string    `json:"planning_id"`
	AuthorID   string    `json:"author_id"`
	AuthorName string    `json:"author_name"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"created_at"` // UTC
}

// Detail is a plan along with its attachments and comments (oldest first).
type Detail struct {
	Plan
	Attachments []Attachment `json:"attachments"`
	Comments    []Comment    `json:"comments"`
}

// Summary is the per-week digest of a plan shown on week lists.
type Summary struct {
	PlanID          string `json:"id"`
	ISOYear         int    `json:"-"`
	ISOWeek         int    `json:"-"`
	Status          Status `json:"status"`
	AttachmentCount int    `json:"attachment_count"`
	CommentCount    int    `json:"comment_count"`
}

// WeekOverview is an ISO week of a month with the class's plan for that week, if any.
type WeekOverview struct {
	calendar.WeekInfo
	Planning *Summary
}

// StatusChange is a moderation request.
type StatusChange struct {
	Action Action `json:"action" validate:"required,planaction"`
}

// NewAttachment contains the information needed to attach a file to a plan.
type NewAttachment struct {
	Name     string
	MimeType string
	Size     int64
	Content  io.Reader
}

var (
	allowedExtensions = map[string]bool{
		".pdf":  true,
		".doc":  true,
		".docx": true,
		".odt":  true,
	}
	allowedMimeTypes = map[string]bool{
		"application/pdf":    true,
		"application/msword": true,
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
		"application/vnd.oasis.opendocument.text":                                 true,
	}
)

// Allowed reports whether the file's extension or its declared mime type is an accepted document type.
func (na NewAttachment) Allowed() bool {
	if allowedExtensions[strings.ToLower(filepath.Ext(na.Name))] {
		return true
	}
	mt, _, err := mime.ParseMediaType(na.MimeType)
	return err == nil && allowedMimeTypes[strings.ToLower(mt)]
}

func (na *NewAttachment) Clean() {
	na.Name = filepath.Base(strings.TrimSpace(na.Name))
	na.MimeType = strings.TrimSpace(na.MimeType)
	if na.MimeType == "" {
		na.MimeType = mime.TypeByExtension(strings.ToLower(filepath.Ext(na.Name)))
	}
	if na.MimeType == "" {
		na.MimeType = "application/octet-stream"
	}
}
