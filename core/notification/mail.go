package notification

import (
	"context"
	"fmt"
	"net/mail"

	"github.com/trezcool/planner/core"
	"github.com/trezcool/planner/core/user"
)

const mailTemplate = "plan_notification"

var mailSubjects = map[Kind]string{
	KindApproved:          "Planning approved",
	KindRejected:          "Planning rejected",
	KindAttachmentAdded:   "New attachment on a planning",
	KindAttachmentDeleted: "Attachment removed from a planning",
	KindComment:           "New comment on a planning",
	KindCommentDeleted:    "Comment removed from a planning",
}

type (
	UserGetter interface {
		GetByID(ctx context.Context, id string) (user.User, error)
	}

	// MailMirror emails the recipients of notifications of the configured kinds.
	MailMirror struct {
		users   UserGetter
		mailSvc core.EmailService
		logger  core.Logger
		kinds   map[Kind]bool
	}

	mailData struct {
		RecipientName string
		Message       string
		PlanID        string
	}
)

var _ Mirror = (*MailMirror)(nil)

func NewMailMirror(users UserGetter, mailSvc core.EmailService, logger core.Logger, kinds ...Kind) *MailMirror {
	m := &MailMirror{
		users:   users,
		mailSvc: mailSvc,
		logger:  logger,
		kinds:   make(map[Kind]bool, len(kinds)),
	}
	for _, k := range kinds {
		m.kinds[k] = true
	}
	return m
}

func (m *MailMirror) Mirror(ctx context.Context, ns []Notification) {
	msgs := make([]*core.EmailMessage, 0, len(ns))
	for _, n := range ns {
		if !m.kinds[n.Kind] {
			continue
		}
		usr, err := m.users.GetByID(ctx, n.RecipientID)
		if err != nil {
			m.logger.Warn(fmt.Sprintf("mirroring notification %s: %v", n.ID, err), err)
			continue
		}
		if usr.Email == "" || !usr.IsActive {
			continue
		}
		msgs = append(msgs, &core.EmailMessage{
			To:           []mail.Address{{Name: usr.Name, Address: usr.Email}},
			Subject:      mailSubjects[n.Kind],
			TemplateName: mailTemplate,
			TemplateData: mailData{RecipientName: usr.Name, Message: n.Message, PlanID: n.RelatedPlanID},
		})
	}
	if len(msgs) > 0 {
		m.mailSvc.SendMessages(msgs...)
	}
}
