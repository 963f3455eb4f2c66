package notification

import "time"

// Kind identifies the event a notification reports.
type Kind string

const (
	KindApproved          Kind = "aprovado"
	KindRejected          Kind = "reprovado"
	KindAttachmentAdded   Kind = "anexo_adicionado"
	KindAttachmentDeleted Kind = "anexo_deletado"
	KindComment           Kind = "comentario"
	KindCommentDeleted    Kind = "comentario_deletado"
)

type Notification struct {
	ID            string    `json:"id"`
	RecipientID   string    `json:"recipient_id"`
	Kind          Kind      `json:"kind"`
	Message       string    `json:"message"`
	RelatedPlanID string    `json:"related_plan_id,omitempty"` // empty once the plan is deleted
	Read          bool      `json:"read"`
	CreatedAt     time.Time `json:"created_at"` // UTC
}

// QueryFilter narrows down a recipient's notifications; results are always most-recent-first.
type QueryFilter struct {
	UnreadOnly bool `query:"unread"`
	Limit      int  `query:"limit"`
}

const (
	defaultLimit = 50
	maxLimit     = 200
)

func (qf *QueryFilter) Clean() {
	if qf.Limit <= 0 {
		qf.Limit = defaultLimit
	}
	if qf.Limit > maxLimit {
		qf.Limit = maxLimit
	}
}
