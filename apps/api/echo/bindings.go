package echoapi

import (
	"time"

	"github.com/trezcool/planner/core"
	"github.com/trezcool/planner/core/calendar"
	"github.com/trezcool/planner/core/planning"
)

const dateLayout = "2006-01-02"

type (
	LoginRequest struct {
		Username string `json:"username" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	LoginResponse struct {
		Token string `json:"token"`
	}

	WeeksRequest struct {
		Year    int   `query:"year"`
		Month   int   `query:"month"`
		ClassID int64 `query:"class_id"`
	}

	Week struct {
		ISOYear       int               `json:"iso_year"`
		ISOWeek       int               `json:"iso_week"`
		StartDate     string            `json:"start_date"`
		EndDate       string            `json:"end_date"`
		Days          []string          `json:"days"`
		MonthsCovered []int             `json:"months_covered"`
		OtherMonths   []int             `json:"other_months"`
		Shared        bool              `json:"shared"`
		Planning      *planning.Summary `json:"planning,omitempty"`
	}

	FindOrCreateResponse struct {
		PlanningID string          `json:"planning_id"`
		Status     planning.Status `json:"status"`
		Created    bool            `json:"created"`
	}

	ResetResponse struct {
		Reset planning.Key `json:"reset"`
	}

	CommentRequest struct {
		Text string `json:"text"`
	}

	UnreadCountResponse struct {
		Count int `json:"count"`
	}

	MarkAllReadResponse struct {
		Updated int `json:"updated"`
	}
)

func (lr *LoginRequest) Clean() {
	lr.Username = core.CleanString(lr.Username, true /* lower */)
}

func months(ms []time.Month) []int {
	out := make([]int, 0, len(ms))
	for _, m := range ms {
		out = append(out, int(m))
	}
	return out
}

// newWeek renders w as seen from month (which decides OtherMonths).
func newWeek(w calendar.WeekInfo, month time.Month, sum *planning.Summary) Week {
	days := make([]string, 0, len(w.Days))
	for _, d := range w.Days {
		days = append(days, d.Format(dateLayout))
	}
	return Week{
		ISOYear:       w.ISOYear,
		ISOWeek:       w.ISOWeek,
		StartDate:     w.StartDate.Format(dateLayout),
		EndDate:       w.EndDate.Format(dateLayout),
		Days:          days,
		MonthsCovered: months(w.MonthsCovered),
		OtherMonths:   months(w.OtherMonths(month)),
		Shared:        w.Shared,
		Planning:      sum,
	}
}
