package echoapi

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/planner/core/calendar"
	"github.com/trezcool/planner/core/planning"
)

var nowFunc = func() time.Time { return time.Now().UTC() } // mockable

type weekApi struct {
	planningSvc *planning.Service
}

func registerWeekAPI(g *echo.Group, authed []echo.MiddlewareFunc, planningSvc *planning.Service) {
	api := weekApi{planningSvc: planningSvc}

	wg := g.Group("/weeks", authed...)
	wg.GET("", api.query)
	wg.GET("/current", api.current)
}

// query lists the ISO weeks touching a month (defaults to the current one).
func (api *weekApi) query(ctx echo.Context) error {
	var req WeeksRequest
	if err := ctx.Bind(&req); err != nil {
		return errors.Wrap(err, "binding to WeeksRequest")
	}
	today := nowFunc()
	if req.Year == 0 {
		req.Year = today.Year()
	}
	if req.Month == 0 {
		req.Month = int(today.Month())
	}

	usr, err := getContextUser(ctx)
	if err != nil {
		return err
	}
	month := time.Month(req.Month)
	overview, err := api.planningSvc.MonthOverview(ctx.Request().Context(), usr, req.ClassID, req.Year, month)
	if err != nil {
		return err
	}

	weeks := make([]Week, 0, len(overview))
	for _, w := range overview {
		weeks = append(weeks, newWeek(w.WeekInfo, month, w.Planning))
	}
	return ctx.JSON(http.StatusOK, weeks)
}

func (api *weekApi) current(ctx echo.Context) error {
	today := nowFunc()
	w, err := calendar.WeekOf(today)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, newWeek(w, today.Month(), nil))
}
