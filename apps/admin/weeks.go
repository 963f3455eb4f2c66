package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/trezcool/planner/core/calendar"
)

func (cli *commandLine) weeks(year, month int) error {
	weeks, err := calendar.WeeksForMonth(year, time.Month(month))
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cli.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "WEEK\tFROM\tTO\tOTHER MONTHS")
	for _, wk := range weeks {
		others := make([]string, 0, 2)
		for _, m := range wk.OtherMonths(time.Month(month)) {
			others = append(others, m.String())
		}
		fmt.Fprintf(w, "%d-W%02d\t%s\t%s\t%s\n",
			wk.ISOYear, wk.ISOWeek, wk.StartDate.Format("2006-01-02"), wk.EndDate.Format("2006-01-02"), strings.Join(others, ","))
	}
	return w.Flush()
}
