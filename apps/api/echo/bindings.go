package echoapi

import (
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/iems/core"
)

var (
	orderingParam = "ordering"
	fromParam     = "from"
	toParam       = "to"
	yearParam     = "year"
	monthParam    = "month"
)

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	data := ctx.QueryParams()
	if len(data) == 0 {
		return
	}
	val, ok := data[orderingParam]
	if !ok || len(val) == 0 || val[0] == "" {
		return
	}

	for _, field := range strings.Split(val[0], ",") {
		field = strings.TrimSpace(field)
		descending := strings.HasPrefix(field, "-")
		if descending {
			field = field[1:] // drop "-"
		}
		if field == "" {
			continue
		}
		ord.Orderings = append(ord.Orderings, core.DBOrdering{Field: field, Ascending: !descending})
	}
}

// DateRange is the `from`/`to` query params, in any format core.Timestamp accepts.
type DateRange struct {
	From time.Time
	To   time.Time
}

func (dr *DateRange) Bind(ctx echo.Context) error {
	var fldErrs []core.FieldError
	for param, dst := range map[string]*time.Time{fromParam: &dr.From, toParam: &dr.To} {
		val := ctx.QueryParam(param)
		if val == "" {
			continue
		}
		ts, err := core.ParseTimestamp(val)
		if err != nil {
			fldErrs = append(fldErrs, core.FieldError{Field: param, Error: "invalid date"})
			continue
		}
		*dst = ts
	}
	if fldErrs != nil {
		return core.NewValidationError(nil, fldErrs...)
	}
	if !dr.From.IsZero() && !dr.To.IsZero() && dr.To.Before(dr.From) {
		return core.NewValidationError(nil, core.FieldError{Field: toParam, Error: "must not be before from"})
	}
	return nil
}

// YearMonth is the `year`/`month` query params of the calendar; both default to the current month.
type YearMonth struct {
	Year  int
	Month time.Month
}

func (ym *YearMonth) Bind(ctx echo.Context) error {
	now := core.NowFunc()
	ym.Year, ym.Month = now.Year(), now.Month()

	if val := ctx.QueryParam(yearParam); val != "" {
		year, err := strconv.Atoi(val)
		if err != nil || year < 1 || year > 9999 {
			return core.NewValidationError(nil, core.FieldError{Field: yearParam, Error: "invalid year"})
		}
		ym.Year = year
	}
	if val := ctx.QueryParam(monthParam); val != "" {
		month, err := strconv.Atoi(val)
		if err != nil || month < 1 || month > 12 {
			return core.NewValidationError(nil, core.FieldError{Field: monthParam, Error: "invalid month"})
		}
		ym.Month = time.Month(month)
	}
	return nil
}
