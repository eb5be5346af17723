package echoapi

import (
	"mime/multipart"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/kidoparadise/kido/core"
)

var (
	orderingParam = "ordering"
	fileField     = "file"
)

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return
	}
	for _, field := range strings.Split(val, ",") {
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

// queryInt returns the integer value of a query param, or def when it is missing or malformed.
func queryInt(ctx echo.Context, name string, def int) int {
	if n, err := strconv.Atoi(ctx.QueryParam(name)); err == nil {
		return n
	}
	return def
}

// requiredQuery returns a trimmed query param, or a validation error naming it.
func requiredQuery(ctx echo.Context, name string) (string, error) {
	val := core.CleanString(ctx.QueryParam(name))
	if val == "" {
		return "", core.NewValidationError(nil, core.FieldError{Field: name, Error: "this field is required"})
	}
	return val, nil
}

// uploadedFile opens the multipart "file" field. The caller must close the returned file.
func uploadedFile(ctx echo.Context) (multipart.File, *multipart.FileHeader, error) {
	fh, err := ctx.FormFile(fileField)
	if err != nil { // missing field, not a multipart body, ...
		return nil, nil, errFileRequired
	}
	f, err := fh.Open()
	if err != nil {
		return nil, nil, errors.Wrap(err, "opening uploaded file")
	}
	return f, fh, nil
}
