package handlers

import (
	"net/url"
	"strconv"

	"github.com/eval-hub/sim-hub/internal/executioncontext"
	"github.com/eval-hub/sim-hub/internal/http_wrappers"
	"github.com/eval-hub/sim-hub/internal/messages"
	"github.com/eval-hub/sim-hub/internal/serviceerrors"
	"github.com/eval-hub/sim-hub/pkg/api"
)

func CreatePage(total int, offset int, limit int, ctx *executioncontext.ExecutionContext, r http_wrappers.RequestWrapper) (*api.Page, error) {
	hasNext := offset+limit < total
	var nextHref *api.HRef
	if hasNext {
		href, err := url.Parse(r.URI())
		if err != nil {
			ctx.Logger.Error("Failed to parse request URI", "uri", r.URI(), "error", err)
			return nil, serviceerrors.NewServiceError(messages.InternalServerError, "Error", err.Error())
		}
		q := href.Query()
		q.Set("offset", strconv.Itoa(offset+limit))
		href.RawQuery = q.Encode()
		nextHref = &api.HRef{Href: href.String()}
	}

	return &api.Page{
		First:      &api.HRef{Href: r.URI()},
		Next:       nextHref,
		Limit:      limit,
		TotalCount: total,
	}, nil
}

// queryString returns the first value of the query parameter or an empty string
func queryString(r http_wrappers.RequestWrapper, name string) string {
	values := r.Query(name)
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// queryInt returns the query parameter as a non negative integer or the default value
func queryInt(r http_wrappers.RequestWrapper, name string, defaultValue int) (int, error) {
	value := queryString(r, name)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return 0, serviceerrors.NewServiceError(messages.QueryParameterInvalid, "ParameterName", name, "Type", "non negative integer", "Value", value)
	}
	return n, nil
}
