/*
Package auth provides the role check filter.

The require-roles filter rejects the requests that do not carry every one
of the configured roles. The roles of a request are read from the state
bag, where an authentication filter may store them under RolesKey as a
[]string, and from a request header containing a comma separated list:

	{
	  "name": "require-roles",
	  "version": "1.0.0",
	  "config": {
	    "roles": ["orders:read", "orders:write"],
	    "header": "X-Roles"
	  }
	}

Requests without any role receive 401 Unauthorized, requests with some
roles missing 403 Forbidden.
*/
package auth

import (
	"net/http"
	"slices"
	"strings"

	"github.com/rgwgateway/rgw/filters"
)

const (
	RequireRolesName = "require-roles"
	Version          = "1.0.0"

	RolesKey      = "rgw:roles"
	DefaultHeader = "X-Roles"
)

// HasRoles tells whether every required role is in have. No required
// roles is always satisfied.
func HasRoles(have []string, required ...string) bool {
	for _, r := range required {
		if !slices.Contains(have, r) {
			return false
		}
	}

	return true
}

// Roles returns the roles of the request in ctx.
func Roles(ctx filters.FilterContext, header string) []string {
	var roles []string
	if r, ok := ctx.StateBag()[RolesKey].([]string); ok {
		roles = append(roles, r...)
	}

	if header == "" {
		return roles
	}

	for _, v := range ctx.Request().Header.Values(header) {
		for _, r := range strings.Split(v, ",") {
			if r = strings.TrimSpace(r); r != "" {
				roles = append(roles, r)
			}
		}
	}

	return roles
}

type requireRoles struct {
	Roles  []string `json:"roles"`
	Header string   `json:"header"`
}

// NewRequireRoles creates an unconfigured role check filter.
func NewRequireRoles() filters.Configurable {
	return &requireRoles{Header: DefaultHeader}
}

func (f *requireRoles) Configure(config []byte) error {
	if err := filters.DecodeConfig(config, f); err != nil {
		return err
	}

	if len(f.Roles) == 0 {
		return filters.InvalidConfigf("no roles required")
	}

	if slices.Contains(f.Roles, "") {
		return filters.InvalidConfigf("empty role")
	}

	return nil
}

func (f *requireRoles) Filter(ctx filters.FilterContext, next filters.Chain) error {
	have := Roles(ctx, f.Header)
	if len(have) == 0 {
		http.Error(ctx.ResponseWriter(), http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
		return nil
	}

	if !HasRoles(have, f.Roles...) {
		ctx.Logger().Debugf("missing roles on route %s, required: %v, have: %v", ctx.RouteId(), f.Roles, have)
		http.Error(ctx.ResponseWriter(), http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return nil
	}

	return next.Next(ctx)
}
