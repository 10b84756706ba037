package dispatcher

import (
	"context"
	"strings"
)

// Params holds the values bound to {name} segments of a matched pattern.
type Params map[string]string

// HandlerFunc serves one routed request. It returns the success status and
// the value to encode as the response body.
type HandlerFunc func(ctx context.Context, req *Request, params Params) (int, any, error)

type route struct {
	method   string
	pattern  string
	segments []string
	handler  HandlerFunc
}

// Router resolves exact method+path routes first, then parameterized
// patterns in registration order.
type Router struct {
	exact    map[string]*route
	patterns []*route
}

func NewRouter() *Router {
	return &Router{exact: make(map[string]*route)}
}

func exactKey(method, path string) string {
	return method + " " + path
}

func splitPath(path string) []string {
	return strings.Split(strings.Trim(path, "/"), "/")
}

func (r *Router) Handle(method, pattern string, h HandlerFunc) {
	rt := &route{method: method, pattern: pattern, segments: splitPath(pattern), handler: h}
	if !strings.Contains(pattern, "{") {
		r.exact[exactKey(method, pattern)] = rt
		return
	}
	r.patterns = append(r.patterns, rt)
}

// match returns the route serving method and path, with its bound params.
func (r *Router) match(method, path string) (*route, Params, bool) {
	path = "/" + strings.Trim(path, "/")
	if rt, ok := r.exact[exactKey(method, path)]; ok {
		return rt, Params{}, true
	}

	segs := splitPath(path)
	for _, rt := range r.patterns {
		if rt.method != method || len(rt.segments) != len(segs) {
			continue
		}
		if params, ok := bind(rt.segments, segs); ok {
			return rt, params, true
		}
	}
	return nil, nil, false
}

func bind(pattern, segs []string) (Params, bool) {
	params := Params{}
	for i, p := range pattern {
		if strings.HasPrefix(p, "{") && strings.HasSuffix(p, "}") {
			if segs[i] == "" {
				return nil, false
			}
			params[p[1:len(p)-1]] = segs[i]
			continue
		}
		if p != segs[i] {
			return nil, false
		}
	}
	return params, true
}
