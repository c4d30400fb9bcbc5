package routes

import "net/http"

// Middleware wraps a handler.
type Middleware = func(http.Handler) http.Handler

// Group organizes routes under a common prefix with shared tags and middleware.
// Middleware declared on a group also applies to its children. Secured marks
// the group's routes, and its children's, as requiring a bearer token in the
// generated document.
type Group struct {
	Prefix      string
	Tags        []string
	Description string
	Secured     bool
	Middleware  []Middleware
	Routes      []Route
	Children    []Group
}

// Register adds all routes from the given groups to the mux.
func Register(mux *http.ServeMux, groups ...Group) {
	for _, group := range groups {
		registerGroup(mux, "", nil, group)
	}
}

func registerGroup(mux *http.ServeMux, parentPrefix string, inherited []Middleware, group Group) {
	fullPrefix := parentPrefix + group.Prefix
	stack := append(append([]Middleware{}, inherited...), group.Middleware...)

	for _, route := range group.Routes {
		pattern := route.Method + " " + fullPrefix + route.Pattern
		mux.Handle(pattern, wrap(route.Handler, stack))
	}
	for _, child := range group.Children {
		registerGroup(mux, fullPrefix, stack, child)
	}
}

func wrap(handler http.Handler, stack []Middleware) http.Handler {
	for i := len(stack) - 1; i >= 0; i-- {
		handler = stack[i](handler)
	}
	return handler
}
