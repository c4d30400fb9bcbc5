package routes

import (
	"regexp"
	"strings"

	"github.com/JaimeStill/aura/pkg/openapi"
)

var wildcard = regexp.MustCompile(`\{([^}.]+)(?:\.\.\.)?\}`)

// Document adds every documented route in groups to spec under basePath.
// Routes without an OpenAPI operation are omitted. Path parameters missing
// from an operation are derived from the route pattern.
func Document(spec *openapi.Spec, basePath string, groups ...Group) {
	for _, group := range groups {
		documentGroup(spec, basePath, nil, false, group)
	}
}

func documentGroup(spec *openapi.Spec, prefix string, tags []string, secured bool, group Group) {
	fullPrefix := prefix + group.Prefix
	if len(group.Tags) > 0 {
		tags = group.Tags
		for _, tag := range group.Tags {
			spec.AddTag(tag, group.Description)
		}
	}
	secured = secured || group.Secured

	for _, route := range group.Routes {
		if route.OpenAPI == nil {
			continue
		}

		path := fullPrefix + route.Pattern
		op := *route.OpenAPI
		if len(op.Tags) == 0 {
			op.Tags = tags
		}
		if secured && op.Security == nil {
			op.Security = openapi.Bearer()
		}
		if op.Responses == nil {
			op.Responses = map[int]*openapi.Response{}
		}
		if len(op.Parameters) == 0 {
			for _, m := range wildcard.FindAllStringSubmatch(path, -1) {
				op.Parameters = append(op.Parameters, openapi.PathParam(m[1], ""))
			}
		}

		item, ok := spec.Paths[path]
		if !ok {
			item = &openapi.PathItem{}
			spec.Paths[path] = item
		}
		item.Set(methodKey(route.Method), &op)
	}

	for _, child := range group.Children {
		documentGroup(spec, fullPrefix, tags, secured, child)
	}
}

// methodKey normalizes an HTTP method for PathItem assignment.
func methodKey(method string) string {
	return strings.ToUpper(strings.TrimSpace(method))
}
