package openapi

import "maps"

// BearerAuth names the JWT bearer security scheme.
const BearerAuth = "bearerAuth"

// Bearer is the requirement attached to operations behind token auth.
func Bearer() []Requirement {
	return []Requirement{{BearerAuth: {}}}
}

// Shared error responses, keyed by component name. Every one carries the
// Error schema.
var errorResponses = map[string]string{
	"BadRequest":         "Invalid request",
	"Unauthorized":       "Missing or invalid bearer token",
	"Forbidden":          "Token lacks the required role",
	"NotFound":           "Resource not found",
	"Conflict":           "Resource conflict",
	"PayloadTooLarge":    "Upload exceeds the configured size limit",
	"ServiceUnavailable": "A dependency is unavailable",
}

// NewComponents returns the components every Aura document starts with: the
// Error and PageRequest schemas, the shared error responses and bearerAuth.
func NewComponents() *Components {
	c := &Components{
		Schemas: map[string]*Schema{
			"Error": {
				Type:     "object",
				Required: []string{"error"},
				Properties: map[string]*Schema{
					"error": {Type: "string", Description: "Error message"},
				},
			},
			"PageRequest": {
				Type: "object",
				Properties: map[string]*Schema{
					"page":      {Type: "integer", Description: "1-based page number", Example: 1},
					"page_size": {Type: "integer", Description: "Rows per page", Example: 20},
					"search":    {Type: "string", Description: "Free-text filter"},
					"sort":      {Type: "string", Description: "Comma-separated fields, - prefix for descending", Example: "-UploadedAt"},
				},
			},
		},
		Responses: make(map[string]*Response, len(errorResponses)),
		SecuritySchemes: map[string]*SecurityScheme{
			BearerAuth: {
				Type:         "http",
				Scheme:       "bearer",
				BearerFormat: "JWT",
				Description:  "HS256 token carrying clinic_admin or gcf_coordinator in roles",
			},
		},
	}

	for name, description := range errorResponses {
		c.Responses[name] = &Response{
			Description: description,
			Content: map[string]*MediaType{
				"application/json": {Schema: SchemaRef("Error")},
			},
		}
	}
	return c
}

// AddSchemas merges the given schemas into the component schemas.
func (c *Components) AddSchemas(schemas map[string]*Schema) {
	maps.Copy(c.Schemas, schemas)
}

// AddResponses merges the given responses into the component responses.
func (c *Components) AddResponses(responses map[string]*Response) {
	maps.Copy(c.Responses, responses)
}
