// Package docs holds the generated Swagger spec for the control plane's
// thin HTTP surface (job submission, job status, batch submission).
// Normally produced by `swag init` from the handler annotations in
// internal/http; checked in here since the build has no network access to
// regenerate it.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {},
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/jobs": {
            "post": {
                "description": "Submit a single chapter translation job.",
                "produces": ["application/json"],
                "summary": "Submit a chapter job",
                "responses": {
                    "202": {"description": "Accepted"}
                }
            }
        },
        "/jobs/{id}": {
            "get": {
                "description": "Poll a job's status, progress, and error.",
                "produces": ["application/json"],
                "summary": "Get job status",
                "parameters": [
                    {"type": "string", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "404": {"description": "Not Found"}
                }
            }
        },
        "/batches": {
            "post": {
                "description": "Submit a chapter-range batch translation job.",
                "produces": ["application/json"],
                "summary": "Submit a batch job",
                "responses": {
                    "202": {"description": "Accepted"}
                }
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so the spec can be served by
// echo-swagger's WrapHandler.
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "ToonRelay Pipeline Control Plane",
	Description:      "Trigger chapter/batch translation jobs and poll their status.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
