// Package docs holds the generated swagger spec swag produces from the
// @Summary/@Tags/@Param annotations on internal/httpapi's handlers.
// Imported for side effect only (its init registers the spec with
// swaggo/swag so gin-swagger can serve it), the same way the teacher's
// cmd/api/main.go imports its own generated docs package.
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
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
        "/api/devices": {
            "get": {"tags": ["Devices"], "summary": "List devices", "responses": {"200": {"description": "OK"}}},
            "post": {"tags": ["Devices"], "summary": "Register a device manually", "responses": {"201": {"description": "Created"}}}
        },
        "/api/devices/{id}": {
            "get": {"tags": ["Devices"], "summary": "Get a device", "responses": {"200": {"description": "OK"}}},
            "delete": {"tags": ["Devices"], "summary": "Remove a device", "responses": {"200": {"description": "OK"}}}
        },
        "/api/devices/{id}/approve": {
            "post": {"tags": ["Devices"], "summary": "Approve a pending device", "responses": {"200": {"description": "OK"}}}
        },
        "/api/devices/{id}/deny": {
            "post": {"tags": ["Devices"], "summary": "Deny a pending device", "responses": {"200": {"description": "OK"}}}
        },
        "/api/devices/{id}/memory": {
            "patch": {"tags": ["Devices"], "summary": "Set a device's allocated memory", "responses": {"200": {"description": "OK"}}}
        },
        "/api/permissions/roles": {
            "get": {"tags": ["Roles"], "summary": "List roles", "responses": {"200": {"description": "OK"}}},
            "post": {"tags": ["Roles"], "summary": "Create a role", "responses": {"201": {"description": "Created"}}}
        },
        "/api/permissions/roles/{id}": {
            "put": {"tags": ["Roles"], "summary": "Update a role", "responses": {"200": {"description": "OK"}}},
            "delete": {"tags": ["Roles"], "summary": "Delete a role", "responses": {"200": {"description": "OK"}}}
        },
        "/api/settings": {
            "get": {"tags": ["Settings"], "summary": "List settings", "responses": {"200": {"description": "OK"}}}
        },
        "/api/settings/{key}": {
            "put": {"tags": ["Settings"], "summary": "Set a setting value", "responses": {"200": {"description": "OK"}}}
        },
        "/api/gpu": {
            "get": {"tags": ["GPU"], "summary": "Get memory-pool snapshots", "responses": {"200": {"description": "OK"}}}
        },
        "/api/backends/config": {
            "get": {"tags": ["Backends"], "summary": "Get the active backend config", "responses": {"200": {"description": "OK"}}},
            "post": {"tags": ["Backends"], "summary": "Set the active backend config", "responses": {"200": {"description": "OK"}}}
        },
        "/api/backends/models": {
            "get": {"tags": ["Backends"], "summary": "Probe a candidate backend's model list", "responses": {"200": {"description": "OK"}}}
        },
        "/api/cluster/status": {
            "get": {"tags": ["Cluster"], "summary": "Get the process-supervisor status", "responses": {"200": {"description": "OK"}}}
        },
        "/api/cluster/model-check": {
            "get": {"tags": ["Cluster"], "summary": "Check whether a model fits across local and peer memory", "responses": {"200": {"description": "OK"}}}
        },
        "/api/cluster/inference/start": {
            "post": {"tags": ["Cluster"], "summary": "Start a (possibly distributed) inference engine", "responses": {"200": {"description": "OK"}}}
        },
        "/api/cluster/inference/stop": {
            "post": {"tags": ["Cluster"], "summary": "Stop the running inference engine", "responses": {"200": {"description": "OK"}}}
        },
        "/api/cluster/inference/status": {
            "get": {"tags": ["Cluster"], "summary": "Get the current inference/supervisor status", "responses": {"200": {"description": "OK"}}}
        },
        "/api/cluster/rpc/start": {
            "post": {"tags": ["Cluster"], "summary": "Pre-warm the rpc-agent", "responses": {"200": {"description": "OK"}}}
        },
        "/api/cluster/rpc/stop": {
            "post": {"tags": ["Cluster"], "summary": "Stop the rpc-agent", "responses": {"200": {"description": "OK"}}}
        }
    }
}`

// SwaggerInfo holds exported swagger info so gin-swagger's handler can
// find the instance the init below registers under InstanceName().
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Sharedmem Controller API",
	Description:      "LAN-scale distributed LLM-inference cluster control plane",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
