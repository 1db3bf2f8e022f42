// Package docs registers the swagger document of the cleanroom status API.
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
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["health"],
                "summary": "Service health",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/api.HealthResponse"}}
                }
            }
        },
        "/api/v1/groups": {
            "get": {
                "produces": ["application/json"],
                "tags": ["groups"],
                "summary": "List recovery group snapshots",
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/api.GroupListItem"}}}
                }
            }
        },
        "/api/v1/groups/{name}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["groups"],
                "summary": "Get the latest snapshot of a recovery group",
                "parameters": [
                    {"type": "string", "description": "Recovery group name", "name": "name", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/services.GroupSnapshot"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/api.ErrorResponse"}}
                }
            }
        },
        "/api/v1/groups/{name}/entities": {
            "get": {
                "produces": ["application/json"],
                "tags": ["groups"],
                "summary": "List the entities of a recovery group",
                "parameters": [
                    {"type": "string", "description": "Recovery group name", "name": "name", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/recovery.EntitySummary"}}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/api.ErrorResponse"}}
                }
            }
        },
        "/api/v1/refresh": {
            "post": {
                "produces": ["application/json"],
                "tags": ["groups"],
                "summary": "Refresh every snapshot now",
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/services.ServiceStatus"}},
                    "502": {"description": "Bad Gateway", "schema": {"$ref": "#/definitions/api.ErrorResponse"}}
                }
            }
        }
    },
    "definitions": {
        "api.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string"},
                "details": {"type": "string"},
                "timestamp": {"type": "string"}
            }
        },
        "api.HealthResponse": {
            "type": "object",
            "properties": {
                "service": {"type": "string"},
                "status": {"type": "string"},
                "timestamp": {"type": "string"},
                "version": {"type": "string"},
                "database": {"type": "string"},
                "snapshots": {"$ref": "#/definitions/services.ServiceStatus"}
            }
        },
        "api.GroupListItem": {
            "type": "object",
            "properties": {
                "id": {"type": "integer"},
                "name": {"type": "string"},
                "target_name": {"type": "string"},
                "entity_count": {"type": "integer"},
                "refreshed_at": {"type": "string"},
                "error": {"type": "string"}
            }
        },
        "services.ServiceStatus": {
            "type": "object",
            "properties": {
                "running": {"type": "boolean"},
                "schedule": {"type": "string"},
                "groups": {"type": "integer"},
                "last_refresh": {"type": "string"},
                "last_error": {"type": "string"}
            }
        },
        "services.GroupSnapshot": {
            "type": "object",
            "properties": {
                "group": {"$ref": "#/definitions/recovery.GroupSummary"},
                "entities": {"type": "array", "items": {"$ref": "#/definitions/recovery.EntitySummary"}},
                "refreshed_at": {"type": "string"},
                "error": {"type": "string"}
            }
        },
        "recovery.GroupSummary": {
            "type": "object",
            "properties": {
                "id": {"type": "integer"},
                "name": {"type": "string"},
                "target_name": {"type": "string"},
                "threat_scan": {"type": "boolean"},
                "windows_defender_scan": {"type": "boolean"},
                "autoscale": {"type": "boolean"},
                "power_off_after_recovery": {"type": "boolean"},
                "entity_ids": {"type": "array", "items": {"type": "integer"}},
                "entity_status": {"type": "object"}
            }
        },
        "recovery.EntitySummary": {
            "type": "object",
            "properties": {
                "id": {"type": "integer"},
                "group": {"type": "string"},
                "target": {"type": "string"},
                "source_vm": {"type": "string"},
                "destination_vm": {"type": "string"},
                "workload": {"type": "string"},
                "readiness": {"type": "string"},
                "recovery_status": {"type": "string"},
                "validation_status": {"type": "string"},
                "last_recovery_job": {"type": "integer"},
                "last_restore_job": {"type": "integer"},
                "recovery_image": {"type": "string"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Cleanroom Status API",
	Description:      "Read-only view of cleanroom recovery groups and their entities.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
