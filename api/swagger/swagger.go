package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "SMA Wellbeing API",
        "description": "School wellbeing analytics and reporting service",
        "version": "0.1.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "securityDefinitions": {
        "BearerAuth": {"type": "apiKey", "name": "Authorization", "in": "header"}
    },
    "tags": [
        {"name": "Auth", "description": "Authentication"},
        {"name": "Wellbeing", "description": "School-wide wellbeing analytics"},
        {"name": "Exports", "description": "Asynchronous report exports"},
        {"name": "System", "description": "Operational metrics"}
    ],
    "paths": {
        "/auth/login": {
            "post": {
                "tags": ["Auth"],
                "summary": "Log in with email and password",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Invalid credentials", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/wellbeing/analytics": {
            "get": {
                "tags": ["Wellbeing"],
                "security": [{"BearerAuth": []}],
                "summary": "School wellbeing analytics report",
                "parameters": [
                    {"name": "timeRange", "in": "query", "type": "string", "enum": ["7d", "30d", "90d"]},
                    {"name": "grade", "in": "query", "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/AnalyticsEnvelope"}},
                    "400": {"description": "Invalid time range"},
                    "403": {"description": "Admin role required"}
                }
            }
        },
        "/wellbeing/exports": {
            "post": {
                "tags": ["Exports"],
                "security": [{"BearerAuth": []}],
                "summary": "Queue a report export",
                "parameters": [
                    {"name": "payload", "in": "body", "required": true, "schema": {"$ref": "#/definitions/ExportRequest"}}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        },
        "/wellbeing/exports/{id}": {
            "get": {
                "tags": ["Exports"],
                "security": [{"BearerAuth": []}],
                "summary": "Export job status",
                "parameters": [
                    {"name": "id", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Unknown job"}
                }
            }
        },
        "/wellbeing/exports/download/{token}": {
            "get": {
                "tags": ["Exports"],
                "summary": "Download a finished export with a signed token",
                "parameters": [
                    {"name": "token", "in": "path", "required": true, "type": "string"}
                ],
                "responses": {
                    "200": {"description": "File stream"},
                    "410": {"description": "Link expired"}
                }
            }
        },
        "/system/metrics": {
            "get": {
                "tags": ["System"],
                "security": [{"BearerAuth": []}],
                "summary": "Runtime metrics snapshot",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
        "LoginRequest": {
            "type": "object",
            "properties": {
                "email": {"type": "string"},
                "password": {"type": "string"}
            },
            "required": ["email", "password"]
        },
        "ExportRequest": {
            "type": "object",
            "properties": {
                "timeRange": {"type": "string", "enum": ["7d", "30d", "90d"]},
                "grade": {"type": "string"},
                "format": {"type": "string", "enum": ["csv", "pdf"]}
            },
            "required": ["timeRange", "format"]
        },
        "AnalyticsEnvelope": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "analytics": {"type": "object"}
            }
        },
        "APIError": {
            "type": "object",
            "properties": {
                "code": {"type": "string"},
                "message": {"type": "string"},
                "status": {"type": "integer"}
            }
        },
        "ResponseEnvelope": {
            "type": "object",
            "properties": {
                "data": {"type": "object"},
                "error": {"$ref": "#/definitions/APIError"},
                "meta": {"type": "object"}
            }
        }
    }
}`

type swaggerDoc struct{}

// ReadDoc returns the Swagger document.
func (s *swaggerDoc) ReadDoc() string {
	return docTemplate
}

func init() {
	swag.Register(swag.Name, &swaggerDoc{})
}
