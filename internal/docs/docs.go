// Package docs registers the gateway's OpenAPI description with swag so the
// optional /swagger UI can serve it. Regenerate with:
//
//	swag init -g cmd/gateway/main.go -o internal/docs
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
        "/api/test": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Health"],
                "summary": "Connectivity check",
                "description": "Returns a fixed message and the server time in Unix milliseconds.",
                "operationId": "ping",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.PingResponse"}}
                }
            }
        },
        "/api/v1/{path}": {
            "get": {
                "description": "Forwards an allowlisted GET to the CTFd API with the server-side token and relays the sanitized reply. Per-user endpoints are only reachable once the user has been seen as a team member.",
                "produces": ["application/json"],
                "tags": ["Proxy"],
                "summary": "Relay a read-only CTFd API call",
                "operationId": "proxyCTFd",
                "parameters": [
                    {"type": "string", "description": "Proxy shared secret", "name": "X-API-Key", "in": "header", "required": true},
                    {"type": "string", "example": "scoreboard", "description": "Upstream path below /api/v1", "name": "path", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {
                        "description": "Upstream body (status relayed)",
                        "schema": {"type": "object"},
                        "headers": {"Cache-Control": {"type": "string", "description": "s-maxage=30, stale-while-revalidate=60"}}
                    },
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "403": {"description": "Forbidden or endpoint not allowed", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "405": {"description": "Method not allowed", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "429": {"description": "Too many requests", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Configuration missing", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "502": {"description": "Failed to reach CTFd API", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/api/webhook/firstblood": {
            "get": {
                "description": "Returns the hex HMAC-SHA256 of token under the webhook secret.",
                "produces": ["application/json"],
                "tags": ["Webhook"],
                "summary": "Webhook endpoint validation",
                "operationId": "webhookHandshake",
                "parameters": [
                    {"type": "string", "description": "Challenge token sent by CTFd", "name": "token", "in": "query", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.HandshakeResponse"}},
                    "400": {"description": "Missing token parameter", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "WEBHOOK_SECRET is not configured", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            },
            "post": {
                "description": "Verifies the signed delivery, enriches it from the CTFd API and posts one Discord announcement. Repeated deliveries of an announced submission are acknowledged with duplicate=true.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Webhook"],
                "summary": "Receive a first-blood event",
                "operationId": "firstBlood",
                "parameters": [
                    {"type": "string", "description": "t=<unix>,v1=<hex hmac of 't.body'>", "name": "CTFd-Webhook-Signature", "in": "header", "required": true},
                    {"description": "CTFd submission event", "name": "body", "in": "body", "required": true, "schema": {"$ref": "#/definitions/domain.FirstBloodEvent"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.FirstBloodResult"}},
                    "400": {"description": "Invalid payload", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "401": {"description": "Missing or invalid signature", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "413": {"description": "Payload too large", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Configuration missing", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "502": {"description": "Failed to fetch submission", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/health": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Health"],
                "summary": "Liveness probe",
                "operationId": "health",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.HealthResponse"}}
                }
            }
        }
    },
    "definitions": {
        "domain.FirstBloodEvent": {
            "type": "object",
            "properties": {
                "id": {"type": "integer", "example": 501},
                "challenge_id": {"type": "integer", "example": 12},
                "challenge": {"type": "object"},
                "team": {"type": "object"},
                "user": {"type": "object"},
                "date": {"type": "string", "example": "2026-01-01T00:00:00Z"},
                "type": {"type": "string", "example": "correct"}
            }
        },
        "domain.FirstBloodResult": {
            "type": "object",
            "properties": {
                "success": {"type": "boolean"},
                "discord_sent": {"type": "boolean"},
                "challenge": {"type": "string", "example": "The Dragon's Cipher"},
                "solver": {"type": "string", "example": "Thorin"},
                "duplicate": {"type": "boolean"}
            }
        },
        "handlers.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string", "example": "Endpoint not allowed"},
                "code": {"type": "string", "example": "endpoint_not_allowed"},
                "request_id": {"type": "string", "example": "123e4567-e89b-12d3-a456-426614174000"}
            }
        },
        "handlers.HandshakeResponse": {
            "type": "object",
            "properties": {
                "response": {"type": "string"}
            }
        },
        "handlers.HealthResponse": {
            "type": "object",
            "properties": {
                "status": {"type": "string", "example": "ok"}
            }
        },
        "handlers.PingResponse": {
            "type": "object",
            "properties": {
                "message": {"type": "string", "example": "API is working!"},
                "timestamp": {"type": "integer", "example": 1767225600000}
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
	Title:            "Quest Board Gateway API",
	Description:      "Edge gateway between the live CTF scoreboard and the CTFd API, plus the first-blood Discord webhook.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
