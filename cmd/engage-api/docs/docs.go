// Package docs holds the OpenAPI description served at /swagger.
// Regenerate with: swag init -g cmd/engage-api/main.go -o cmd/engage-api/docs
package docs

import "github.com/swaggo/swag"

const docTemplate = `{
    "schemes": {{ marshal .Schemes }},
    "swagger": "2.0",
    "info": {
        "description": "{{escape .Description}}",
        "title": "{{.Title}}",
        "contact": {
            "name": "API Support"
        },
        "license": {
            "name": "MIT"
        },
        "version": "{{.Version}}"
    },
    "host": "{{.Host}}",
    "basePath": "{{.BasePath}}",
    "paths": {
        "/health": {
            "get": {
                "tags": ["Health"],
                "summary": "Service health check",
                "produces": ["application/json"],
                "responses": {
                    "200": {"description": "OK"},
                    "503": {"description": "Service Unavailable"}
                }
            }
        },
        "/webhooks/{provider}/messages": {
            "post": {
                "tags": ["Webhooks"],
                "summary": "Inbound message webhook",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "description": "zapi, waha or cloudapi", "name": "provider", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/services.IngestResult"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/webhooks/{provider}/status": {
            "post": {
                "tags": ["Webhooks"],
                "summary": "Delivery status webhook",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "description": "zapi, waha or cloudapi", "name": "provider", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/services.StatusSummary"}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/conversations/{id}/status": {
            "patch": {
                "tags": ["Conversations"],
                "summary": "Change conversation status",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "description": "Tenant ID", "name": "X-Tenant-ID", "in": "header", "required": true},
                    {"type": "string", "description": "Acting user", "name": "X-User-ID", "in": "header"},
                    {"type": "string", "description": "Conversation ID", "name": "id", "in": "path", "required": true},
                    {"description": "New status", "name": "data", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.ChangeStatusRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/conversations/{id}/read": {
            "post": {
                "tags": ["Conversations"],
                "summary": "Mark conversation read",
                "consumes": ["application/json"],
                "parameters": [
                    {"type": "string", "description": "Tenant ID", "name": "X-Tenant-ID", "in": "header", "required": true},
                    {"type": "string", "description": "Conversation ID", "name": "id", "in": "path", "required": true},
                    {"description": "Reader", "name": "data", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.UserRequest"}}
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/conversations/{id}/unread": {
            "get": {
                "tags": ["Conversations"],
                "summary": "Get unread count",
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "description": "Tenant ID", "name": "X-Tenant-ID", "in": "header", "required": true},
                    {"type": "string", "description": "Conversation ID", "name": "id", "in": "path", "required": true},
                    {"type": "string", "description": "User ID", "name": "user_id", "in": "query", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/handlers.UnreadResponse"}}
                }
            }
        },
        "/campaigns": {
            "post": {
                "tags": ["Campaigns"],
                "summary": "Create campaign",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "description": "Tenant ID", "name": "X-Tenant-ID", "in": "header", "required": true},
                    {"description": "Campaign", "name": "data", "in": "body", "required": true, "schema": {"$ref": "#/definitions/services.CreateCampaignRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created"},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/campaigns/{id}/dispatch": {
            "post": {
                "tags": ["Campaigns"],
                "summary": "Dispatch campaign",
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "description": "Tenant ID", "name": "X-Tenant-ID", "in": "header", "required": true},
                    {"type": "string", "description": "Campaign ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "202": {"description": "Accepted", "schema": {"$ref": "#/definitions/handlers.CountResponse"}}
                }
            }
        },
        "/campaign-contacts/{id}/exclude": {
            "post": {
                "tags": ["Campaign Contacts"],
                "summary": "Exclude a contact",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "description": "Tenant ID", "name": "X-Tenant-ID", "in": "header", "required": true},
                    {"type": "string", "description": "Contact ID", "name": "id", "in": "path", "required": true},
                    {"description": "Reason", "name": "data", "in": "body", "schema": {"$ref": "#/definitions/handlers.ExcludeRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "409": {"description": "Conflict", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/campaign-contacts/{id}/history": {
            "get": {
                "tags": ["Campaigns"],
                "summary": "Campaign contact history",
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "description": "Tenant ID", "name": "X-Tenant-ID", "in": "header", "required": true},
                    {"type": "string", "description": "Campaign contact ID", "name": "id", "in": "path", "required": true},
                    {"type": "integer", "description": "Max entries (default 200)", "name": "limit", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/audit.AuditLog"}}}
                }
            }
        },
        "/campaigns/{id}/report": {
            "get": {
                "tags": ["Campaigns"],
                "summary": "Download campaign report",
                "produces": ["application/octet-stream"],
                "parameters": [
                    {"type": "string", "description": "Tenant ID", "name": "X-Tenant-ID", "in": "header", "required": true},
                    {"type": "string", "description": "Campaign ID", "name": "id", "in": "path", "required": true},
                    {"type": "string", "description": "xlsx, pdf or csv", "name": "format", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "file"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/customers": {
            "post": {
                "tags": ["Customers"],
                "summary": "Resolve customer",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "parameters": [
                    {"type": "string", "description": "Tenant ID", "name": "X-Tenant-ID", "in": "header", "required": true},
                    {"description": "Phone", "name": "data", "in": "body", "required": true, "schema": {"$ref": "#/definitions/handlers.ResolveCustomerRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK"},
                    "422": {"description": "Unprocessable Entity", "schema": {"$ref": "#/definitions/handlers.ErrorResponse"}}
                }
            }
        },
        "/whatsapp/qr": {
            "get": {
                "tags": ["WhatsApp"],
                "summary": "Get click-to-chat QR code",
                "produces": ["image/png"],
                "parameters": [
                    {"type": "string", "description": "Tenant ID", "name": "X-Tenant-ID", "in": "header", "required": true},
                    {"type": "string", "description": "Prefilled message", "name": "text", "in": "query"},
                    {"type": "integer", "default": 256, "description": "Image size in pixels", "name": "size", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "file"}}
                }
            }
        }
    },
    "definitions": {
        "audit.AuditLog": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "tenant_id": {"type": "string"},
                "actor_user_id": {"type": "string"},
                "action": {"type": "string"},
                "entity": {"type": "string"},
                "entity_id": {"type": "string"},
                "old_value": {"type": "object"},
                "new_value": {"type": "object"},
                "description": {"type": "string"},
                "created_at": {"type": "string"}
            }
        },
        "handlers.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string"},
                "kind": {"type": "string"}
            }
        },
        "handlers.ChangeStatusRequest": {
            "type": "object",
            "required": ["status"],
            "properties": {
                "status": {"type": "string", "enum": ["inbox", "waiting", "active", "closed"]}
            }
        },
        "handlers.UserRequest": {
            "type": "object",
            "required": ["user_id"],
            "properties": {
                "user_id": {"type": "string"}
            }
        },
        "handlers.UnreadResponse": {
            "type": "object",
            "properties": {
                "conversation_id": {"type": "string"},
                "user_id": {"type": "string"},
                "count": {"type": "integer"}
            }
        },
        "handlers.CountResponse": {
            "type": "object",
            "properties": {
                "count": {"type": "integer"}
            }
        },
        "handlers.ExcludeRequest": {
            "type": "object",
            "properties": {
                "reason": {"type": "string"}
            }
        },
        "handlers.ResolveCustomerRequest": {
            "type": "object",
            "required": ["phone"],
            "properties": {
                "phone": {"type": "string"},
                "display_name": {"type": "string"}
            }
        },
        "services.CreateCampaignRequest": {
            "type": "object",
            "required": ["name", "content"],
            "properties": {
                "name": {"type": "string"},
                "content": {"type": "string"},
                "channel": {"type": "string"}
            }
        },
        "services.IngestResult": {
            "type": "object",
            "properties": {
                "status": {"type": "string"},
                "messageId": {"type": "string"},
                "duplicate": {"type": "boolean"},
                "reason": {"type": "string"}
            }
        },
        "services.StatusSummary": {
            "type": "object",
            "properties": {
                "received": {"type": "integer"},
                "matched": {"type": "integer"},
                "applied": {"type": "integer"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/",
	Schemes:          []string{},
	Title:            "Donor Engagement API",
	Description:      "Multi-tenant WhatsApp core for blood-donor engagement: webhook ingestion, conversations, delivery tracking and campaigns.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
