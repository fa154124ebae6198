// Package docs holds the API description of the local InvestiGraph server.
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
        "/auth/login": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Authentication"],
                "summary": "Log in",
                "parameters": [
                    {"name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/domain.LoginRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.SessionResponse"}},
                    "400": {"description": "Invalid request body", "schema": {"$ref": "#/definitions/http.ErrorResponse"}},
                    "401": {"description": "Invalid credentials", "schema": {"$ref": "#/definitions/http.ErrorResponse"}}
                }
            }
        },
        "/auth/signup": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Authentication"],
                "summary": "Sign up",
                "parameters": [
                    {"name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/domain.SignUpRequest"}}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/http.StatusResponse"}},
                    "400": {"description": "Registration failed", "schema": {"$ref": "#/definitions/http.ErrorResponse"}}
                }
            }
        },
        "/auth/logout": {
            "post": {
                "produces": ["application/json"],
                "tags": ["Authentication"],
                "summary": "Log out",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.StatusResponse"}},
                    "401": {"description": "Not logged in", "schema": {"$ref": "#/definitions/http.ErrorResponse"}}
                }
            }
        },
        "/me": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Authentication"],
                "summary": "Current session",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/http.SessionResponse"}},
                    "401": {"description": "Not logged in", "schema": {"$ref": "#/definitions/http.ErrorResponse"}}
                }
            }
        },
        "/dashboard": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Dashboard"],
                "summary": "Dashboard snapshot",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.DashboardState"}}
                }
            }
        },
        "/dashboard/refresh": {
            "post": {
                "produces": ["application/json"],
                "tags": ["Dashboard"],
                "summary": "Refresh documents",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.DashboardState"}},
                    "502": {"description": "Backend error", "schema": {"$ref": "#/definitions/http.ErrorResponse"}}
                }
            }
        },
        "/documents": {
            "post": {
                "consumes": ["multipart/form-data"],
                "produces": ["application/json"],
                "tags": ["Documents"],
                "summary": "Upload a PDF",
                "parameters": [
                    {"type": "file", "name": "file", "in": "formData", "required": true}
                ],
                "responses": {
                    "201": {"description": "Created", "schema": {"$ref": "#/definitions/domain.DashboardState"}},
                    "400": {"description": "Missing or non-PDF file", "schema": {"$ref": "#/definitions/http.ErrorResponse"}},
                    "409": {"description": "Upload already in progress", "schema": {"$ref": "#/definitions/http.ErrorResponse"}}
                }
            }
        },
        "/documents/{id}": {
            "delete": {
                "produces": ["application/json"],
                "tags": ["Documents"],
                "summary": "Delete a document",
                "parameters": [
                    {"type": "integer", "name": "id", "in": "path", "required": true},
                    {"type": "boolean", "name": "confirm", "in": "query", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.DashboardState"}},
                    "400": {"description": "Invalid id or not confirmed", "schema": {"$ref": "#/definitions/http.ErrorResponse"}},
                    "404": {"description": "Document not found", "schema": {"$ref": "#/definitions/http.ErrorResponse"}}
                }
            }
        },
        "/documents/{id}/chunks": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Documents"],
                "summary": "Document chunks",
                "parameters": [
                    {"type": "integer", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "array", "items": {"$ref": "#/definitions/domain.Chunk"}}}
                }
            }
        },
        "/documents/{id}/graph": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Documents"],
                "summary": "Document graph",
                "parameters": [
                    {"type": "integer", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.DocumentGraph"}}
                }
            }
        },
        "/imports": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Documents"],
                "summary": "Import an SEC filing",
                "parameters": [
                    {"name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/http.ImportRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.ImportResult"}},
                    "409": {"description": "Import already in progress", "schema": {"$ref": "#/definitions/http.ErrorResponse"}},
                    "504": {"description": "No new document appeared in time", "schema": {"$ref": "#/definitions/http.ErrorResponse"}}
                }
            }
        },
        "/chats/{scope}": {
            "get": {
                "produces": ["application/json"],
                "tags": ["Chat"],
                "summary": "Chat transcript",
                "parameters": [
                    {"type": "string", "name": "scope", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.ChatState"}}
                }
            },
            "delete": {
                "tags": ["Chat"],
                "summary": "Close a chat",
                "parameters": [
                    {"type": "string", "name": "scope", "in": "path", "required": true}
                ],
                "responses": {
                    "204": {"description": "No Content"}
                }
            }
        },
        "/chats/{scope}/messages": {
            "post": {
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["Chat"],
                "summary": "Ask a question",
                "parameters": [
                    {"type": "string", "name": "scope", "in": "path", "required": true},
                    {"name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/http.MessageRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/domain.ChatState"}},
                    "409": {"description": "Previous question still awaiting an answer", "schema": {"$ref": "#/definitions/http.ErrorResponse"}}
                }
            }
        },
        "/events": {
            "get": {
                "tags": ["Events"],
                "summary": "Event stream",
                "parameters": [
                    {"type": "array", "items": {"type": "string"}, "collectionFormat": "multi", "name": "scope", "in": "query"}
                ],
                "responses": {
                    "101": {"description": "Switching Protocols"}
                }
            }
        }
    },
    "definitions": {
        "domain.LoginRequest": {
            "type": "object",
            "properties": {
                "username": {"type": "string"},
                "password": {"type": "string"}
            }
        },
        "domain.SignUpRequest": {
            "type": "object",
            "required": ["email", "password", "username"],
            "properties": {
                "username": {"type": "string"},
                "email": {"type": "string"},
                "password": {"type": "string"},
                "is_active": {"type": "boolean"}
            }
        },
        "domain.User": {
            "type": "object",
            "properties": {
                "id": {"type": "integer"},
                "username": {"type": "string"},
                "email": {"type": "string"},
                "is_active": {"type": "boolean"}
            }
        },
        "domain.Document": {
            "type": "object",
            "properties": {
                "id": {"type": "integer"},
                "filename": {"type": "string"},
                "owner_id": {"type": "integer"},
                "created_at": {"type": "string"}
            }
        },
        "domain.Chunk": {
            "type": "object",
            "properties": {
                "id": {"type": "integer"},
                "document_id": {"type": "integer"},
                "text": {"type": "string"},
                "page_number": {"type": "integer"}
            }
        },
        "domain.GraphNode": {
            "type": "object",
            "properties": {
                "id": {"type": "string"},
                "label": {"type": "string"},
                "type": {"type": "string"}
            }
        },
        "domain.GraphEdge": {
            "type": "object",
            "properties": {
                "source": {"type": "string"},
                "target": {"type": "string"},
                "relation": {"type": "string"}
            }
        },
        "domain.DocumentGraph": {
            "type": "object",
            "properties": {
                "nodes": {"type": "array", "items": {"$ref": "#/definitions/domain.GraphNode"}},
                "edges": {"type": "array", "items": {"$ref": "#/definitions/domain.GraphEdge"}}
            }
        },
        "domain.ImportDialog": {
            "type": "object",
            "properties": {
                "open": {"type": "boolean"},
                "loading": {"type": "boolean"},
                "ticker": {"type": "string"},
                "alert": {"type": "string"}
            }
        },
        "domain.DashboardState": {
            "type": "object",
            "properties": {
                "documents": {"type": "array", "items": {"$ref": "#/definitions/domain.Document"}},
                "uploading": {"type": "boolean"},
                "import": {"$ref": "#/definitions/domain.ImportDialog"},
                "phase": {"type": "string"},
                "last_error": {"type": "string"}
            }
        },
        "domain.ImportResult": {
            "type": "object",
            "properties": {
                "ticker": {"type": "string"},
                "attempts": {"type": "integer"},
                "message": {"type": "string"},
                "documents": {"type": "array", "items": {"$ref": "#/definitions/domain.Document"}}
            }
        },
        "domain.Citation": {
            "type": "object",
            "properties": {
                "page_number": {"type": "integer"},
                "text": {"type": "string"}
            }
        },
        "domain.ChatMessage": {
            "type": "object",
            "properties": {
                "role": {"type": "string"},
                "content": {"type": "string"},
                "context": {"type": "array", "items": {"$ref": "#/definitions/domain.Citation"}}
            }
        },
        "domain.ChatState": {
            "type": "object",
            "properties": {
                "scope": {"type": "string"},
                "title": {"type": "string"},
                "messages": {"type": "array", "items": {"$ref": "#/definitions/domain.ChatMessage"}},
                "phase": {"type": "string"}
            }
        },
        "http.ErrorResponse": {
            "type": "object",
            "properties": {
                "error": {"type": "string", "example": "invalid request body"}
            }
        },
        "http.StatusResponse": {
            "type": "object",
            "properties": {
                "status": {"type": "string", "example": "ok"}
            }
        },
        "http.SessionResponse": {
            "type": "object",
            "properties": {
                "username": {"type": "string", "example": "analyst"},
                "expires_at": {"type": "string"},
                "user": {"$ref": "#/definitions/domain.User"}
            }
        },
        "http.ImportRequest": {
            "type": "object",
            "properties": {
                "ticker": {"type": "string", "example": "AAPL"}
            }
        },
        "http.MessageRequest": {
            "type": "object",
            "properties": {
                "question": {"type": "string", "example": "What were total revenues?"}
            }
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/api/v1",
	Schemes:          []string{"http"},
	Title:            "InvestiGraph Console API",
	Description:      "Local presentation server for the InvestiGraph document and question-answering backend.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
