package swagger

import "github.com/swaggo/swag"

const docTemplate = `{
    "swagger": "2.0",
    "info": {
        "title": "Stylizr Upload Gateway",
        "description": "Secure photo upload intake: signature validation, content scanning, quarantine and rate limiting",
        "version": "1.0.0"
    },
    "basePath": "/api/v1",
    "schemes": [
        "http"
    ],
    "tags": [
        {"name": "Uploads", "description": "Photo upload intake and lookup"},
        {"name": "Quarantine", "description": "Admin review of isolated files"},
        {"name": "Reports", "description": "Security event exports"}
    ],
    "paths": {
        "/uploads": {
            "post": {
                "tags": ["Uploads"],
                "summary": "Upload a photo",
                "consumes": ["multipart/form-data"],
                "parameters": [
                    {"name": "file", "in": "formData", "type": "file", "required": true}
                ],
                "responses": {
                    "201": {"description": "Accepted", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "413": {"description": "File too large"},
                    "422": {"description": "Failed security validation"},
                    "429": {"description": "Rate limited"}
                }
            },
            "get": {
                "tags": ["Uploads"],
                "summary": "List own uploads",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "401": {"description": "Authentication required"}
                }
            }
        },
        "/uploads/{id}": {
            "get": {
                "tags": ["Uploads"],
                "summary": "Fetch upload metadata",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "404": {"description": "Not found"}
                }
            }
        },
        "/admin/quarantine": {
            "get": {
                "tags": ["Quarantine"],
                "summary": "List quarantined files",
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}},
                    "403": {"description": "Admin role required"}
                }
            }
        },
        "/admin/quarantine/{id}": {
            "delete": {
                "tags": ["Quarantine"],
                "summary": "Delete a quarantined file",
                "parameters": [
                    {"name": "id", "in": "path", "type": "string", "required": true}
                ],
                "responses": {
                    "204": {"description": "Deleted"},
                    "404": {"description": "Not found"}
                }
            }
        },
        "/admin/reports/security": {
            "get": {
                "tags": ["Reports"],
                "summary": "Export security events",
                "parameters": [
                    {"name": "hours", "in": "query", "type": "integer"},
                    {"name": "format", "in": "query", "type": "string", "enum": ["csv", "pdf"]}
                ],
                "responses": {
                    "200": {"description": "Report payload"}
                }
            }
        },
        "/admin/reports/security/summary": {
            "get": {
                "tags": ["Reports"],
                "summary": "Summarise security events",
                "parameters": [
                    {"name": "hours", "in": "query", "type": "integer"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"$ref": "#/definitions/ResponseEnvelope"}}
                }
            }
        }
    },
    "definitions": {
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
