// Package swagger registers the OpenAPI document served at /swagger/. The
// document is maintained by hand alongside the handler annotations.
package swagger

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
        "/documents": {
            "get": {
                "description": "Returns the documents of an owner, oldest first, without modification secrets. Without an owner the list is empty.",
                "produces": ["application/json"],
                "tags": ["documents"],
                "summary": "List documents by owner",
                "parameters": [
                    {"type": "string", "description": "Owner external id", "name": "ownerExternalId", "in": "query"}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"allOf": [{"$ref": "#/definitions/response.Envelope"}, {"type": "object", "properties": {"data": {"type": "array", "items": {"$ref": "#/definitions/document.Document"}}}}]}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/response.Envelope"}}
                }
            },
            "post": {
                "description": "Creates an empty document. The response carries the modification secret; it is never returned again. A bearer token's subject overrides ownerExternalId.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["documents"],
                "summary": "Create document",
                "parameters": [
                    {"description": "Optional owner", "name": "request", "in": "body", "schema": {"$ref": "#/definitions/document.createRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"allOf": [{"$ref": "#/definitions/response.Envelope"}, {"type": "object", "properties": {"data": {"$ref": "#/definitions/document.Document"}}}]}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/response.Envelope"}},
                    "401": {"description": "Unauthorized", "schema": {"$ref": "#/definitions/response.Envelope"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/response.Envelope"}}
                }
            }
        },
        "/documents/{id}": {
            "get": {
                "description": "Returns a document with its images and refreshes its last access time. The modification secret is omitted.",
                "produces": ["application/json"],
                "tags": ["documents"],
                "summary": "Get document",
                "parameters": [
                    {"type": "string", "description": "Document ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"allOf": [{"$ref": "#/definitions/response.Envelope"}, {"type": "object", "properties": {"data": {"$ref": "#/definitions/document.Document"}}}]}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/response.Envelope"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/response.Envelope"}}
                }
            },
            "put": {
                "description": "Replaces the document data. Last write wins.",
                "consumes": ["application/json"],
                "produces": ["application/json"],
                "tags": ["documents"],
                "summary": "Update document",
                "parameters": [
                    {"type": "string", "description": "Document ID", "name": "id", "in": "path", "required": true},
                    {"type": "string", "description": "Modification secret", "name": "modificationSecret", "in": "query", "required": true},
                    {"description": "New data", "name": "request", "in": "body", "required": true, "schema": {"$ref": "#/definitions/document.updateRequest"}}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"allOf": [{"$ref": "#/definitions/response.Envelope"}, {"type": "object", "properties": {"data": {"$ref": "#/definitions/document.Document"}}}]}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/response.Envelope"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/response.Envelope"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/response.Envelope"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/response.Envelope"}}
                }
            },
            "delete": {
                "description": "Deletes a document with all its images. Unknown ids and wrong secrets both yield 404.",
                "produces": ["application/json"],
                "tags": ["documents"],
                "summary": "Delete document",
                "parameters": [
                    {"type": "string", "description": "Document ID", "name": "id", "in": "path", "required": true},
                    {"type": "string", "description": "Modification secret", "name": "modificationSecret", "in": "query", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"allOf": [{"$ref": "#/definitions/response.Envelope"}, {"type": "object", "properties": {"data": {"$ref": "#/definitions/document.deleteData"}}}]}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/response.Envelope"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/response.Envelope"}}
                }
            }
        },
        "/documents/{id}/images": {
            "post": {
                "description": "Attach an image to a document. The modification secret is checked before the body is read. The stored name is anonymized.",
                "consumes": ["multipart/form-data"],
                "produces": ["application/json"],
                "tags": ["images"],
                "summary": "Upload image",
                "parameters": [
                    {"type": "string", "description": "Document ID", "name": "id", "in": "path", "required": true},
                    {"type": "string", "description": "Document modification secret", "name": "modificationSecret", "in": "query", "required": true},
                    {"type": "file", "description": "Image file", "name": "file", "in": "formData", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"allOf": [{"$ref": "#/definitions/response.Envelope"}, {"type": "object", "properties": {"data": {"$ref": "#/definitions/image.uploadData"}}}]}},
                    "400": {"description": "Bad Request", "schema": {"$ref": "#/definitions/response.Envelope"}},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/response.Envelope"}},
                    "413": {"description": "Request Entity Too Large", "schema": {"$ref": "#/definitions/response.Envelope"}},
                    "415": {"description": "Unsupported Media Type", "schema": {"$ref": "#/definitions/response.Envelope"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/response.Envelope"}}
                }
            }
        },
        "/images/{id}": {
            "get": {
                "description": "Returns the decrypted image bytes with the stored media type.",
                "produces": ["application/octet-stream"],
                "tags": ["images"],
                "summary": "Get image",
                "parameters": [
                    {"type": "string", "description": "Image ID", "name": "id", "in": "path", "required": true}
                ],
                "responses": {
                    "200": {"description": "OK", "schema": {"type": "file"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/response.Envelope"}},
                    "502": {"description": "Bad Gateway", "schema": {"$ref": "#/definitions/response.Envelope"}}
                }
            },
            "delete": {
                "description": "Deletes an image and its stored bytes. Requires the owning document's modification secret.",
                "tags": ["images"],
                "summary": "Delete image",
                "parameters": [
                    {"type": "string", "description": "Image ID", "name": "id", "in": "path", "required": true},
                    {"type": "string", "description": "Owning document's modification secret", "name": "modificationSecret", "in": "query", "required": true}
                ],
                "responses": {
                    "204": {"description": "No Content"},
                    "403": {"description": "Forbidden", "schema": {"$ref": "#/definitions/response.Envelope"}},
                    "404": {"description": "Not Found", "schema": {"$ref": "#/definitions/response.Envelope"}},
                    "500": {"description": "Internal Server Error", "schema": {"$ref": "#/definitions/response.Envelope"}}
                }
            }
        }
    },
    "definitions": {
        "document.Document": {
            "type": "object",
            "properties": {
                "createdAt": {"type": "string"},
                "data": {"type": "object"},
                "id": {"type": "string"},
                "images": {"type": "array", "items": {"$ref": "#/definitions/image.Image"}},
                "lastAccessedAt": {"type": "string"},
                "modificationSecret": {"type": "string"},
                "ownerExternalId": {"type": "string"},
                "updatedAt": {"type": "string"}
            }
        },
        "document.createRequest": {
            "type": "object",
            "properties": {
                "ownerExternalId": {"type": "string", "example": "user-123"}
            }
        },
        "document.deleteData": {
            "type": "object",
            "properties": {
                "deleted": {"type": "boolean", "example": true},
                "id": {"type": "string", "example": "0b8f3a52-4a8c-4c1a-9d57-3c5a9e2f1d10"}
            }
        },
        "document.updateRequest": {
            "type": "object",
            "properties": {
                "data": {"type": "object"}
            }
        },
        "image.Image": {
            "type": "object",
            "properties": {
                "createdAt": {"type": "string"},
                "documentId": {"type": "string"},
                "id": {"type": "string"},
                "mimetype": {"type": "string"},
                "name": {"type": "string"},
                "updatedAt": {"type": "string"}
            }
        },
        "image.uploadData": {
            "type": "object",
            "properties": {
                "id": {"type": "string", "example": "5f0c7a8e-6a43-4bb4-9d59-0f7f0d2b8a11"},
                "name": {"type": "string", "example": "image.png"},
                "path": {"type": "string", "example": "/api/v1/images/5f0c7a8e-6a43-4bb4-9d59-0f7f0d2b8a11"}
            }
        },
        "response.Envelope": {
            "type": "object",
            "properties": {
                "data": {},
                "error": {"type": "string"},
                "success": {"type": "boolean"}
            }
        }
    },
    "securityDefinitions": {
        "BearerAuth": {
            "description": "Optional JWT Bearer token. Its subject becomes the document owner. Format: **Bearer {token}**",
            "type": "apiKey",
            "name": "Authorization",
            "in": "header"
        }
    }
}`

// SwaggerInfo holds exported Swagger Info so clients can modify it
var SwaggerInfo = &swag.Spec{
	Version:          "1.0",
	Host:             "localhost:8080",
	BasePath:         "/api/v1",
	Schemes:          []string{},
	Title:            "Inkpad API",
	Description:      "Document and image backend for a collaborative block editor.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(SwaggerInfo.InstanceName(), SwaggerInfo)
}
