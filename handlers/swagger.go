package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RegisterSwagger registers minimal Swagger/OpenAPI endpoints for the document service.
// - GET /swagger/index.html  -> a small HTML page that loads the OpenAPI JSON
// - GET /swagger/doc.json    -> machine-readable OpenAPI JSON
func RegisterSwagger(rg *gin.Engine) {
	rg.GET("/swagger/index.html", func(c *gin.Context) {
		c.Header("Content-Type", "text/html; charset=utf-8")
		c.String(http.StatusOK, swaggerHTML)
	})

	rg.GET("/swagger/doc.json", func(c *gin.Context) {
		c.JSON(http.StatusOK, swaggerJSON)
	})
}

const swaggerHTML = `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>mdvault — Swagger</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@4/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@4/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/swagger/doc.json',
        dom_id: '#swagger-ui',
      })
    </script>
  </body>
</html>`

// Minimal OpenAPI document describing the document store endpoints.
const swaggerJSON = `{
  "openapi": "3.0.0",
  "info": { "title": "mdvault", "version": "v0.1.0" },
  "paths": {
    "/api/documents": {
      "get": { "summary": "List active documents (newest created first)", "responses": { "200": { "description": "metadata list" } } },
      "post": {
        "summary": "Create a document",
        "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"slug":{"type":"string"},"title":{"type":"string"},"description":{"type":"string"},"content":{"type":"string"}}}}}},
        "responses": { "201": { "description": "created" }, "400": { "description": "invalid slug" }, "409": { "description": "slug already active" } }
      }
    },
    "/api/documents/{slug}": {
      "get": { "summary": "Fetch a document", "responses": { "200": { "description": "document" }, "404": { "description": "not found" } } },
      "patch": { "summary": "Update content, snapshotting the prior version", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"content":{"type":"string"},"message":{"type":"string"},"author":{"type":"string"}}}}}}, "responses": { "200": { "description": "updated" }, "404": { "description": "not found" } } },
      "delete": { "summary": "Move a document to the trash", "responses": { "204": { "description": "trashed" }, "404": { "description": "not found" } } }
    },
    "/api/documents/{slug}/versions": {
      "get": { "summary": "Version history, most recent first", "responses": { "200": { "description": "version list" } } }
    },
    "/api/documents/{slug}/revert": {
      "post": { "summary": "Revert content to a past version (appends a new version)", "requestBody": { "content": { "application/json": { "schema": {"type":"object","properties":{"versionId":{"type":"integer"}}}}}}, "responses": { "200": { "description": "reverted" }, "404": { "description": "document or version not found" } } }
    },
    "/api/trash": {
      "get": { "summary": "List trash entries (newest deletion first)", "responses": { "200": { "description": "trash list" } } }
    },
    "/api/trash/{slug}/restore": {
      "post": { "summary": "Restore a trashed document", "responses": { "200": { "description": "restored" }, "404": { "description": "not in trash" }, "409": { "description": "slug already active" } } }
    },
    "/api/trash/{slug}/{trashedAt}": {
      "delete": { "summary": "Permanently purge one trash entry", "responses": { "204": { "description": "purged" }, "404": { "description": "no such entry" } } }
    },
    "/health": { "get": { "summary": "Liveness check", "responses": { "200": { "description": "healthy" } } } },
    "/ready": { "get": { "summary": "Readiness check", "responses": { "200": { "description": "ready" }, "503": { "description": "backend unavailable" } } } }
  }
}`
