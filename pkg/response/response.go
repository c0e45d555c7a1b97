// Package response writes the JSON envelope shared by every HTTP endpoint.
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Body is the standard API response envelope. Code is a stable machine-readable
// error identifier matching the codes sent on the room websocket.
type Body struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Code    string      `json:"code,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// OK sends a 200 JSON response with data.
func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Body{Success: true, Data: data})
}

// Created sends a 201 JSON response with data.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Body{Success: true, Data: data})
}

// NoContent sends 204.
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Fail aborts the request with an error envelope.
func Fail(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, Body{Success: false, Code: code, Error: msg})
}

func BadRequest(c *gin.Context, msg string) { Fail(c, http.StatusBadRequest, "invalid_request", msg) }

func Unauthorized(c *gin.Context, msg string) { Fail(c, http.StatusUnauthorized, "unauthorized", msg) }

func Forbidden(c *gin.Context, msg string) { Fail(c, http.StatusForbidden, "permission_denied", msg) }

func NotFound(c *gin.Context, msg string) { Fail(c, http.StatusNotFound, "not_found", msg) }

func Conflict(c *gin.Context, msg string) { Fail(c, http.StatusConflict, "conflict", msg) }

// ServiceUnavailable sends 503, used when a dependency such as the database is down.
func ServiceUnavailable(c *gin.Context, msg string) {
	Fail(c, http.StatusServiceUnavailable, "unavailable", msg)
}

// Internal sends 500.
func Internal(c *gin.Context, msg string) { Fail(c, http.StatusInternalServerError, "internal", msg) }
