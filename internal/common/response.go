package common

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// Response standard API response envelope
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Meta    *Meta       `json:"meta,omitempty"`
	Error   *ErrorBody  `json:"error,omitempty"`
}

// Meta pagination metadata
type Meta struct {
	Page    int  `json:"page"`
	Size    int  `json:"size"`
	HasMore bool `json:"hasMore"`
}

// ErrorBody error details
type ErrorBody struct {
	Code              string `json:"code"`
	Message           string `json:"message"`
	RetryAfterSeconds int    `json:"retryAfterSeconds,omitempty"`
}

// Success returns a 200 response
func Success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Success: true, Data: data})
}

// SuccessWithMeta returns a 200 response with pagination
func SuccessWithMeta(c *gin.Context, data interface{}, meta *Meta) {
	c.JSON(http.StatusOK, Response{Success: true, Data: data, Meta: meta})
}

// Created returns a 201 response
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{Success: true, Data: data})
}

// NoContent returns a 204 response
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// Fail translates a domain error into the matching status and envelope.
// Internal errors never leak their message to the client.
func Fail(c *gin.Context, err error) {
	status := HTTPStatus(err)
	body := &ErrorBody{Code: ErrorCode(err), Message: err.Error()}
	if status == http.StatusInternalServerError {
		body.Message = "internal server error"
		_ = c.Error(err)
	}

	var rl *RateLimitError
	if errors.As(err, &rl) {
		body.RetryAfterSeconds = rl.RetryAfterSeconds()
		c.Header("Retry-After", strconv.Itoa(body.RetryAfterSeconds))
	}

	c.AbortWithStatusJSON(status, Response{Success: false, Error: body})
}

// BadRequest reports a malformed request body or parameter
func BadRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, Response{
		Success: false,
		Error:   &ErrorBody{Code: "BAD_REQUEST", Message: message},
	})
}
