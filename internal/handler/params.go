package handler

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/linguaschool/chat-backend/internal/common"
)

// pathID parses a positive numeric path parameter, writing 400 on failure
func pathID(c *gin.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		common.BadRequest(c, "invalid "+name)
		return 0, false
	}
	return id, true
}

func queryInt(c *gin.Context, name string) int {
	v, err := strconv.Atoi(c.Query(name))
	if err != nil {
		return 0
	}
	return v
}

// queryTime parses an optional RFC3339 timestamp
func queryTime(c *gin.Context, name string) (*time.Time, bool) {
	raw := c.Query(name)
	if raw == "" {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		common.BadRequest(c, "invalid "+name+": expected RFC3339 timestamp")
		return nil, false
	}
	return &t, true
}
