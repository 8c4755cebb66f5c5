package controllers

import (
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/process"
)

// Health reports liveness plus the process's own resource usage.
func (a *API) Health(c *gin.Context) {
	resp := gin.H{"status": "ok"}

	if sqlDB, err := a.DB.DB(); err != nil || sqlDB.Ping() != nil {
		resp["status"] = "degraded"
		resp["database"] = "unreachable"
	} else {
		resp["database"] = "ok"
	}

	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if cpu, err := proc.CPUPercent(); err == nil {
			resp["cpuPercent"] = cpu
		}
		if mem, err := proc.MemoryInfo(); err == nil {
			resp["rssBytes"] = mem.RSS
		}
	}

	code := http.StatusOK
	if resp["status"] != "ok" {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, resp)
}
