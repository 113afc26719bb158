package controller

import (
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"

	"claude-relay/common/config"
	"claude-relay/relay/adaptor/bedrock"
)

const version = "v1.0.0"

// GetStatus serves GET /api/status.
func GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"version":            version,
			"providers":          relayer.Providers(),
			"prometheus_enabled": config.EnablePrometheusMetrics,
		},
	})
}

// ListModels serves GET /v1/models in the Anthropic list shape. The catalog
// is the set of friendly model names the relay knows how to route.
func ListModels(c *gin.Context) {
	names := make([]string, 0, len(bedrock.AwsModelIDMap))
	for name := range bedrock.AwsModelIDMap {
		names = append(names, name)
	}
	sort.Strings(names)

	data := make([]gin.H, 0, len(names))
	for _, name := range names {
		data = append(data, gin.H{
			"type":         "model",
			"id":           name,
			"display_name": name,
		})
	}
	c.JSON(http.StatusOK, gin.H{
		"data":     data,
		"has_more": false,
	})
}
