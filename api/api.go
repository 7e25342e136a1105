package api

import (
	"net/http"

	"github.com/typesense/typesense-go/typesense/api"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/ringflow/ringflow/config"

	"github.com/ringflow/ringflow/api/middleware"

	"github.com/gin-gonic/gin"
	"github.com/ringflow/ringflow"
)

type Api struct {
	ringflow *ringflow.Ringflow
	router   *gin.Engine
}

func (a Api) Router() *gin.Engine {
	router := a.router
	router.POST("/leads", a.CreateLead)
	router.POST("/leads/bulk", a.CreateLeads)
	router.POST("/leads/upload", a.UploadLeads)
	router.GET("/leads/:id", a.GetLead)
	router.GET("/leads", a.ListLeads)

	router.GET("/stats/leads", a.LeadStats)
	router.GET("/stats/concurrency", a.ConcurrencyStats)

	router.POST("/batch/trigger", a.TriggerBatch)
	router.POST("/recover-stale-calls", a.RecoverStaleCalls)

	router.GET("/backup", a.BackupDB)
	router.GET("/backup-s3", a.BackupDBS3)

	router.POST("/search/:collection", a.Search)
	router.POST("/multi-search", a.MultiSearch)
	router.POST("/reindex", a.StartReindex)
	router.GET("/reindex/progress", a.GetReindexProgress)

	return a.router
}

func NewAPI(b *ringflow.Ringflow) *Api {
	gin.SetMode(gin.ReleaseMode)
	conf, err := config.Fetch()
	if err != nil {
		return nil
	}
	r := gin.Default()
	r.Use(otelgin.Middleware("ringflow"))
	r.Use(middleware.RateLimitMiddleware(conf))

	a := &Api{ringflow: b, router: r}

	// The voice provider proves itself with its own webhook secret and load
	// balancers probe without credentials, so these routes go in ahead of the
	// client key gate.
	r.POST("/webhooks/calls", a.ReceiveCallEvent)
	r.GET("/health", a.Health)

	if conf.Server.Secure {
		r.Use(middleware.SecretKeyAuthMiddleware())
	}

	r.GET("/", func(c *gin.Context) {
		c.JSON(200, "server running...")
	})

	return a
}

func (a Api) Search(c *gin.Context) {
	collection, passed := c.Params.Get("collection")
	if !passed {
		c.JSON(http.StatusBadRequest, gin.H{"error": "collection is required. pass id in the route /:collection"})
		return
	}

	var query api.SearchCollectionParams
	err := c.BindJSON(&query)
	if err != nil {
		return
	}

	resp, err := a.ringflow.Search(collection, &query)

	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (a Api) MultiSearch(c *gin.Context) {
	var searchParams api.MultiSearchSearchesParameter
	err := c.BindJSON(&searchParams)
	if err != nil {
		return
	}

	resp, err := a.ringflow.MultiSearch(&searchParams)

	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, resp)
}

func (a Api) Health(c *gin.Context) {
	components, err := a.ringflow.Health(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "components": components})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok", "components": components})
}
