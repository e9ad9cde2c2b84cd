package v1

import (
	"net/http"

	"github.com/careledger/careledger/pkg/auth"
	"github.com/careledger/careledger/pkg/metrics"
	"github.com/gin-gonic/gin"
)

type Router struct {
	Auth     *AuthHandler
	Records  *RecordHandler
	Access   *AccessHandler
	Profiles *ProfileHandler

	JWT       *auth.JWTManager
	Collector *metrics.Collector
}

func (r *Router) Build() *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery(), Instrumented(r.Collector))

	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/metrics", gin.WrapH(metrics.MetricsHandler()))

	api := engine.Group("/api/v1")

	api.POST("/auth/login", r.Auth.Login)
	api.POST("/auth/refresh", r.Auth.Refresh)

	authed := api.Group("", Authenticated(r.JWT))
	{
		authed.POST("/auth/password", r.Auth.ChangePassword)

		authed.POST("/records", r.Records.Create)
		authed.POST("/records/:id/versions", r.Records.AppendVersion)
		authed.GET("/records/:id/versions", r.Records.ListVersions)
		authed.GET("/records/:id/content", r.Records.GetContentURL)
		authed.GET("/patients/:id/records", r.Records.ListPatientRecords)
		authed.GET("/patients/:id/commits", r.Records.GetCommitLog)

		authed.POST("/access-requests", r.Access.Create)
		authed.POST("/access-requests/:id/respond", r.Access.Respond)
		authed.POST("/access-requests/:id/revoke", r.Access.Revoke)
		authed.GET("/access-requests", r.Access.List)

		authed.GET("/doctors/:id/profile", r.Profiles.GetProfile)
		authed.GET("/doctors/:id/activity", r.Profiles.GetActivity)
		authed.POST("/doctors/:id/endorsements", r.Profiles.Endorse)
	}

	return engine
}
