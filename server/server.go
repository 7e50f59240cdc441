package server

import (
	"context"
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"golang.org/x/oauth2"
	gintrace "gopkg.in/DataDog/dd-trace-go.v1/contrib/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/magicjudges/announcer/bot"
	"github.com/magicjudges/announcer/collector"
	"github.com/magicjudges/announcer/model"
	"github.com/magicjudges/announcer/panoptic"
	"github.com/magicjudges/announcer/publisher"
	"github.com/magicjudges/announcer/server/middlewares"
	"github.com/magicjudges/announcer/utils"
)

// StageRunner runs a stage synchronously, the panoptic scheduler in
// production.
type StageRunner interface {
	RunNow(ctx context.Context, stage string, force bool) (model.StageResult, error)
}

// Stages lists the pipeline in execution order, as shown on the status view.
var Stages = []string{
	collector.StageName,
	publisher.RouterStageName,
	publisher.DelivererStageName,
}

type Server struct {
	DB            *gorm.DB
	Stages        StageRunner
	Status        panoptic.StatusStore
	OAuth         *oauth2.Config
	OperatorToken string
	Now           utils.Clock
}

// NewRouter wires every route. serviceName tags the traces, no tracing
// middleware is installed when it is empty.
func (s *Server) NewRouter(serviceName string) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.Default())
	if serviceName != "" {
		router.Use(gintrace.Middleware(serviceName))
	}

	router.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
		})
	})

	// Slack redirects the installing user here, it cannot carry our token.
	if s.OAuth != nil {
		router.GET("/bot/auth", bot.AuthHandler(s.DB, s.OAuth))
	}

	operator := router.Group("/")
	operator.Use(middlewares.OperatorToken(s.OperatorToken))

	operator.GET("/status", s.StatusHandler())
	operator.POST("/status/run_fetch", s.RunStageHandler(collector.StageName, true))
	operator.POST("/status/run_router", s.RunStageHandler(publisher.RouterStageName, false))
	operator.POST("/status/run_delivery", s.RunStageHandler(publisher.DelivererStageName, false))

	operator.POST("/announcements/manual", s.ManualAnnouncementHandler())

	operator.GET("/sources", s.SourcesHandler())
	operator.POST("/destinations/:id/routings", s.SubscribeHandler())
	operator.DELETE("/destinations/:id/routings/:source_id", s.UnsubscribeHandler())

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"message": "Announcer server - API not found"})
	})
	return router
}
