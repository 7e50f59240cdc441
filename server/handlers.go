package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"github.com/magicjudges/announcer/model"
	"github.com/magicjudges/announcer/panoptic/modules"
	"github.com/magicjudges/announcer/publisher"
	Logger "github.com/magicjudges/announcer/utils/log"
)

type StatusResponse struct {
	Stages         []model.StageStatus `json:"stages"`
	UnsentMessages int64               `json:"unsent_messages"`
}

func (s *Server) StatusHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		res := StatusResponse{}
		for _, stage := range Stages {
			status, ok, err := s.Status.Get(ctx, stage)
			if err != nil {
				Logger.Log.WithError(err).Errorf("cannot read status of %s", stage)
				c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
				return
			}
			if !ok {
				status = model.StageStatus{Stage: stage}
			}
			res.Stages = append(res.Stages, status)
		}

		unsent, err := publisher.UnsentCount(s.DB.WithContext(ctx))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		res.UnsentMessages = unsent
		c.JSON(http.StatusOK, res)
	}
}

// RunStageHandler runs a stage now and answers with its result. The request
// waits for a pass already in flight.
func (s *Server) RunStageHandler(stage string, force bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		result, err := s.Stages.RunNow(c.Request.Context(), stage, force)
		if errors.Is(err, modules.ErrUnknownStage) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "result": result})
			return
		}
		c.JSON(http.StatusOK, gin.H{"result": result})
	}
}

func manualErrorStatus(err error) int {
	switch {
	case errors.Is(err, publisher.ErrEmptyAnnouncement), errors.Is(err, publisher.ErrNotManualSource):
		return http.StatusBadRequest
	case errors.Is(err, publisher.ErrNotAuthorized):
		return http.StatusForbidden
	case errors.Is(err, publisher.ErrUnknownSource), errors.Is(err, publisher.ErrUnknownUser):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func (s *Server) ManualAnnouncementHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input publisher.ManualAnnouncementInput
		if err := c.ShouldBindJSON(&input); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		a, err := publisher.SubmitManualAnnouncement(s.DB.WithContext(c.Request.Context()), input, s.Now())
		if err != nil {
			status := manualErrorStatus(err)
			if status == http.StatusInternalServerError {
				Logger.Log.WithError(err).Error("failed to submit manual announcement")
			}
			c.JSON(status, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"id": a.Id})
	}
}

type SourceView struct {
	Id            string           `json:"id"`
	Name          string           `json:"name"`
	Description   string           `json:"description"`
	Kind          model.SourceKind `json:"kind"`
	DefaultSource bool             `json:"default_source"`
	SortOrder     int              `json:"sort_order"`
}

func (s *Server) SourcesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		sources, err := model.ListSources(s.DB.WithContext(c.Request.Context()))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		views := make([]SourceView, 0, len(sources))
		for _, src := range sources {
			views = append(views, SourceView{
				Id:            src.Id,
				Name:          src.Name,
				Description:   src.Description,
				Kind:          src.Kind,
				DefaultSource: src.DefaultSource,
				SortOrder:     src.SortOrder,
			})
		}
		c.JSON(http.StatusOK, views)
	}
}

type SubscribeRequest struct {
	SourceID string `json:"source_id" binding:"required"`
}

func (s *Server) SubscribeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req SubscribeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		routing, created, err := publisher.Subscribe(s.DB.WithContext(c.Request.Context()), c.Param("id"), req.SourceID)
		if errors.Is(err, publisher.ErrUnknownDestination) || errors.Is(err, publisher.ErrUnknownSource) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		c.JSON(status, gin.H{"id": routing.Id, "created": created})
	}
}

func (s *Server) UnsubscribeHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		deleted, err := publisher.Unsubscribe(s.DB.WithContext(c.Request.Context()), c.Param("id"), c.Param("source_id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		if !deleted {
			c.JSON(http.StatusNotFound, gin.H{"error": "no such routing"})
			return
		}
		c.Status(http.StatusNoContent)
	}
}
