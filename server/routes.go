package server

import (
	"errors"
	"net/http"
	"path/filepath"

	"assembly-worker/dto"
	"assembly-worker/repository"
	"assembly-worker/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func newRouter(assemblyService service.AssemblyService) *gin.Engine {
	r := gin.Default()

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
		})
	})

	v1 := r.Group("/api/v1")
	{
		v1.POST("/assembly", submitAssembly(assemblyService))
		v1.GET("/assembly/:id", getAssemblyStatus(assemblyService))
		v1.GET("/assembly/:id/download", downloadAssembly(assemblyService))
		v1.POST("/assembly/:id/cancel", cancelAssembly(assemblyService))
	}

	return r
}

func submitAssembly(assemblyService service.AssemblyService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req dto.AssembleRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		jobId, err := assemblyService.Submit(c.Request.Context(), req.ProjectId,
			service.SegmentsFromInput(req.Segments), service.OptionsFromInput(req.Options))
		if errors.Is(err, service.ErrNoSegments) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "segments must not be empty"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusAccepted, dto.AssembleResponse{
			JobId:         jobId,
			SegmentsCount: len(req.Segments),
		})
	}
}

func getAssemblyStatus(assemblyService service.AssemblyService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := jobIdParam(c)
		if !ok {
			return
		}

		status, err := assemblyService.Status(c.Request.Context(), id)
		if errors.Is(err, repository.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "assembly job not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, status)
	}
}

func downloadAssembly(assemblyService service.AssemblyService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := jobIdParam(c)
		if !ok {
			return
		}

		outputPath, err := assemblyService.Output(c.Request.Context(), id)
		if errors.Is(err, repository.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "assembly job not found"})
			return
		}
		if errors.Is(err, service.ErrNotReady) {
			c.JSON(http.StatusConflict, gin.H{"error": "assembly not completed yet"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.FileAttachment(outputPath, "assembled_"+filepath.Base(outputPath))
	}
}

func cancelAssembly(assemblyService service.AssemblyService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := jobIdParam(c)
		if !ok {
			return
		}

		err := assemblyService.Cancel(c.Request.Context(), id)
		if errors.Is(err, repository.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "assembly job not found"})
			return
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"cancelled": true})
	}
}

func jobIdParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid job id"})
		return uuid.Nil, false
	}
	return id, true
}
