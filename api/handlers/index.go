package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/meghashyamc/docsearch/db/kvdb"
	"github.com/meghashyamc/docsearch/logger"
	"github.com/meghashyamc/docsearch/services/index"
	"github.com/meghashyamc/docsearch/validation"
)

type IndexRequest struct {
	Path           string   `json:"path" validate:"required,valid_path"`
	ExcludeFolders []string `json:"exclude_folders" validate:"max=100"`
}

type IndexResponse struct {
	ID string `json:"id"`
}

type IndexStatusResponse struct {
	ID     string `json:"id"`
	Status int    `json:"status"`
}

func SetupIndex(router gin.IRouter, logger logger.Logger, service *index.Service, validator *validation.Validator) {
	router.POST("/index", handleIndex(service, logger, validator))
	router.GET("/index/:id", handleIndexStatus(service, logger))
}

func handleIndex(service *index.Service, logger logger.Logger, validator *validation.Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		request := IndexRequest{}
		if err := c.ShouldBindJSON(&request); err != nil {
			logger.Warn("could not extract expected params from index request", "err", err.Error())
			c.Abort()
			writeResponse(c, nil, http.StatusUnprocessableEntity, []string{"failed to extract request body parameters"})
			return
		}

		if err := validator.Validate(request); err != nil {
			logger.Warn("could not validate index request", "err", err.Error())
			c.Abort()
			writeResponse(c, nil, http.StatusNotAcceptable, []string{err.Error()})
			return
		}

		requestID := uuid.New().String()
		if err := service.Build(request.Path, request.ExcludeFolders, requestID); err != nil {
			c.Abort()
			if errors.Is(err, index.ErrBuildInProgress) {
				writeResponse(c, nil, http.StatusConflict, []string{err.Error()})
				return
			}
			logger.Error("could not start indexing", "err", err.Error())
			writeResponse(c, nil, http.StatusInternalServerError, []string{err.Error()})
			return
		}

		writeResponse(c, IndexResponse{ID: requestID}, http.StatusAccepted, nil)
	}
}

func handleIndexStatus(service *index.Service, logger logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.Param("id")

		status, err := service.GetStatus(requestID)
		if err != nil {
			c.Abort()
			if errors.Is(err, kvdb.ErrNotFound) {
				writeResponse(c, nil, http.StatusNotFound, []string{"index request not found"})
				return
			}
			logger.Error("could not read index status", "request_id", requestID, "err", err.Error())
			writeResponse(c, nil, http.StatusInternalServerError, []string{err.Error()})
			return
		}

		writeResponse(c, IndexStatusResponse{ID: requestID, Status: status}, http.StatusOK, nil)
	}
}
