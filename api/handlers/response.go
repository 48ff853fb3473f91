package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/meghashyamc/docsearch/db/searchdb"
	"github.com/meghashyamc/docsearch/logger"
	"github.com/meghashyamc/docsearch/services/search"
)

type response struct {
	Data   any      `json:"data"`
	Errors []string `json:"errors"`
}

func writeResponse(c *gin.Context, data interface{}, statusCode int, errors []string) {

	if statusCode == http.StatusNoContent {
		c.JSON(statusCode, nil)
		return

	}

	response := response{
		Data:   data,
		Errors: errors,
	}

	c.JSON(statusCode, response)
}

// writeError maps a service failure onto a status code. A client that went away gets nothing.
func writeError(c *gin.Context, logger logger.Logger, err error) {
	c.Abort()

	var rejection *searchdb.RejectionError
	switch {
	case errors.Is(err, context.Canceled):
		logger.Info("client went away before the search finished", "err", err.Error())

	case errors.Is(err, search.ErrInvalidRequest), errors.Is(err, searchdb.ErrInvalidCursor):
		logger.Warn("invalid search request", "err", err.Error())
		writeResponse(c, nil, http.StatusNotAcceptable, []string{err.Error()})

	case errors.As(err, &rejection):
		logger.Error("search backend rejected the request", "status", rejection.StatusCode, "err", err.Error())
		writeResponse(c, nil, http.StatusBadGateway, []string{err.Error()})

	case errors.Is(err, searchdb.ErrUnavailable):
		logger.Error("search backend unavailable", "err", err.Error())
		writeResponse(c, nil, http.StatusServiceUnavailable, []string{"search backend unavailable"})

	default:
		logger.Error("search failed", "err", err.Error())
		writeResponse(c, nil, http.StatusInternalServerError, []string{"internal error"})
	}
}
