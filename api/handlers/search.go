package handlers

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/meghashyamc/docsearch/logger"
	"github.com/meghashyamc/docsearch/services/search"
	"github.com/meghashyamc/docsearch/validation"
)

type DateRangeRequest struct {
	From string `json:"from" validate:"valid_date"`
	To   string `json:"to" validate:"valid_date"`
}

type SearchRequest struct {
	Terms       []string            `json:"terms" validate:"max=100,dive,max=1000"`
	Size        int                 `json:"size" validate:"min=0,max=10000"`
	MatchMode   string              `json:"match_mode" validate:"valid_match_mode"`
	Filters     map[string][]string `json:"filters" validate:"valid_filters"`
	DateRange   DateRangeRequest    `json:"date_range"`
	Cursor      []any               `json:"cursor" validate:"valid_cursor"`
	Stream      bool                `json:"stream"`
	ParentsOnly bool                `json:"parents_only"`
}

func (r SearchRequest) toSearchRequest() search.Request {
	return search.Request{
		Terms:       r.Terms,
		MatchMode:   search.MatchMode(r.MatchMode),
		Filters:     r.Filters,
		DateRange:   search.DateRange{From: r.DateRange.From, To: r.DateRange.To},
		ParentsOnly: r.ParentsOnly,
		Size:        r.Size,
		Cursor:      search.Cursor(r.Cursor),
	}
}

type LinkRequest struct {
	RecordID     string       `json:"record_id" validate:"max=1000"`
	ParentID     string       `json:"parent_id" validate:"max=1000"`
	IsAttachment flexibleBool `json:"is_attachment"`
}

type LinkResponse struct {
	Documents  []search.Document `json:"documents"`
	NextCursor search.Cursor     `json:"next_cursor"`
}

// flexibleBool accepts true/false, "True"/"False" in any case and 0/1.
type flexibleBool bool

func (f *flexibleBool) UnmarshalJSON(data []byte) error {
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()

	var raw any
	if err := decoder.Decode(&raw); err != nil {
		return err
	}
	if raw == nil {
		*f = false
		return nil
	}

	flag, ok := search.ParseFlag(raw)
	if !ok {
		return fmt.Errorf("cannot read %s as a boolean", string(data))
	}
	*f = flexibleBool(flag)
	return nil
}

func SetupSearch(router gin.IRouter, logger logger.Logger, service *search.Service, validator *validation.Validator) {
	router.POST("/search", handleSearch(service, logger, validator))
	router.POST("/attachments/link", handleLinked(service, logger, validator))
}

func handleSearch(service *search.Service, logger logger.Logger, validator *validation.Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		request := SearchRequest{}
		if err := c.ShouldBindJSON(&request); err != nil {
			logger.Warn("could not extract expected params from search request", "err", err.Error())
			c.Abort()
			writeResponse(c, nil, http.StatusUnprocessableEntity, []string{"failed to extract request body parameters"})
			return
		}

		if err := validator.Validate(request); err != nil {
			logger.Warn("could not validate search request", "err", err.Error())
			c.Abort()
			writeResponse(c, nil, http.StatusNotAcceptable, []string{err.Error()})
			return
		}

		searchRequest := request.toSearchRequest()
		// An empty request is answered with an empty page in both modes.
		if !request.Stream || searchRequest.IsEmpty() {
			page, err := service.Search(c.Request.Context(), searchRequest)
			if err != nil {
				writeError(c, logger, err)
				return
			}
			c.JSON(http.StatusOK, page)
			return
		}

		streamSearch(c, service, logger, searchRequest)
	}
}

// streamSearch writes the results as one JSON array, flushed page by page. A failure before
// anything was written gets a normal error response; after that the array is left unclosed.
func streamSearch(c *gin.Context, service *search.Service, logger logger.Logger, request search.Request) {
	encoder := search.NewArrayEncoder(c.Writer)
	documents := 0

	err := service.Stream(c.Request.Context(), request, func(page []search.Document) error {
		if len(page) == 0 {
			return nil
		}
		if !encoder.Started() {
			c.Header("Content-Type", "application/json; charset=utf-8")
			c.Status(http.StatusOK)
		}
		if err := encoder.EncodeAll(page); err != nil {
			return err
		}
		c.Writer.Flush()
		documents += len(page)
		return nil
	})

	if err != nil {
		if !encoder.Started() {
			writeError(c, logger, err)
			return
		}
		logger.Error("search stream aborted", "documents", documents, "err", err.Error())
		c.Abort()
		return
	}

	if !encoder.Started() {
		c.Header("Content-Type", "application/json; charset=utf-8")
		c.Status(http.StatusOK)
	}
	if err := encoder.Close(); err != nil {
		logger.Warn("could not terminate search stream", "err", err.Error())
		return
	}
	c.Writer.Flush()
	logger.Debug("search stream finished", "documents", documents)
}

func handleLinked(service *search.Service, logger logger.Logger, validator *validation.Validator) gin.HandlerFunc {
	return func(c *gin.Context) {
		request := LinkRequest{}
		if err := c.ShouldBindJSON(&request); err != nil {
			logger.Warn("could not extract expected params from link request", "err", err.Error())
			c.Abort()
			writeResponse(c, nil, http.StatusUnprocessableEntity, []string{"failed to extract request body parameters"})
			return
		}

		if err := validator.Validate(request); err != nil {
			logger.Warn("could not validate link request", "err", err.Error())
			c.Abort()
			writeResponse(c, nil, http.StatusNotAcceptable, []string{err.Error()})
			return
		}

		documents, err := service.Linked(c.Request.Context(), search.LinkRequest{
			RecordID:     request.RecordID,
			ParentID:     request.ParentID,
			IsAttachment: bool(request.IsAttachment),
		})
		if err != nil {
			writeError(c, logger, err)
			return
		}

		c.JSON(http.StatusOK, LinkResponse{Documents: documents})
	}
}
