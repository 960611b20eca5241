package projection

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	httperr "github.com/bidline-lab/bidline/internal/core/errors"
	"github.com/bidline-lab/bidline/internal/core/storage"
)

// RegisterRoutes registers all read-side API routes on the given router.
func (s *Service) RegisterRoutes(r gin.IRouter) {
	r.GET("/v1/bid-years", s.HandleListBidYears)
	r.GET("/v1/bid-years/:year", s.HandleCurrentState)
	r.GET("/v1/bid-years/:year/state", s.HandleStateAsOf)
	r.GET("/v1/bid-years/:year/readiness", s.HandleReadiness)
	r.GET("/v1/bid-years/:year/bid-order", s.HandleBidOrder)
	r.GET("/v1/bid-years/:year/audit", s.HandleAuditExport)
	r.GET("/v1/bid-years/:year/users/lookup", s.HandleUserLookup)
}

// HandleListBidYears handles GET /v1/bid-years
func (s *Service) HandleListBidYears(c *gin.Context) {
	years, err := s.BidYears(c.Request.Context())
	if err != nil {
		writeQueryError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bid_years": years})
}

// HandleCurrentState handles GET /v1/bid-years/:year
func (s *Service) HandleCurrentState(c *gin.Context) {
	year, ok := yearParam(c)
	if !ok {
		return
	}
	resp, err := s.CurrentState(c.Request.Context(), year)
	if err != nil {
		writeQueryError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// HandleStateAsOf handles GET /v1/bid-years/:year/state?at_seq=N
// at_seq omitted or zero means head.
func (s *Service) HandleStateAsOf(c *gin.Context) {
	year, ok := yearParam(c)
	if !ok {
		return
	}
	atSeq, ok := int64Query(c, "at_seq")
	if !ok {
		return
	}
	resp, err := s.StateAsOf(c.Request.Context(), year, atSeq)
	if err != nil {
		writeQueryError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// HandleReadiness handles GET /v1/bid-years/:year/readiness
func (s *Service) HandleReadiness(c *gin.Context) {
	year, ok := yearParam(c)
	if !ok {
		return
	}
	report, err := s.Readiness(c.Request.Context(), year)
	if err != nil {
		writeQueryError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// HandleBidOrder handles GET /v1/bid-years/:year/bid-order
func (s *Service) HandleBidOrder(c *gin.Context) {
	year, ok := yearParam(c)
	if !ok {
		return
	}
	resp, err := s.BidOrder(c.Request.Context(), year)
	if err != nil {
		writeQueryError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// HandleAuditExport handles GET /v1/bid-years/:year/audit?after_seq=N&limit=M
func (s *Service) HandleAuditExport(c *gin.Context) {
	year, ok := yearParam(c)
	if !ok {
		return
	}
	afterSeq, ok := int64Query(c, "after_seq")
	if !ok {
		return
	}
	limit, ok := int64Query(c, "limit")
	if !ok {
		return
	}
	page, err := s.AuditExport(c.Request.Context(), year, afterSeq, int(limit))
	if err != nil {
		writeQueryError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// HandleUserLookup handles GET /v1/bid-years/:year/users/lookup?initials=AA
func (s *Service) HandleUserLookup(c *gin.Context) {
	year, ok := yearParam(c)
	if !ok {
		return
	}
	initials := c.Query("initials")
	if initials == "" {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidJsonError,
			Message:   "initials query parameter is required",
		})
		return
	}
	resp, err := s.LookupUser(c.Request.Context(), year, initials)
	if err != nil {
		writeQueryError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func yearParam(c *gin.Context) (int, bool) {
	year, err := strconv.Atoi(c.Param("year"))
	if err != nil {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidJsonError,
			Message:   "year path parameter must be an integer",
			Details:   c.Param("year"),
		})
		return 0, false
	}
	return year, true
}

func int64Query(c *gin.Context, name string) (int64, bool) {
	raw := c.Query(name)
	if raw == "" {
		return 0, true
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, httperr.ErrorResponse{
			ErrorType: httperr.HttpInvalidJsonError,
			Message:   name + " query parameter must be an integer",
			Details:   raw,
		})
		return 0, false
	}
	return v, true
}

func writeQueryError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		c.JSON(http.StatusNotFound, httperr.ErrorResponse{
			ErrorType: httperr.HttpNotFoundError,
			Message:   "resource not found",
			Details:   err.Error(),
		})
	default:
		c.JSON(http.StatusInternalServerError, httperr.ErrorResponse{
			ErrorType: httperr.HttpInternalError,
			Message:   "query failed",
			Details:   err.Error(),
		})
	}
}
