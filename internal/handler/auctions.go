package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"auctionharvest/internal/service"
)

type AuctionsHandler struct {
	Auctions *service.AuctionService
	Comments *service.CommentService
	Logger   *zap.Logger
}

func (h *AuctionsHandler) Register(r *gin.Engine) {
	group := r.Group("/api/auctions")
	group.GET("", h.listAuctions)
	group.GET("/stats", h.stats)
	group.GET("/:lotNumber", h.getAuction)
	group.GET("/:lotNumber/comments", h.listComments)
	group.POST("/:lotNumber/comments", h.addComment)
	r.DELETE("/api/comments/:id", h.deleteComment)
}

// @Summary List auction items
// @Tags auctions
// @Param limit query int false "limit"
// @Param offset query int false "offset"
// @Param source query string false "source filter"
// @Param asset_type query string false "asset type, single or comma-separated"
// @Param status query string false "status filter"
// @Param active query bool false "only available items whose closing date has not passed"
// @Param search query string false "free-text search over title/description/location/agency"
// @Param max_bid query number false "max current bid"
// @Param country query string false "country filter"
// @Param order_by query string false "order by field"
// @Param ascending query bool false "ascending"
// @Success 200 {object} apiResponse
// @Router /api/auctions [get]
func (h *AuctionsHandler) listAuctions(c *gin.Context) {
	if h.Auctions == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)
	query := service.AuctionQuery{
		Limit:      limit,
		Offset:     offset,
		Source:     c.Query("source"),
		AssetType:  c.Query("asset_type"),
		Status:     c.Query("status"),
		ActiveOnly: boolQuery(c, "active", false),
		Search:     c.Query("search"),
		MaxBid:     floatQueryPtr(c, "max_bid"),
		Country:    c.Query("country"),
		OrderBy: parseOrder(c.Query("order_by"), map[string]string{
			"closing_date": "closing_date",
			"current_bid":  "current_bid",
			"updated_at":   "updated_at",
			"created_at":   "created_at",
			"title":        "title",
		}),
		Asc: boolQueryPtr(c, "ascending"),
	}

	items, total, err := h.Auctions.List(c.Request.Context(), query)
	if err != nil {
		if h.Logger != nil {
			h.Logger.Warn("list auctions failed", zap.Error(err))
		}
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, items, paginationMeta(limit, offset, total))
}

// @Summary Get one auction item by lot number
// @Tags auctions
// @Param lotNumber path string true "lot number"
// @Success 200 {object} apiResponse
// @Router /api/auctions/{lotNumber} [get]
func (h *AuctionsHandler) getAuction(c *gin.Context) {
	if h.Auctions == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	lotNumber := strings.TrimSpace(c.Param("lotNumber"))
	item, err := h.Auctions.GetByLotNumber(c.Request.Context(), lotNumber)
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "auction item not found", nil)
		return
	}
	Ok(c, item, nil)
}

// @Summary Aggregate auction statistics
// @Tags auctions
// @Success 200 {object} apiResponse
// @Router /api/auctions/stats [get]
func (h *AuctionsHandler) stats(c *gin.Context) {
	if h.Auctions == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	stats, err := h.Auctions.Stats(c.Request.Context())
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, stats, nil)
}

// @Summary List comments for a lot
// @Tags comments
// @Param lotNumber path string true "lot number"
// @Success 200 {object} apiResponse
// @Router /api/auctions/{lotNumber}/comments [get]
func (h *AuctionsHandler) listComments(c *gin.Context) {
	if h.Comments == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	comments, err := h.Comments.ListForLot(c.Request.Context(), c.Param("lotNumber"))
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, comments, nil)
}

type addCommentRequest struct {
	Author  string `json:"author"`
	Content string `json:"content" binding:"required"`
}

// @Summary Add a comment to a lot
// @Tags comments
// @Param lotNumber path string true "lot number"
// @Param body body addCommentRequest true "comment"
// @Success 200 {object} apiResponse
// @Router /api/auctions/{lotNumber}/comments [post]
func (h *AuctionsHandler) addComment(c *gin.Context) {
	if h.Comments == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	var req addCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	comment, err := h.Comments.Add(c.Request.Context(), c.Param("lotNumber"), req.Author, req.Content)
	if err != nil {
		if strings.Contains(err.Error(), "not found") {
			Error(c, http.StatusNotFound, err.Error(), nil)
			return
		}
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	Ok(c, comment, nil)
}

// @Summary Delete a comment
// @Tags comments
// @Param id path string true "comment id"
// @Success 200 {object} apiResponse
// @Router /api/comments/{id} [delete]
func (h *AuctionsHandler) deleteComment(c *gin.Context) {
	if h.Comments == nil {
		Error(c, http.StatusInternalServerError, "service unavailable", nil)
		return
	}
	deleted, err := h.Comments.Delete(c.Request.Context(), c.Param("id"))
	if err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	if !deleted {
		Error(c, http.StatusNotFound, "comment not found", nil)
		return
	}
	Ok(c, gin.H{"deleted": true}, nil)
}
