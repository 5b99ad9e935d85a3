package server

import (
	"context"
	"net/http"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"
	auditdomain "github.com/smallbiznis/storeadmin/internal/audit/domain"
	"github.com/smallbiznis/storeadmin/internal/authorization"
	"github.com/smallbiznis/storeadmin/internal/records"
	"github.com/smallbiznis/storeadmin/pkg/db/pagination"
	"github.com/smallbiznis/storeadmin/pkg/docstore"
	"github.com/smallbiznis/storeadmin/pkg/repository"
	"go.uber.org/zap"
)

// Sales only change through the sales endpoints so stock and coupon uses stay consistent.
var dedicatedWrites = map[records.Kind]bool{
	records.KindSales: true,
}

// registerRecordRoutes generates the CRUD surface of every registered kind.
func (s *Server) registerRecordRoutes(rg *gin.RouterGroup) {
	view := s.authorizeStore(authorization.ObjectRecord, authorization.ActionRecordView)
	create := s.authorizeStore(authorization.ObjectRecord, authorization.ActionRecordCreate)
	update := s.authorizeStore(authorization.ObjectRecord, authorization.ActionRecordUpdate)
	remove := s.authorizeStore(authorization.ObjectRecord, authorization.ActionRecordDelete)

	for _, spec := range records.Specs() {
		kind := spec.Kind
		base := "/" + kind.String()

		rg.GET(base, view, s.listRecords(kind))
		rg.GET(base+"/:id", view, s.getRecord(kind))

		if spec.ReadOnly || dedicatedWrites[kind] {
			continue
		}
		if !spec.ManagedCreate {
			rg.POST(base, create, s.createRecord(kind))
		}
		rg.PUT(base+"/:id", update, s.replaceRecord(kind))
		rg.PATCH(base+"/:id", update, s.patchRecord(kind))
		rg.DELETE(base+"/:id", remove, s.deleteRecord(kind))
		if spec.Ordered {
			rg.POST(base+"/reorder", update, s.reorderRecords(kind))
		}
	}
}

type listRecordsQuery struct {
	OrderBy   string   `form:"order_by"`
	Desc      string   `form:"desc"`
	Limit     string   `form:"limit"`
	Filter    []string `form:"filter"`
	PageToken string   `form:"page_token"`
	PageSize  string   `form:"page_size"`
}

func (q listRecordsQuery) options() (repository.ListOptions, error) {
	opts := repository.ListOptions{OrderBy: strings.TrimSpace(q.OrderBy)}

	desc, err := parseOptionalBool(q.Desc)
	if err != nil {
		return opts, newValidationError("desc", "invalid_desc", "invalid desc")
	}
	if desc != nil {
		opts.Desc = *desc
	}

	limit, err := parseOptionalInt(q.Limit)
	if err != nil || limit < 0 {
		return opts, newValidationError("limit", "invalid_limit", "invalid limit")
	}
	opts.Limit = limit

	for _, raw := range q.Filter {
		f, err := parseFilter(raw)
		if err != nil {
			return opts, newValidationError("filter", "invalid_filter", "filter must be field:value or field:op:value")
		}
		opts.Filters = append(opts.Filters, f)
	}
	return opts, nil
}

func (s *Server) listRecords(kind records.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		h, err := s.registry.Handle(kind)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		var query listRecordsQuery
		if err := c.ShouldBindQuery(&query); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
		opts, err := query.options()
		if err != nil {
			AbortWithError(c, err)
			return
		}

		ctx := c.Request.Context()
		storeID := storeIDFrom(c)

		if strings.TrimSpace(query.PageToken) != "" || strings.TrimSpace(query.PageSize) != "" {
			size, err := parseOptionalInt(query.PageSize)
			if err != nil || size < 0 {
				AbortWithError(c, newValidationError("page_size", "invalid_page_size", "invalid page_size"))
				return
			}
			items, info, err := h.Page(ctx, storeID, opts, pagination.Pagination{
				PageToken: strings.TrimSpace(query.PageToken),
				PageSize:  size,
			})
			if err != nil {
				AbortWithError(c, err)
				return
			}
			c.JSON(http.StatusOK, gin.H{"data": items, "page_info": info})
			return
		}

		items, err := h.List(ctx, storeID, opts)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": items})
	}
}

func (s *Server) getRecord(kind records.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		h, err := s.registry.Handle(kind)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		item, err := h.Get(c.Request.Context(), storeIDFrom(c), c.Param("id"))
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": item})
	}
}

func (s *Server) createRecord(kind records.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		h, err := s.registry.Handle(kind)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		body, err := c.GetRawData()
		if err != nil || len(body) == 0 {
			AbortWithError(c, invalidRequestError())
			return
		}

		ctx := c.Request.Context()
		storeID := storeIDFrom(c)
		id, err := h.Create(ctx, storeID, body)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		s.auditRecord(ctx, storeID, "create", kind, id, nil)

		item, err := h.Get(ctx, storeID, id)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"data": item})
	}
}

func (s *Server) replaceRecord(kind records.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		h, err := s.registry.Handle(kind)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		body, err := c.GetRawData()
		if err != nil || len(body) == 0 {
			AbortWithError(c, invalidRequestError())
			return
		}

		ctx := c.Request.Context()
		storeID := storeIDFrom(c)
		id := c.Param("id")
		if err := h.Replace(ctx, storeID, id, body); err != nil {
			AbortWithError(c, err)
			return
		}
		s.auditRecord(ctx, storeID, "replace", kind, id, nil)

		item, err := h.Get(ctx, storeID, id)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": item})
	}
}

func (s *Server) patchRecord(kind records.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		h, err := s.registry.Handle(kind)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		var fields docstore.Data
		if err := c.ShouldBindJSON(&fields); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}

		ctx := c.Request.Context()
		storeID := storeIDFrom(c)
		id := c.Param("id")
		if err := h.Patch(ctx, storeID, id, fields); err != nil {
			AbortWithError(c, err)
			return
		}
		s.auditRecord(ctx, storeID, "update", kind, id, fieldNames(fields))

		item, err := h.Get(ctx, storeID, id)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": item})
	}
}

func (s *Server) deleteRecord(kind records.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		h, err := s.registry.Handle(kind)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		ctx := c.Request.Context()
		storeID := storeIDFrom(c)
		id := c.Param("id")
		if err := h.Delete(ctx, storeID, id); err != nil {
			AbortWithError(c, err)
			return
		}
		s.auditRecord(ctx, storeID, "delete", kind, id, nil)
		c.Status(http.StatusNoContent)
	}
}

type reorderRequest struct {
	IDs []string `json:"ids"`
}

type bulkResultResponse struct {
	Chunks    int `json:"chunks"`
	Committed int `json:"committed"`
	Writes    int `json:"writes"`
}

func newBulkResultResponse(r docstore.BulkResult) bulkResultResponse {
	return bulkResultResponse{Chunks: r.Chunks, Committed: r.Committed, Writes: r.Writes}
}

func (s *Server) reorderRecords(kind records.Kind) gin.HandlerFunc {
	return func(c *gin.Context) {
		h, err := s.registry.Handle(kind)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		var req reorderRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}

		ctx := c.Request.Context()
		storeID := storeIDFrom(c)
		result, err := h.Reorder(ctx, storeID, req.IDs, s.chunkSize())
		if err != nil {
			if result.Committed > 0 {
				s.log.Warn("reorder partially committed",
					zap.String("store_id", storeID),
					zap.String("kind", kind.String()),
					zap.Int("committed", result.Committed),
					zap.Int("chunks", result.Chunks),
					zap.Error(err),
				)
			}
			AbortWithError(c, err)
			return
		}
		s.auditRecord(ctx, storeID, "reorder", kind, "", map[string]any{"count": len(req.IDs)})
		c.JSON(http.StatusOK, gin.H{"result": newBulkResultResponse(result)})
	}
}

func (s *Server) chunkSize() int {
	if s.wizardCfg == nil {
		return docstore.DefaultChunkSize
	}
	return s.wizardCfg.Get().ChunkSize
}

func (s *Server) auditRecord(ctx context.Context, storeID, action string, kind records.Kind, id string, changes map[string]any) {
	if s.auditSvc == nil {
		return
	}
	err := s.auditSvc.AuditLog(ctx, storeID, auditdomain.Entry{
		Action:     kind.String() + "." + action,
		Collection: kind.String(),
		DocID:      id,
		Changes:    changes,
	})
	if err != nil {
		s.log.Warn("audit log failed",
			zap.String("store_id", storeID),
			zap.String("kind", kind.String()),
			zap.String("action", action),
			zap.Error(err),
		)
	}
}

func fieldNames(fields docstore.Data) map[string]any {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return map[string]any{"fields": names}
}
