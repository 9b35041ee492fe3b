// Package router registers the HTTP routes and middleware.
package router

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/hertz-contrib/keyauth"

	"github.com/steph-grigors/ai-job-matcher/internal/api/handler"
	"github.com/steph-grigors/ai-job-matcher/internal/embedding"
	"github.com/steph-grigors/ai-job-matcher/internal/fetcher"
	"github.com/steph-grigors/ai-job-matcher/internal/parser"
)

// RegisterRoutes wires the search API. When apiKey is non-empty every
// route except the health check requires a matching bearer token.
func RegisterRoutes(h *server.Hertz, searchHandler *handler.SearchHandler, apiKey string) {
	h.GET("/api/v1/health", func(c context.Context, ctx *app.RequestContext) {
		ctx.JSON(consts.StatusOK, utils.H{"status": "ok"})
	})

	api := h.Group("/api/v1")
	if apiKey != "" {
		api.Use(keyauth.New(
			keyauth.WithKeyLookUp("header:Authorization", "Bearer"),
			keyauth.WithValidator(func(ctx context.Context, c *app.RequestContext, key string) (bool, error) {
				return key == apiKey, nil
			}),
		))
	}

	api.POST("/search/upload", func(c context.Context, ctx *app.RequestContext) {
		fileHeader, err := ctx.FormFile("file")
		if err != nil {
			ctx.JSON(consts.StatusBadRequest, utils.H{"error": "file not found in request"})
			return
		}
		file, err := fileHeader.Open()
		if err != nil {
			ctx.JSON(consts.StatusInternalServerError, utils.H{"error": "open uploaded file failed"})
			return
		}
		defer file.Close()
		data, err := io.ReadAll(file)
		if err != nil {
			ctx.JSON(consts.StatusInternalServerError, utils.H{"error": "read uploaded file failed"})
			return
		}

		resp, err := searchHandler.HandleUpload(c, data, fileHeader.Filename)
		if err != nil {
			ctx.JSON(statusFor(err), utils.H{"error": err.Error()})
			return
		}
		ctx.JSON(consts.StatusOK, resp)
	})

	api.POST("/search/:session_id/run", func(c context.Context, ctx *app.RequestContext) {
		// Keywords may be empty; the handler derives them from the
		// session profile.
		var req handler.RunRequest
		if err := ctx.BindJSON(&req); err != nil {
			ctx.JSON(consts.StatusBadRequest, utils.H{"error": "invalid request body"})
			return
		}

		resp, err := searchHandler.HandleRun(c, ctx.Param("session_id"), req)
		if err != nil {
			ctx.JSON(statusFor(err), utils.H{"error": err.Error()})
			return
		}
		ctx.JSON(consts.StatusOK, resp)
	})

	api.POST("/search/:session_id/refine", func(c context.Context, ctx *app.RequestContext) {
		var req handler.RefineRequest
		if err := ctx.BindJSON(&req); err != nil {
			ctx.JSON(consts.StatusBadRequest, utils.H{"error": "invalid request body"})
			return
		}
		if strings.TrimSpace(req.Instruction) == "" {
			ctx.JSON(consts.StatusBadRequest, utils.H{"error": "instruction must not be empty"})
			return
		}

		resp, err := searchHandler.HandleRefine(c, ctx.Param("session_id"), req)
		if err != nil {
			ctx.JSON(statusFor(err), utils.H{"error": err.Error()})
			return
		}
		ctx.JSON(consts.StatusOK, resp)
	})

	api.GET("/search/:session_id/results", func(c context.Context, ctx *app.RequestContext) {
		includeListings := ctx.Query("include_listings") == "true"
		resp, err := searchHandler.HandleResults(ctx.Param("session_id"), includeListings)
		if err != nil {
			ctx.JSON(statusFor(err), utils.H{"error": err.Error()})
			return
		}
		ctx.JSON(consts.StatusOK, resp)
	})

	api.DELETE("/search/:session_id", func(c context.Context, ctx *app.RequestContext) {
		searchHandler.HandleDelete(ctx.Param("session_id"))
		ctx.JSON(consts.StatusOK, utils.H{"status": "deleted"})
	})
}

// statusFor maps pipeline errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case handler.IsNotFound(err):
		return consts.StatusNotFound
	case errors.Is(err, handler.ErrNoKeywords):
		return consts.StatusBadRequest
	case errors.Is(err, parser.ErrExtractionFailure), errors.Is(err, parser.ErrParseFailure):
		return consts.StatusUnprocessableEntity
	case errors.Is(err, fetcher.ErrFetchFailure):
		return consts.StatusBadGateway
	case errors.Is(err, embedding.ErrEmbeddingFailure):
		return consts.StatusBadGateway
	default:
		return consts.StatusInternalServerError
	}
}
