package routes

import (
	"github.com/gin-gonic/gin"

	"github.com/autocrm-inc/autocrm/internal/infrastructure/permission"
	knowledgehandlers "github.com/autocrm-inc/autocrm/internal/interfaces/http/handlers/knowledge"
	"github.com/autocrm-inc/autocrm/internal/interfaces/http/middleware"
)

type KnowledgeRouteConfig struct {
	KnowledgeHandler     *knowledgehandlers.KnowledgeHandler
	AuthMiddleware       *middleware.AuthMiddleware
	PermissionMiddleware *middleware.PermissionMiddleware
}

func SetupKnowledgeRoutes(api *gin.RouterGroup, cfg *KnowledgeRouteConfig) {
	can := cfg.PermissionMiddleware.RequirePermission

	articles := api.Group("/articles")
	articles.Use(cfg.AuthMiddleware.RequireAuth())
	{
		articles.GET("", can(permission.ResourceArticles, permission.ActionRead), cfg.KnowledgeHandler.ListArticles)
		articles.POST("", can(permission.ResourceArticles, permission.ActionCreate), cfg.KnowledgeHandler.UploadArticle)

		articles.GET("/:id/download", can(permission.ResourceArticles, permission.ActionRead), cfg.KnowledgeHandler.DownloadArticle)
		articles.POST("/:id/reindex", can(permission.ResourceArticles, permission.ActionUpdate), cfg.KnowledgeHandler.ReindexArticle)

		articles.GET("/:id", can(permission.ResourceArticles, permission.ActionRead), cfg.KnowledgeHandler.GetArticle)
		articles.PATCH("/:id", can(permission.ResourceArticles, permission.ActionUpdate), cfg.KnowledgeHandler.UpdateArticle)
		articles.DELETE("/:id", can(permission.ResourceArticles, permission.ActionDelete), cfg.KnowledgeHandler.DeleteArticle)
	}

	kb := api.Group("/knowledge")
	kb.Use(cfg.AuthMiddleware.RequireAuth())
	{
		// Raw bucket listing includes unpublished files.
		kb.GET("/files", can(permission.ResourceArticles, permission.ActionCreate), cfg.KnowledgeHandler.ListFiles)
		kb.POST("/search", can(permission.ResourceAssistant, permission.ActionRead), cfg.KnowledgeHandler.SearchKnowledge)
	}
}
