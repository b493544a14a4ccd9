package router

import (
	"github.com/gin-gonic/gin"
)

// RegisterV1Routes 注册 v1 版本路由
func RegisterV1Routes(v1 *gin.RouterGroup, h *Handlers) {
	// 对话会话
	conversations := v1.Group("/conversations")
	{
		conversations.GET("", h.Conversation.ListConversations)
		conversations.POST("", h.Conversation.StartConversation)
		conversations.GET("/:sid", h.Conversation.GetConversation)
		conversations.DELETE("/:sid", h.Conversation.DeleteConversation)

		conversations.POST("/:sid/messages", h.Conversation.SendMessage)
		conversations.POST("/:sid/resume", h.Conversation.ResumeConversation)
		conversations.POST("/:sid/end", h.Conversation.EndConversation)

		// 语音实时通道
		conversations.GET("/:sid/voice", h.Voice.Connect)
	}

	// 上下文缓存
	contextCache := v1.Group("/context-cache")
	{
		contextCache.GET("", h.ContextCache.GetContext)
		contextCache.PUT("", h.ContextCache.SetContext)
		contextCache.DELETE("", h.ContextCache.InvalidateContext)
	}

	// 问题追踪
	questions := v1.Group("/questions")
	{
		questions.POST("/check", h.Question.CheckDuplicate)
		questions.PUT("/:qid/quality", h.Question.UpdateQuality)
	}
	v1.GET("/books/:bid/questions/stats", h.Question.GetStats)
}
