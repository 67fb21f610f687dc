package handler

import (
	"github.com/gin-gonic/gin"

	"mindbridge-go/internal/middleware"
	"mindbridge-go/internal/repository"
	"mindbridge-go/internal/service"
	"mindbridge-go/pkg/token"
)

// Services 是路由需要的全部依赖。
type Services struct {
	User        service.UserService
	Appointment service.AppointmentService
	Chat        service.ChatService
	Screening   service.ScreeningService
	Resource    service.ResourceService
	Admin       service.AdminService
	PeerSupport service.PeerSupportService
	JWT         *token.JWTManager
	Blacklist   repository.TokenBlacklist
}

// RegisterRoutes 在 /api/v1 下注册所有路由。
func RegisterRoutes(r *gin.Engine, s Services) {
	userHandler := NewUserHandler(s.User)
	authHandler := NewAuthHandler(s.User)
	screeningHandler := NewScreeningHandler(s.Screening)
	appointmentHandler := NewAppointmentHandler(s.Appointment)
	chatHandler := NewChatHandler(s.Chat, s.User, s.JWT, s.Blacklist)
	resourceHandler := NewResourceHandler(s.Resource)
	adminHandler := NewAdminHandler(s.Admin)
	peerHandler := NewPeerSupportHandler(s.PeerSupport)

	authed := middleware.AuthMiddleware(s.JWT, s.User, s.Blacklist)
	staffOnly := middleware.StaffMiddleware()

	apiV1 := r.Group("/api/v1")
	{
		auth := apiV1.Group("/auth")
		{
			auth.POST("/refreshToken", authHandler.RefreshToken)
			auth.PUT("/profile", authed, userHandler.UpdateProfile)
		}

		users := apiV1.Group("/users")
		{
			// 无需认证的路由 (公开访问)
			users.POST("/register", userHandler.Register)
			users.POST("/login", userHandler.Login)

			users.GET("/me", authed, userHandler.GetProfile)
			users.POST("/logout", authed, userHandler.Logout)
		}

		screening := apiV1.Group("/screening")
		{
			screening.GET("/questions/:type", screeningHandler.Questions)
			screening.POST("/submit", authed, screeningHandler.Submit)
			screening.GET("/history/:userId", authed, screeningHandler.History)
			screening.GET("/stats", authed, staffOnly, screeningHandler.Stats)
		}

		appointments := apiV1.Group("/appointments")
		appointments.Use(authed)
		{
			appointments.GET("/counselors", appointmentHandler.ListCounselors)
			appointments.GET("/availability/:counselorId", appointmentHandler.Availability)
			appointments.POST("/book", appointmentHandler.Book)
			appointments.GET("/student/:studentId", appointmentHandler.ListForStudent)
			appointments.GET("/counselor/:counselorId", appointmentHandler.ListForCounselor)
			appointments.GET("/:id", appointmentHandler.Get)
			appointments.PUT("/:id/cancel", appointmentHandler.Cancel)
			appointments.PUT("/:id/reschedule", appointmentHandler.Reschedule)
			appointments.PUT("/:id/status", appointmentHandler.UpdateStatus)
			appointments.POST("/:id/feedback", appointmentHandler.SubmitFeedback)
		}

		chat := apiV1.Group("/chat")
		{
			// 浏览器的 WebSocket 无法携带 Authorization 头，token 放在路径中
			chat.GET("/ws/:token", chatHandler.Stream)

			chat.POST("/start", authed, chatHandler.Start)
			chat.POST("/message", authed, chatHandler.SendMessage)
			chat.GET("/history/:sessionId", authed, chatHandler.History)
			chat.GET("/sessions/:userId", authed, chatHandler.ListSessions)
			chat.POST("/escalate", authed, chatHandler.Escalate)
			chat.POST("/resolve", authed, chatHandler.Resolve)
			chat.POST("/archive", authed, staffOnly, chatHandler.Archive)
		}

		resources := apiV1.Group("/resources")
		{
			resources.GET("", resourceHandler.List)
			resources.GET("/search", resourceHandler.Search)
			resources.GET("/:id", resourceHandler.Get)
			resources.GET("/:id/download", authed, resourceHandler.Download)
			resources.POST("/:id/rate", authed, resourceHandler.Rate)
			resources.POST("", authed, staffOnly, resourceHandler.Create)
			resources.POST("/:id/attachment", authed, staffOnly, resourceHandler.UploadAttachment)
		}

		peer := apiV1.Group("/peer-support")
		peer.Use(authed)
		{
			peer.GET("/posts", peerHandler.ListPosts)
			peer.POST("/posts", peerHandler.CreatePost)
			peer.GET("/posts/:id", peerHandler.GetPost)
			peer.POST("/posts/:id/comments", peerHandler.AddComment)
			peer.POST("/posts/:id/like", peerHandler.LikePost)
			peer.PUT("/posts/:id/moderate", staffOnly, peerHandler.ModeratePost)
			peer.PUT("/posts/:id/comments/:commentId/moderate", staffOnly, peerHandler.ModerateComment)
			peer.GET("/groups", peerHandler.ListGroups)
			peer.POST("/groups", peerHandler.CreateGroup)
			peer.POST("/groups/:id/join", peerHandler.JoinGroup)
			peer.POST("/groups/:id/leave", peerHandler.LeaveGroup)
			peer.GET("/user/:userId/posts", peerHandler.UserPosts)
			peer.GET("/user/:userId/groups", peerHandler.UserGroups)
		}

		// 管理员路由组，需要同时通过认证和管理员授权两个中间件
		admin := apiV1.Group("/admin")
		admin.Use(authed, middleware.AdminAuthMiddleware())
		{
			admin.GET("/dashboard/stats", adminHandler.DashboardStats)
			admin.GET("/users", adminHandler.ListUsers)
			admin.PUT("/users/:id/status", adminHandler.SetUserStatus)
		}
	}
}
