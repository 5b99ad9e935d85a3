package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/storeadmin/internal/audit"
	auditdomain "github.com/smallbiznis/storeadmin/internal/audit/domain"
	"github.com/smallbiznis/storeadmin/internal/authorization"
	"github.com/smallbiznis/storeadmin/internal/blob"
	"github.com/smallbiznis/storeadmin/internal/chatbot"
	"github.com/smallbiznis/storeadmin/internal/config"
	"github.com/smallbiznis/storeadmin/internal/genai"
	"github.com/smallbiznis/storeadmin/internal/observability"
	obsmiddleware "github.com/smallbiznis/storeadmin/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/storeadmin/internal/observability/metrics"
	obstracing "github.com/smallbiznis/storeadmin/internal/observability/tracing"
	"github.com/smallbiznis/storeadmin/internal/providers"
	"github.com/smallbiznis/storeadmin/internal/records"
	"github.com/smallbiznis/storeadmin/internal/sales"
	salesdomain "github.com/smallbiznis/storeadmin/internal/sales/domain"
	"github.com/smallbiznis/storeadmin/internal/serviceorder"
	serviceorderdomain "github.com/smallbiznis/storeadmin/internal/serviceorder/domain"
	"github.com/smallbiznis/storeadmin/internal/tenant"
	tenantdomain "github.com/smallbiznis/storeadmin/internal/tenant/domain"
	"github.com/smallbiznis/storeadmin/internal/wizard"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	fx.Provide(registerGin),
	authorization.Module,
	audit.Module,
	tenant.Module,
	genai.Module,
	blob.Module,
	providers.Module,
	serviceorder.Module,
	sales.Module,
	chatbot.Module,
	wizard.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware("/health", "/metrics"))
	r.Use(httpMetrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	addr := cfg.HTTPAddr
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", addr))
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine        *gin.Engine
	cfg           config.Config
	log           *zap.Logger
	registry      *records.Registry
	tenantSvc     tenantdomain.Service
	authzSvc      authorization.Service
	auditSvc      auditdomain.Service
	serviceOrders serviceorderdomain.Service
	sales         salesdomain.Service
	chatbot       *chatbot.Service
	wizard        *wizard.Service
	uploader      blob.Uploader
	wizardCfg     *config.WizardConfigHolder
	liveHeartbeat time.Duration
}

type ServerParams struct {
	fx.In

	Gin           *gin.Engine
	Cfg           config.Config
	Log           *zap.Logger
	Registry      *records.Registry
	TenantSvc     tenantdomain.Service
	AuthzSvc      authorization.Service
	AuditSvc      auditdomain.Service
	ServiceOrders serviceorderdomain.Service
	Sales         salesdomain.Service
	Chatbot       *chatbot.Service
	Wizard        *wizard.Service
	Uploader      blob.Uploader `optional:"true"`
	WizardConfig  *config.WizardConfigHolder
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:        p.Gin,
		cfg:           p.Cfg,
		log:           p.Log.Named("http.server"),
		registry:      p.Registry,
		tenantSvc:     p.TenantSvc,
		authzSvc:      p.AuthzSvc,
		auditSvc:      p.AuditSvc,
		serviceOrders: p.ServiceOrders,
		sales:         p.Sales,
		chatbot:       p.Chatbot,
		wizard:        p.Wizard,
		uploader:      p.Uploader,
		wizardCfg:     p.WizardConfig,
		liveHeartbeat: 15 * time.Second,
	}

	svc.registerAdminRoutes()
	svc.registerStorefrontRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/admin")
	admin.Use(s.ActorRequired())

	admin.GET("/me", s.Me)

	// -------- Tenants --------
	admin.GET("/tenants", s.authorizeGlobal(authorization.ObjectTenant, authorization.ActionTenantList), s.ListTenants)
	admin.POST("/tenants", s.authorizeGlobal(authorization.ObjectTenant, authorization.ActionTenantCreate), s.CreateTenant)

	store := admin.Group("/stores/:storeId")
	store.Use(s.StoreContext())

	store.GET("", s.authorizeStore(authorization.ObjectTenant, authorization.ActionTenantView), s.GetTenant)
	store.DELETE("", s.authorizeGlobal(authorization.ObjectTenant, authorization.ActionTenantDelete), s.DeleteTenant)
	store.POST("/admins", s.authorizeStore(authorization.ObjectTenant, authorization.ActionTenantAdmins), s.AddTenantAdmin)
	store.DELETE("/admins/:email", s.authorizeStore(authorization.ObjectTenant, authorization.ActionTenantAdmins), s.RemoveTenantAdmin)
	store.PUT("/domain", s.authorizeStore(authorization.ObjectTenant, authorization.ActionTenantDomain), s.SetTenantDomain)
	store.DELETE("/domain", s.authorizeStore(authorization.ObjectTenant, authorization.ActionTenantDomain), s.RemoveTenantDomain)
	store.POST("/migrate", s.authorizeStore(authorization.ObjectTenant, authorization.ActionTenantMigrate), s.MigrateLegacy)

	// -------- Records --------
	s.registerRecordRoutes(store.Group("/records"))

	// -------- Service Orders --------
	store.POST("/service-orders", s.authorizeStore(authorization.ObjectRecord, authorization.ActionRecordCreate), s.CreateServiceOrder)
	store.GET("/service-orders/:id", s.authorizeStore(authorization.ObjectRecord, authorization.ActionRecordView), s.GetServiceOrder)
	store.POST("/service-orders/:id/status", s.authorizeStore(authorization.ObjectRecord, authorization.ActionRecordUpdate), s.UpdateServiceOrderStatus)
	store.GET("/service-orders/:id/receipt", s.authorizeStore(authorization.ObjectRecord, authorization.ActionRecordView), s.ServiceOrderReceipt)

	// -------- Sales --------
	store.POST("/sales", s.authorizeStore(authorization.ObjectRecord, authorization.ActionRecordCreate), s.CreateSale)
	store.GET("/sales/:id", s.authorizeStore(authorization.ObjectRecord, authorization.ActionRecordView), s.GetSale)
	store.POST("/sales/:id/void", s.authorizeStore(authorization.ObjectRecord, authorization.ActionRecordDelete), s.VoidSale)
	store.GET("/sales/:id/receipt", s.authorizeStore(authorization.ObjectRecord, authorization.ActionRecordView), s.SaleReceipt)

	// -------- Chatbot --------
	store.GET("/chatbot", s.authorizeStore(authorization.ObjectChatbot, authorization.ActionChatbotManage), s.GetChatbot)
	store.PUT("/chatbot", s.authorizeStore(authorization.ObjectChatbot, authorization.ActionChatbotManage), s.SaveChatbot)
	store.GET("/chatbot/versions", s.authorizeStore(authorization.ObjectChatbot, authorization.ActionChatbotManage), s.ListChatbotVersions)
	store.POST("/chatbot/versions/:version/restore", s.authorizeStore(authorization.ObjectChatbot, authorization.ActionChatbotManage), s.RestoreChatbotVersion)

	// -------- Wizards --------
	store.POST("/wizards", s.authorizeStore(authorization.ObjectWizard, authorization.ActionWizardRun), s.StartWizard)
	store.GET("/wizards/:id", s.authorizeStore(authorization.ObjectWizard, authorization.ActionWizardRun), s.GetWizard)
	store.PUT("/wizards/:id/input", s.authorizeStore(authorization.ObjectWizard, authorization.ActionWizardRun), s.SetWizardInput)
	store.POST("/wizards/:id/analyze", s.authorizeStore(authorization.ObjectWizard, authorization.ActionWizardRun), s.AnalyzeWizard)
	store.PATCH("/wizards/:id/drafts/:key", s.authorizeStore(authorization.ObjectWizard, authorization.ActionWizardRun), s.UpdateWizardDraft)
	store.POST("/wizards/:id/apply", s.authorizeStore(authorization.ObjectWizard, authorization.ActionWizardRun), s.ApplyWizard)
	store.POST("/wizards/:id/cancel", s.authorizeStore(authorization.ObjectWizard, authorization.ActionWizardRun), s.CancelWizard)

	// -------- Uploads, live, audit --------
	store.POST("/uploads", s.authorizeStore(authorization.ObjectUpload, authorization.ActionUploadCreate), s.Upload)
	store.GET("/live", s.authorizeStore(authorization.ObjectRecord, authorization.ActionRecordView), s.StreamLive)
	store.GET("/audit-logs", s.authorizeStore(authorization.ObjectAuditLog, authorization.ActionAuditLogView), s.ListAuditLogs)
}

func (s *Server) registerStorefrontRoutes() {
	sf := s.engine.Group("/storefront")
	sf.Use(s.StorefrontStore())

	sf.GET("/store", s.StorefrontInfo)
	sf.GET("/products", s.StorefrontProducts)
	sf.GET("/products/:id", s.StorefrontProduct)
	sf.GET("/categories", s.StorefrontCategories)
	sf.GET("/faq", s.StorefrontFAQ)
	sf.GET("/chatbot", s.StorefrontChatbot)
}
