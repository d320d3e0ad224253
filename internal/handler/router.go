package handler

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"digistore/internal/imagehost"
	"digistore/internal/security"
	"digistore/internal/service"
)

type RouterConfig struct {
	Catalog      *service.CatalogService
	Checkout     *service.CheckoutService
	Reconciler   *service.ReconcilerService
	Access       *service.AccessService
	Newsletter   *service.NewsletterService
	Uploads      *service.UploadService
	Gate         *service.AdminGate
	SecureCookie bool
	// TrustedProxies may set the client address through forwarding headers.
	TrustedProxies []string
	// UploadDir, when set, is served under /uploads/.
	UploadDir string
}

func NewRouter(logger *logrus.Logger, cfg RouterConfig) *mux.Router {
	r := mux.NewRouter()
	r.Use(ClientAddress(security.NewTrustedProxies(cfg.TrustedProxies)))
	r.Use(RequestLogger(logger))
	admin := AdminOnly(cfg.Gate, logger)

	r.Handle("/healthz", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, logger, http.StatusOK, map[string]string{"status": "ok"})
	}))

	r.Handle("/products", NewProductsHandler(logger, cfg.Catalog, cfg.Gate))
	r.Handle("/products/{id}", NewProductHandler(logger, cfg.Catalog, cfg.Gate))

	r.Handle("/checkout", NewCheckoutHandler(logger, cfg.Checkout))
	r.Handle("/checkout/verify", NewCheckoutVerifyHandler(logger, cfg.Checkout))
	r.Handle("/webhooks/payment", NewPurchaseWebhookHandler(logger, cfg.Reconciler))
	r.Handle("/repository-access", NewRepositoryAccessHandler(logger, cfg.Access))

	r.Handle("/newsletter/subscribe", NewSubscribeHandler(logger, cfg.Newsletter, cfg.Gate))
	r.Handle("/newsletter/send", admin(NewNewsletterSendHandler(logger, cfg.Newsletter)))
	r.Handle("/newsletter/export", admin(NewNewsletterExportHandler(logger, cfg.Newsletter)))

	r.Handle("/admin/auth", NewAdminAuthHandler(logger, cfg.Gate, cfg.SecureCookie))
	r.Handle("/upload", admin(NewUploadHandler(logger, cfg.Uploads)))

	if cfg.UploadDir != "" {
		r.PathPrefix(imagehost.LocalURLPrefix).Handler(
			http.StripPrefix(imagehost.LocalURLPrefix, http.FileServer(http.Dir(cfg.UploadDir))))
	}
	return r
}
