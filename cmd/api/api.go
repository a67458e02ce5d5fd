package api

import (
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/onvm-app/onvm-server/service/community"
	"github.com/onvm-app/onvm-server/service/live"
	"github.com/onvm-app/onvm-server/service/messaging"
	"github.com/onvm-app/onvm-server/service/notification"
	"github.com/onvm-app/onvm-server/service/publication"
	"github.com/onvm-app/onvm-server/service/social"
	"github.com/onvm-app/onvm-server/service/story"
	"github.com/onvm-app/onvm-server/service/user"
	"github.com/onvm-app/onvm-server/service/wallet"
)

type APIServer struct {
	address string
	db      *gorm.DB
}

func NewApiServer(address string, db *gorm.DB) *APIServer {
	return &APIServer{
		address: address,
		db:      db,
	}
}

func (s *APIServer) Run() error {
	router := mux.NewRouter()
	subrouter := router.PathPrefix("/api/v1").Subrouter()

	metrics := InitMetrics()
	subrouter.Use(metrics.Middleware)

	dispatcher := notification.NewDispatcher(s.db)

	user.NewUserHandler(s.db).RegisterRoutes(subrouter)
	social.NewSocialHandler(s.db, dispatcher).RegisterRoutes(subrouter)
	publication.NewPostHandler(s.db, dispatcher).RegisterRoutes(subrouter)
	notification.NewNotificationHandler(s.db, dispatcher).RegisterRoutes(subrouter)
	messaging.NewMessagingHandler(s.db).RegisterRoutes(subrouter)
	wallet.NewWalletHandler(s.db).RegisterRoutes(subrouter)
	community.NewCommunityHandler(s.db).RegisterRoutes(subrouter)
	story.NewStoryHandler(s.db).RegisterRoutes(subrouter)
	live.NewLiveHandler().RegisterRoutes(subrouter)

	router.Handle("/metrics", promhttp.Handler()).Methods("GET")
	router.PathPrefix("/uploads/").Handler(
		http.StripPrefix("/uploads/", http.FileServer(http.Dir("uploads"))))

	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{"*"}),
		handlers.AllowedMethods([]string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
	)

	server := &http.Server{
		Addr:         s.address,
		Handler:      cors(handlers.RecoveryHandler()(router)),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	logrus.WithField("address", s.address).Info("server listening")
	return server.ListenAndServe()
}
