package handler

import (
	"net/http"
	"sync"

	"roomkey/config"
	"roomkey/di"
	"roomkey/shared/logger"
	"roomkey/shared/timezone"
)

var (
	app  *di.App
	once sync.Once
)

// Handler serves one request on a serverless runtime. The dependency graph is built on the first call and
// reused while the instance stays warm; scheduled jobs and the task worker do not run here.
func Handler(w http.ResponseWriter, r *http.Request) {
	r.RequestURI = r.URL.String()

	once.Do(func() {
		cfg := config.Get()

		logger.InitLogger(cfg)
		timezone.Init(cfg.App.Timezone)

		app = di.InitializeApp()
	})

	app.HTTP.ServeHTTP(w, r)
}
