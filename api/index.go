package handler

import (
	"net/http"

	"greencoin-backend/bootstrap"

	"github.com/gofiber/fiber/v2/middleware/adaptor"
)

var app *bootstrap.App

func init() {
	var err error
	app, err = bootstrap.New()
	if err != nil {
		panic("app create: " + err.Error())
	}
}

// Handler is the Vercel serverless entry point. All requests are rewritten here.
// Scheduled jobs do not run in this mode; the reconcile pass needs the long-running server.
func Handler(w http.ResponseWriter, r *http.Request) {
	r.RequestURI = r.URL.String()
	adaptor.FiberApp(app.Fiber)(w, r)
}
