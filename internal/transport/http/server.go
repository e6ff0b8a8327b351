package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httplog/v2"

	"quiz-exercise-service/internal/app"
)

// participantHeader carries the authenticated participant id set by the gateway in front of the service.
const participantHeader = "X-Participant-ID"

type Server struct {
	service *app.QuizService
	ws      *WSHandler
	router  *chi.Mux
}

func NewServer(service *app.QuizService, logger *httplog.Logger) *Server {
	router := chi.NewRouter()
	router.Use(httplog.RequestLogger(logger))
	router.Use(middleware.Recoverer)

	server := &Server{
		service: service,
		ws:      NewWSHandler(service, logger.Logger),
		router:  router,
	}
	server.routes()
	return server
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	r := s.router
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	r.Get("/ws", s.ws.ServeWS)

	r.Route("/quiz-exercises/{exerciseID}", func(r chi.Router) {
		r.Put("/submissions/live", s.saveLive)
		r.Post("/submissions/live", s.submitLive)
		r.Post("/submissions/preview", s.submitPreview)
		r.Post("/submissions/practice", s.submitPractice)

		r.Post("/join", s.join)
		r.Get("/batches", s.listBatches)
		r.Post("/batches", s.addBatch)
		r.Post("/start-now", s.startNow)
		r.Post("/end", s.endQuiz)
		r.Get("/state", s.exerciseState)

		r.Get("/statistics", s.statistics)
		r.Post("/statistics/recalculate", s.recalculate)
		r.Post("/re-evaluate", s.reEvaluate)
	})
	r.Post("/batches/{batchID}/start", s.startBatch)

	r.Route("/admin", func(r chi.Router) {
		r.Post("/process", s.processOnce)
		r.Delete("/cache", s.clearAll)
		r.Delete("/cache/{exerciseID}", s.clearExercise)
	})
}
