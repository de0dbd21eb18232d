// Package webapi provides a web API for checking comments and reporting spam/ham with Akismet.
// The server is the hosting environment of the akismet client: it takes the client ip, user agent
// and referrer of each incoming request and passes them to the client made for this request.
package webapi

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/didip/tollbooth/v8"
	"github.com/didip/tollbooth/v8/limiter"
	"github.com/go-pkgz/lgr"
	"github.com/go-pkgz/rest"
	"github.com/go-pkgz/routegroup"
	json "github.com/goccy/go-json"

	"github.com/umputun/akismet-check/app/storage"
	"github.com/umputun/akismet-check/lib/akismet"
	"github.com/umputun/akismet-check/lib/spamcheck"
)

//go:generate moq --out mocks/recorder.go --pkg mocks --with-resets --skip-ensure . Recorder

// Server is a web API server.
type Server struct {
	Config
	history *spamcheck.LastRequests
	metrics *metrics
}

// Config defines server parameters
type Config struct {
	Version     string           // version to show in /ping
	ListenAddr  string           // listen address
	Website     string           // site url sent as "blog"
	APIKey      string           // akismet api key
	ClientOpts  []akismet.Option // extra options for each akismet client
	Recorder    Recorder         // storage of performed checks, optional
	Logger      ResultLogger     // log of performed checks, optional
	HistorySize int              // number of recent results kept in memory
	RateLimit   float64          // max requests per second per client ip, 0 disables
	AuthPasswd  string           // basic auth password for user "akismet-check", no auth if empty
	TrustProxy  bool             // take client ip from X-Forwarded-For and similar headers set by a reverse proxy
}

// Recorder is a storage of performed checks
type Recorder interface {
	Write(ctx context.Context, entry storage.CheckInfo) error
	Read(ctx context.Context, limit int) ([]storage.CheckInfo, error)
}

// ResultLogger logs results of the requests made to the service
type ResultLogger interface {
	Save(req spamcheck.Request, resp spamcheck.Response)
}

// ResultLoggerFunc is a function adapter for ResultLogger
type ResultLoggerFunc func(req spamcheck.Request, resp spamcheck.Response)

// Save calls the function
func (f ResultLoggerFunc) Save(req spamcheck.Request, resp spamcheck.Response) { f(req, resp) }

// setters maps request fields to client setters, blog is not settable
var setters = map[string]func(*akismet.Client, string) *akismet.Client{
	akismet.FieldUserIP:                 (*akismet.Client).SetUserIP,
	akismet.FieldUserAgent:              (*akismet.Client).SetUserAgent,
	akismet.FieldReferrer:               (*akismet.Client).SetReferrer,
	akismet.FieldCommentAuthor:          (*akismet.Client).SetCommentAuthor,
	akismet.FieldCommentAuthorEmail:     (*akismet.Client).SetCommentAuthorEmail,
	akismet.FieldCommentAuthorURL:       (*akismet.Client).SetCommentAuthorURL,
	akismet.FieldCommentType:            (*akismet.Client).SetCommentType,
	akismet.FieldCommentContent:         (*akismet.Client).SetCommentContent,
	akismet.FieldPermalink:              (*akismet.Client).SetPermalink,
	akismet.FieldCommentDateGmt:         (*akismet.Client).SetCommentDateGmt,
	akismet.FieldCommentPostModifiedGmt: (*akismet.Client).SetCommentPostModifiedGmt,
	akismet.FieldBlogLang:               (*akismet.Client).SetBlogLang,
	akismet.FieldBlogCharset:            (*akismet.Client).SetBlogCharset,
	akismet.FieldUserRole:               (*akismet.Client).SetUserRole,
	akismet.FieldIsTest:                 (*akismet.Client).SetIsTest,
}

// NewServer creates a new web API server.
func NewServer(config Config) *Server {
	if config.HistorySize <= 0 {
		config.HistorySize = 100
	}
	return &Server{Config: config, history: spamcheck.NewLastRequests(config.HistorySize), metrics: newMetrics()}
}

// Run starts server and accepts requests checking comments for spam.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{Addr: s.ListenAddr, Handler: s.router(), ReadTimeout: 5 * time.Second,
		WriteTimeout: 30 * time.Second}
	go func() {
		<-ctx.Done()
		if err := srv.Shutdown(context.Background()); err != nil {
			log.Printf("[WARN] failed to shutdown webapi server: %v", err)
		} else {
			log.Printf("[INFO] webapi server stopped")
		}
	}()

	log.Printf("[INFO] start webapi server on %s", s.ListenAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to run server: %w", err)
	}
	return nil
}

func (s *Server) router() http.Handler {
	router := routegroup.New(http.NewServeMux())
	router.Use(rest.Recoverer(lgr.Default()))
	router.Use(rest.Throttle(1000))
	router.Use(rest.AppInfo("akismet-check", "umputun", s.Version), rest.Ping)
	if s.RateLimit > 0 {
		lmt := tollbooth.NewLimiter(s.RateLimit, nil)
		lmt.SetIPLookup(limiter.IPLookup{Name: "RemoteAddr"})
		router.Use(tollbooth.HTTPMiddleware(lmt))
	}
	router.Use(rest.SizeLimit(1024 * 1024)) // 1M max request size

	api := router.Group()
	if s.AuthPasswd != "" {
		log.Printf("[INFO] basic auth enabled for webapi server")
		api.Use(rest.BasicAuthWithUserPasswd("akismet-check", s.AuthPasswd))
	} else {
		log.Printf("[WARN] basic auth disabled, access to webapi is not protected")
	}

	api.HandleFunc("POST /check", s.opHandler(akismet.OpCommentCheck))    // check a comment
	api.HandleFunc("POST /submit/spam", s.opHandler(akismet.OpSubmitSpam)) // report missed spam
	api.HandleFunc("POST /submit/ham", s.opHandler(akismet.OpSubmitHam))   // report false positive
	api.HandleFunc("GET /history", s.historyHandler)                        // recent results, in memory
	api.Handle("GET /metrics", s.metrics.handler())                          // prometheus metrics
	if s.Recorder != nil {
		api.HandleFunc("GET /checks", s.checksHandler) // stored results
	}
	return router
}

// opHandler handles POST /check and /submit/{spam,ham} requests. The body is a json object with
// akismet field names as keys, i.e. {"comment_author": "John", "comment_content": "hello"}.
// user_ip, user_agent and referrer default to the values of the incoming request.
func (s *Server) opHandler(op string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		fields := map[string]string{}
		if err := json.NewDecoder(r.Body).Decode(&fields); err != nil {
			rest.SendErrorJSON(w, r, lgr.Default(), http.StatusBadRequest, err, "can't decode request")
			return
		}
		for k := range fields {
			if _, ok := setters[k]; !ok {
				rest.SendErrorJSON(w, r, lgr.Default(), http.StatusBadRequest,
					fmt.Errorf("unknown field %q", k), "unknown field "+k)
				return
			}
		}

		ambient := akismet.AmbientFromRequest(r)
		if s.TrustProxy {
			ambient = akismet.AmbientFromProxiedRequest(r)
		}
		opts := append([]akismet.Option{akismet.WithAmbient(ambient)}, s.ClientOpts...)
		client, err := akismet.New(r.Context(), s.Website, s.APIKey, opts...)
		if err != nil {
			resp := spamcheck.Response{Name: "akismet", Details: "verify-key failed", Error: err}
			s.metrics.observe(op, resp, start)
			s.save(r.Context(), spamcheck.Request{Op: op, Website: s.Website, Fields: fields}, resp)
			rest.SendErrorJSON(w, r, lgr.Default(), errorStatus(err), err, "can't make akismet client")
			return
		}
		for k, v := range fields {
			setters[k](client, v)
		}

		req := spamcheck.Request{Op: op, Website: client.Website(), Fields: client.Fields()}
		resp := spamcheck.Response{Name: "akismet", Details: op}
		var result bool
		switch op {
		case akismet.OpCommentCheck:
			result, err = client.CheckIsSpam(r.Context())
			resp.Spam = result
		case akismet.OpSubmitSpam:
			result, err = client.ReportSpam(r.Context())
			resp.Spam, resp.Accepted = true, result
		case akismet.OpSubmitHam:
			result, err = client.ReportHam(r.Context())
			resp.Accepted = result
		}
		resp.Error = err
		s.metrics.observe(op, resp, start)
		s.save(r.Context(), req, resp)

		if err != nil {
			rest.SendErrorJSON(w, r, lgr.Default(), errorStatus(err), err, "akismet "+op+" failed")
			return
		}
		if op == akismet.OpCommentCheck {
			rest.RenderJSON(w, rest.JSON{"spam": result})
			return
		}
		rest.RenderJSON(w, rest.JSON{"accepted": result})
	}
}

// historyHandler handles GET /history?limit=N request, returns recent results oldest first
func (s *Server) historyHandler(w http.ResponseWriter, r *http.Request) {
	rest.RenderJSON(w, s.history.Last(limitParam(r, s.history.Size())))
}

// checksHandler handles GET /checks?limit=N request, returns stored results newest first
func (s *Server) checksHandler(w http.ResponseWriter, r *http.Request) {
	checks, err := s.Recorder.Read(r.Context(), limitParam(r, 100))
	if err != nil {
		rest.SendErrorJSON(w, r, lgr.Default(), http.StatusInternalServerError, err, "can't read checks")
		return
	}
	rest.RenderJSON(w, checks)
}

// save keeps the result in history, storage and log
func (s *Server) save(ctx context.Context, req spamcheck.Request, resp spamcheck.Response) {
	s.history.Push(spamcheck.Entry{Request: req, Response: resp, Time: time.Now()})
	if s.Logger != nil {
		s.Logger.Save(req, resp)
	}
	if s.Recorder == nil {
		return
	}
	entry := storage.NewCheckInfo(req, resp)
	if err := s.Recorder.Write(ctx, entry); err != nil {
		log.Printf("[WARN] can't save check result, %v", err)
	}
}

func errorStatus(err error) int {
	var te *akismet.TransportError
	switch {
	case errors.Is(err, akismet.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.As(err, &te):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func limitParam(r *http.Request, def int) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 {
		return def
	}
	return limit
}
