package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/go-pkgz/lgr"
	json "github.com/goccy/go-json"
	"github.com/hashicorp/go-multierror"
	"github.com/jessevdk/go-flags"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/umputun/akismet-check/app/storage"
	"github.com/umputun/akismet-check/app/storage/engine"
	"github.com/umputun/akismet-check/app/webapi"
	"github.com/umputun/akismet-check/lib/akismet"
	"github.com/umputun/akismet-check/lib/spamcheck"
)

type options struct {
	Website string `long:"website" env:"WEBSITE" required:"true" description:"site url the comments belong to"`
	Key     string `long:"key" env:"KEY" required:"true" description:"akismet api key"`
	Mode    string `long:"mode" env:"MODE" choice:"check" choice:"spam" choice:"ham" default:"check" description:"check comment or report it as spam/ham"`
	APIRoot string `long:"api-root" env:"API_ROOT" description:"akismet api root, for proxies and tests"`

	Comment struct {
		Author          string `long:"author" env:"AUTHOR" description:"comment author name"`
		Email           string `long:"email" env:"EMAIL" description:"comment author email"`
		URL             string `long:"url" env:"URL" description:"comment author url"`
		Content         string `long:"content" env:"CONTENT" description:"comment text"`
		Type            string `long:"type" env:"TYPE" description:"comment type, i.e. comment, reply, forum-post"`
		Permalink       string `long:"permalink" env:"PERMALINK" description:"url of the commented page"`
		IP              string `long:"ip" env:"IP" description:"commenter ip"`
		UserAgent       string `long:"user-agent" env:"USER_AGENT" description:"commenter user agent"`
		Referrer        string `long:"referrer" env:"REFERRER" description:"commenter referrer"`
		Lang            string `long:"lang" env:"LANG" description:"site language, i.e. en, fr_ca"`
		Charset         string `long:"charset" env:"CHARSET" description:"site charset, i.e. UTF-8"`
		Role            string `long:"role" env:"ROLE" description:"commenter role, administrator is never spam"`
		Test            string `long:"test" env:"TEST" description:"set to true for test queries"`
		DateGmt         string `long:"date-gmt" env:"DATE_GMT" description:"comment creation time, ISO 8601"`
		PostModifiedGmt string `long:"post-modified-gmt" env:"POST_MODIFIED_GMT" description:"commented post modification time, ISO 8601"`
	} `group:"comment" env-namespace:"COMMENT"`

	Server struct {
		Enabled     bool    `long:"enabled" env:"ENABLED" description:"run web api server instead of a single request"`
		ListenAddr  string  `long:"listen" env:"LISTEN" default:":8080" description:"listen address"`
		AuthPasswd  string  `long:"auth" env:"AUTH" description:"basic auth password for user akismet-check"`
		RateLimit   float64 `long:"rate" env:"RATE" default:"10" description:"max requests per second per client, 0 to disable"`
		HistorySize int     `long:"history" env:"HISTORY" default:"100" description:"number of recent results kept in memory"`
		TrustProxy  bool    `long:"trust-proxy" env:"TRUST_PROXY" description:"take client ip from proxy headers, only behind a reverse proxy"`
	} `group:"server" namespace:"server" env-namespace:"SERVER"`

	DB  string `long:"db" env:"DB" description:"database url, sqlite file or postgres://..., results not stored if empty"`
	GID string `long:"gid" env:"GID" description:"group id in the database, website if empty"`

	Logger struct {
		Enabled    bool   `long:"enabled" env:"ENABLED" description:"enable rotated results log"`
		FileName   string `long:"file" env:"FILE" default:"akismet-check.log" description:"location of results log"`
		MaxSize    string `long:"max-size" env:"MAX_SIZE" default:"100M" description:"maximum size before it gets rotated"`
		MaxBackups int    `long:"max-backups" env:"MAX_BACKUPS" default:"10" description:"maximum number of old log files to retain"`
	} `group:"logger" namespace:"logger" env-namespace:"LOGGER"`

	Dbg bool `long:"dbg" env:"DEBUG" description:"debug mode"`
}

// recorder stores results, implemented by storage.Checks
type recorder interface {
	Write(ctx context.Context, entry storage.CheckInfo) error
	Read(ctx context.Context, limit int) ([]storage.CheckInfo, error)
	Close() error
}

var revision = "local"

func main() {
	fmt.Fprintf(os.Stderr, "akismet-check %s\n", revision)
	var opts options
	p := flags.NewParser(&opts, flags.PrintErrors|flags.PassDoubleDash|flags.HelpFlag)
	if _, err := p.Parse(); err != nil {
		var flagsErr *flags.Error
		if !errors.As(err, &flagsErr) || flagsErr.Type != flags.ErrHelp {
			log.Printf("[ERROR] cli error: %v", err)
		}
		os.Exit(2)
	}

	setupLog(opts.Dbg, opts.Key, opts.Server.AuthPasswd)
	log.Printf("[DEBUG] options: %+v", opts)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		// catch signal and invoke graceful termination
		stop := make(chan os.Signal, 1)
		signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
		<-stop
		log.Printf("[WARN] interrupt signal")
		cancel()
	}()

	if err := execute(ctx, opts, os.Stdout); err != nil {
		log.Printf("[ERROR] %v", err)
		os.Exit(1)
	}
}

func execute(ctx context.Context, opts options, out io.Writer) (err error) {
	if err = validateOptions(opts); err != nil {
		return err
	}

	logWr, err := makeResultLogWriter(opts)
	if err != nil {
		return fmt.Errorf("can't make results log writer, %w", err)
	}
	defer func() {
		if cerr := logWr.Close(); cerr != nil {
			err = multierror.Append(err, fmt.Errorf("can't close results log, %w", cerr)).ErrorOrNil()
		}
	}()
	resultLogger := makeResultLogger(logWr)

	rec, err := makeRecorder(ctx, opts)
	if err != nil {
		return err
	}
	if rec != nil {
		defer func() {
			if cerr := rec.Close(); cerr != nil {
				err = multierror.Append(err, fmt.Errorf("can't close db, %w", cerr)).ErrorOrNil()
			}
		}()
	}

	clientOpts := makeClientOptions(opts)

	if opts.Server.Enabled {
		srv := webapi.NewServer(webapi.Config{
			Version:     revision,
			ListenAddr:  opts.Server.ListenAddr,
			Website:     opts.Website,
			APIKey:      opts.Key,
			ClientOpts:  clientOpts,
			Logger:      resultLogger,
			HistorySize: opts.Server.HistorySize,
			RateLimit:   opts.Server.RateLimit,
			AuthPasswd:  opts.Server.AuthPasswd,
			TrustProxy:  opts.Server.TrustProxy,
		})
		if rec != nil {
			srv.Recorder = rec // keep webapi.Recorder nil if no storage
		}
		if err := srv.Run(ctx); err != nil {
			return fmt.Errorf("web api server failed, %w", err)
		}
		return nil
	}

	return runOnce(ctx, opts, clientOpts, resultLogger, rec, out)
}

// runOnce makes a single request to the service and prints the result
func runOnce(ctx context.Context, opts options, clientOpts []akismet.Option, rl webapi.ResultLogger,
	rec recorder, out io.Writer) error {
	ambient := akismet.Ambient{IP: opts.Comment.IP, UserAgent: opts.Comment.UserAgent, Referrer: opts.Comment.Referrer}
	client, err := akismet.New(ctx, opts.Website, opts.Key, append([]akismet.Option{akismet.WithAmbient(ambient)}, clientOpts...)...)
	if err != nil {
		return fmt.Errorf("failed to make akismet client: %w", err)
	}
	client.SetCommentAuthor(opts.Comment.Author).
		SetCommentAuthorEmail(opts.Comment.Email).
		SetCommentAuthorURL(opts.Comment.URL).
		SetCommentContent(opts.Comment.Content).
		SetCommentType(opts.Comment.Type).
		SetPermalink(opts.Comment.Permalink).
		SetBlogLang(opts.Comment.Lang).
		SetBlogCharset(opts.Comment.Charset).
		SetUserRole(opts.Comment.Role).
		SetIsTest(opts.Comment.Test).
		SetCommentDateGmt(opts.Comment.DateGmt).
		SetCommentPostModifiedGmt(opts.Comment.PostModifiedGmt)

	req := spamcheck.Request{Website: client.Website(), Fields: client.Fields()}
	resp := spamcheck.Response{Name: "akismet"}
	var ok bool
	switch opts.Mode {
	case "spam":
		req.Op = akismet.OpSubmitSpam
		ok, err = client.ReportSpam(ctx)
		resp.Spam, resp.Accepted = true, ok
	case "ham":
		req.Op = akismet.OpSubmitHam
		ok, err = client.ReportHam(ctx)
		resp.Accepted = ok
	default:
		req.Op = akismet.OpCommentCheck
		ok, err = client.CheckIsSpam(ctx)
		resp.Spam = ok
	}
	resp.Details, resp.Error = req.Op, err

	rl.Save(req, resp)
	if rec != nil {
		if werr := rec.Write(ctx, storage.NewCheckInfo(req, resp)); werr != nil {
			log.Printf("[WARN] can't save result, %v", werr)
		}
	}
	if err != nil {
		return fmt.Errorf("akismet %s failed: %w", req.Op, err)
	}

	switch {
	case req.Op == akismet.OpCommentCheck && ok:
		_, err = color.New(color.FgRed).Fprintln(out, "spam")
	case req.Op == akismet.OpCommentCheck:
		_, err = color.New(color.FgGreen).Fprintln(out, "ham")
	case ok:
		_, err = color.New(color.FgGreen).Fprintln(out, "accepted")
	default:
		_, err = color.New(color.FgYellow).Fprintln(out, "rejected")
	}
	if err != nil {
		return fmt.Errorf("can't print result, %w", err)
	}
	return nil
}

func validateOptions(opts options) error {
	var errs *multierror.Error
	if opts.Website == "" {
		errs = multierror.Append(errs, errors.New("website is required"))
	}
	if opts.Key == "" {
		errs = multierror.Append(errs, errors.New("api key is required"))
	}
	if opts.APIRoot != "" {
		if u, err := url.Parse(opts.APIRoot); err != nil || u.Host == "" {
			errs = multierror.Append(errs, fmt.Errorf("invalid api root %q", opts.APIRoot))
		}
	}
	if opts.Server.Enabled && opts.Server.ListenAddr == "" {
		errs = multierror.Append(errs, errors.New("server listen address is required"))
	}
	if opts.Server.RateLimit < 0 {
		errs = multierror.Append(errs, fmt.Errorf("negative rate limit %v", opts.Server.RateLimit))
	}
	if opts.Logger.Enabled && opts.Logger.MaxBackups < 0 {
		errs = multierror.Append(errs, fmt.Errorf("negative logger max backups %d", opts.Logger.MaxBackups))
	}
	if err := errs.ErrorOrNil(); err != nil {
		return fmt.Errorf("invalid options: %w", err)
	}
	return nil
}

func makeClientOptions(opts options) []akismet.Option {
	res := []akismet.Option{akismet.WithUserAgent("akismet-check/" + revision + " | Akismet/1.1")}
	if opts.APIRoot != "" {
		root := strings.TrimSuffix(opts.APIRoot, "/")
		res = append(res, akismet.WithServiceRoot(root), akismet.WithAPIHost(func(string) string { return root }))
	}
	return res
}

// makeRecorder opens the database and makes checks storage, returns nil if no database set
func makeRecorder(ctx context.Context, opts options) (recorder, error) {
	if opts.DB == "" {
		return nil, nil
	}
	gid := opts.GID
	if gid == "" {
		gid = opts.Website
	}
	db, err := engine.New(ctx, opts.DB, gid)
	if err != nil {
		return nil, fmt.Errorf("can't make db engine, %w", err)
	}
	checks, err := storage.NewChecks(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("can't make checks storage, %w", err)
	}
	log.Printf("[INFO] results stored in %s db, gid %q", db.Type(), gid)
	return checks, nil
}

func makeResultLogger(wr io.Writer) webapi.ResultLogger {
	return webapi.ResultLoggerFunc(func(req spamcheck.Request, resp spamcheck.Response) {
		log.Printf("[INFO] %s: %s", req.String(), resp.String())
		m := struct {
			TimeStamp string `json:"ts"`
			Op        string `json:"op"`
			Website   string `json:"website"`
			UserIP    string `json:"user_ip"`
			Author    string `json:"author"`
			Content   string `json:"content"`
			Spam      bool   `json:"spam"`
			Accepted  bool   `json:"accepted"`
			Error     string `json:"error,omitempty"`
		}{
			TimeStamp: time.Now().In(time.Local).Format(time.RFC3339),
			Op:        req.Op,
			Website:   req.Website,
			UserIP:    req.Fields[akismet.FieldUserIP],
			Author:    req.Fields[akismet.FieldCommentAuthor],
			Content:   strings.TrimSpace(strings.ReplaceAll(req.Fields[akismet.FieldCommentContent], "\n", " ")),
			Spam:      resp.Spam,
			Accepted:  resp.Accepted,
		}
		if resp.Error != nil {
			m.Error = resp.Error.Error()
		}
		line, err := json.Marshal(&m)
		if err != nil {
			log.Printf("[WARN] can't marshal json, %v", err)
			return
		}
		if _, err := wr.Write(append(line, '\n')); err != nil {
			log.Printf("[WARN] can't write to log, %v", err)
		}
	})
}

// makeResultLogWriter creates results log writer to keep reports about performed requests
// it parses options and makes lumberjack logger with rotation
func makeResultLogWriter(opts options) (io.WriteCloser, error) {
	if !opts.Logger.Enabled {
		return nopWriteCloser{io.Discard}, nil
	}

	sizeParse := func(inp string) (uint64, error) {
		if inp == "" {
			return 0, errors.New("empty value")
		}
		for i, sfx := range []string{"k", "m", "g", "t"} {
			if strings.HasSuffix(inp, strings.ToUpper(sfx)) || strings.HasSuffix(inp, strings.ToLower(sfx)) {
				val, err := strconv.Atoi(inp[:len(inp)-1])
				if err != nil {
					return 0, fmt.Errorf("can't parse %s: %w", inp, err)
				}
				return uint64(float64(val) * math.Pow(float64(1024), float64(i+1))), nil
			}
		}
		return strconv.ParseUint(inp, 10, 64)
	}

	maxSize, err := sizeParse(opts.Logger.MaxSize)
	if err != nil {
		return nil, fmt.Errorf("can't parse logger MaxSize: %w", err)
	}
	maxSize /= 1048576

	log.Printf("[INFO] results log enabled for %s, max size %dM", opts.Logger.FileName, maxSize)
	return &lumberjack.Logger{
		Filename:   opts.Logger.FileName,
		MaxSize:    int(maxSize), // in MB
		MaxBackups: opts.Logger.MaxBackups,
		Compress:   true,
		LocalTime:  true,
	}, nil
}

type nopWriteCloser struct{ io.Writer }

func (n nopWriteCloser) Close() error { return nil }

func setupLog(dbg bool, secrets ...string) {
	logOpts := []lgr.Option{lgr.Msec, lgr.LevelBraces, lgr.StackTraceOnError}
	if dbg {
		logOpts = []lgr.Option{lgr.Debug, lgr.CallerFile, lgr.CallerFunc, lgr.Msec, lgr.LevelBraces, lgr.StackTraceOnError}
	}

	colorizer := lgr.Mapper{
		ErrorFunc:  func(s string) string { return color.New(color.FgHiRed).Sprint(s) },
		WarnFunc:   func(s string) string { return color.New(color.FgRed).Sprint(s) },
		InfoFunc:   func(s string) string { return color.New(color.FgYellow).Sprint(s) },
		DebugFunc:  func(s string) string { return color.New(color.FgWhite).Sprint(s) },
		CallerFunc: func(s string) string { return color.New(color.FgBlue).Sprint(s) },
		TimeFunc:   func(s string) string { return color.New(color.FgCyan).Sprint(s) },
	}
	logOpts = append(logOpts, lgr.Map(colorizer))

	nonEmpty := []string{}
	for _, s := range secrets {
		if s != "" {
			nonEmpty = append(nonEmpty, s)
		}
	}
	if len(nonEmpty) > 0 {
		logOpts = append(logOpts, lgr.Secret(nonEmpty...))
	}
	lgr.SetupStdLogger(logOpts...)
	lgr.Setup(logOpts...)
}
