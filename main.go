package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/golang/glog"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mqy/minichat/config"
	"github.com/mqy/minichat/credstore"
	"github.com/mqy/minichat/session"
	"github.com/mqy/minichat/wire"
)

var (
	flagEnvFile     = flag.String("env-file", ".env", "optional .env file")
	flagServer      = flag.String("server", "", "backend url; overrides MINICHAT_SERVER_URL")
	flagCredPath    = flag.String("creds", "", "credential db path; overrides MINICHAT_CRED_PATH")
	flagEmail       = flag.String("email", "", "login email, when there is no stored session")
	flagPassword    = flag.String("password", "", "login password; defaults to MINICHAT_PASSWORD")
	flagPeer        = flag.String("peer", "", "user id to chat with")
	flagMetricsAddr = flag.String("metrics-addr", "", "serve prometheus metrics on ip:port; overrides MINICHAT_METRICS_ADDR")
)

const usage = `commands:
  /delete <id> [me|everyone]   delete a message (default: me)
  /clear [me|everyone]         clear the conversation (default: me)
  /online                      list online users
  /logout                      log out and quit
  /quit                        quit, keeping the session
anything else is sent as a message.`

func main() {
	flag.Parse()

	// NOTE: os.Exit() does not call defers.
	os.Exit(run())
}

func run() int {
	defer glog.Flush()

	conf, err := loadConfig()
	if err != nil {
		return errorf("%v", err)
	}
	if *flagPeer == "" {
		return errorf("--peer is required")
	}

	creds, err := credstore.Open(conf.Client.CredPath)
	if err != nil {
		return errorf("%v", err)
	}
	defer func() {
		_ = creds.Close()
	}()

	s := session.New(&session.Config{
		ServerURL:       conf.Client.ServerURL,
		SocketURL:       conf.Client.SocketURL,
		ScrollThreshold: conf.Client.ScrollThreshold,
		AnchorLastSeen:  conf.Client.AnchorLastSeen,
		RemoteTimeout:   conf.Client.RemoteTimeout,
	}, creds)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	err = start(ctx, s)
	cancel()
	if err != nil {
		return errorf("%v", err)
	}

	if addr := conf.Client.MetricsAddr; addr != "" {
		go serveMetrics(addr)
	}

	ctx, cancel = context.WithTimeout(context.Background(), 15*time.Second)
	view, err := s.OpenChat(ctx, *flagPeer)
	cancel()
	if err != nil {
		s.Close()
		return errorf("open chat with %s: %v", *flagPeer, err)
	}

	fmt.Printf("chatting with %s as %s, /help for commands\n", *flagPeer, s.UserID())
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		render(os.Stdout, view)
	}()

	logout := readInput(os.Stdin, s, view)

	view.Close()
	<-printed
	if logout {
		if err := s.Logout(); err != nil {
			return errorf("logout: %v", err)
		}
		fmt.Println("logged out")
	} else {
		s.Close()
	}
	return 0
}

func loadConfig() (*config.Config, error) {
	conf, err := config.Load(*flagEnvFile)
	if err != nil {
		return nil, err
	}
	if *flagServer != "" {
		conf.Client.ServerURL = *flagServer
		u, err := config.SocketURL(*flagServer)
		if err != nil {
			return nil, err
		}
		conf.Client.SocketURL = u
	}
	if *flagCredPath != "" {
		conf.Client.CredPath = *flagCredPath
	}
	if *flagMetricsAddr != "" {
		conf.Client.MetricsAddr = *flagMetricsAddr
	}
	return conf, conf.Validate()
}

// start resumes the stored session, or logs in with --email.
func start(ctx context.Context, s *session.Session) error {
	err := s.Restore(ctx)
	if err == nil {
		return nil
	}
	if !errors.Is(err, session.ErrNotLoggedIn) && !errors.Is(err, session.ErrTokenExpired) {
		return err
	}
	if *flagEmail == "" {
		return fmt.Errorf("no stored session, --email is required: %w", err)
	}
	password := *flagPassword
	if password == "" {
		password = os.Getenv("MINICHAT_PASSWORD")
	}
	return s.Login(ctx, *flagEmail, password)
}

func serveMetrics(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(
		prometheus.DefaultGatherer,
		promhttp.HandlerOpts{},
	))
	glog.Infof("metrics on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		glog.Errorf("metrics server error: %v", err)
	}
}

// readInput runs commands until EOF, /quit, /logout or a signal. It reports
// whether to log out.
func readInput(r io.Reader, s *session.Session, view *session.ChatView) bool {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case sig := <-sigCh:
			glog.Infof("received signal `%s`", sig)
			return false
		case line, ok := <-lines:
			if !ok {
				return false
			}
			quit, logout := command(line, s, view)
			if quit {
				return logout
			}
		}
	}
}

func command(line string, s *session.Session, view *session.ChatView) (quit, logout bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 || !strings.HasPrefix(fields[0], "/") {
		if err := view.Send(line); err != nil {
			fmt.Printf("! send: %v\n", err)
		}
		return false, false
	}

	mode := func(i int) string {
		if len(fields) > i {
			return fields[i]
		}
		return wire.ModeMe
	}

	var err error
	switch fields[0] {
	case "/quit":
		return true, false
	case "/logout":
		return true, true
	case "/help":
		fmt.Println(usage)
	case "/online":
		fmt.Printf("online: %s\n", strings.Join(s.Presence().List(), ", "))
	case "/delete":
		if len(fields) < 2 {
			fmt.Println("! usage: /delete <id> [me|everyone]")
			return false, false
		}
		err = view.Delete(fields[1], mode(2))
	case "/clear":
		err = view.Clear(mode(1))
	default:
		fmt.Printf("! unknown command %s\n%s\n", fields[0], usage)
	}
	if err != nil {
		fmt.Printf("! %s: %v\n", fields[0], err)
	}
	return false, false
}

// render prints new messages, status changes and typing changes until the
// view is closed.
func render(w io.Writer, view *session.ChatView) {
	statuses := make(map[string]wire.Status)
	typing := false

	for u := range view.Updates() {
		present := make(map[string]wire.Status, len(u.Messages))
		for _, m := range u.Messages {
			if m.Pending {
				continue
			}
			present[m.ID] = m.Status
			old, ok := statuses[m.ID]
			switch {
			case !ok:
				fmt.Fprintf(w, "%s %s: %s  [%s] (%s)\n", m.CreatedAt.Local().Format("15:04"), m.Sender, body(&m), m.Status, m.ID)
			case old != m.Status:
				fmt.Fprintf(w, "  (%s) %s\n", m.ID, m.Status)
			}
		}
		for id := range statuses {
			if _, ok := present[id]; !ok {
				fmt.Fprintf(w, "  (%s) deleted\n", id)
			}
		}
		statuses = present

		if u.PeerTyping != typing {
			typing = u.PeerTyping
			if typing {
				fmt.Fprintf(w, "  %s is typing ...\n", view.Peer)
			}
		}
	}
}

func body(m *wire.Message) string {
	switch {
	case m.Text != "":
		return m.Text
	case m.Audio != "":
		return fmt.Sprintf("<voice %ds> %s", m.Duration, m.Audio)
	case m.File != "":
		return "<file> " + m.File
	}
	return ""
}

func errorf(fmt string, args ...interface{}) int {
	glog.Errorf(fmt, args...)
	return 1
}
