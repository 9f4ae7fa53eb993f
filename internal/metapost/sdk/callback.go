package sdk

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net"
	"net/http"
	"time"
)

const callbackPath = "/callback"

type callbackResult struct {
	code    string
	state   string
	errCode string
	reason  string
	granted string
	err     error
}

// callbackServer receives the single OAuth redirect of one login attempt.
type callbackServer struct {
	server   *http.Server
	listener net.Listener
	results  chan callbackResult
}

func startCallbackServer(port int) (*callbackServer, error) {
	listener, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return nil, fmt.Errorf("start callback server: %w", err)
	}

	cs := &callbackServer{
		listener: listener,
		results:  make(chan callbackResult, 1),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(callbackPath, cs.handleCallback)
	cs.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := cs.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case cs.results <- callbackResult{err: fmt.Errorf("callback server: %w", err)}:
			default:
			}
		}
	}()

	return cs, nil
}

// RedirectURL is the address the provider must redirect to. It names the
// loopback address the listener is bound to; the app's registered redirect
// URI must match it (http://127.0.0.1:<port>/callback).
func (cs *callbackServer) RedirectURL() string {
	return "http://" + cs.listener.Addr().String() + callbackPath
}

func (cs *callbackServer) wait(ctx context.Context) (callbackResult, error) {
	select {
	case res := <-cs.results:
		return res, res.err
	case <-ctx.Done():
		return callbackResult{}, ctx.Err()
	}
}

func (cs *callbackServer) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = cs.server.Shutdown(ctx)
}

func (cs *callbackServer) handleCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	res := callbackResult{
		code:    q.Get("code"),
		state:   q.Get("state"),
		errCode: q.Get("error"),
		reason:  q.Get("error_reason"),
		granted: q.Get("granted_scopes"),
	}
	if res.errCode == "" && res.code == "" {
		res.errCode = "missing_code"
	}

	select {
	case cs.results <- res:
	default:
		// a result is already pending; later redirects are ignored
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if res.errCode != "" {
		w.WriteHeader(http.StatusBadRequest)
		msg := q.Get("error_description")
		if msg == "" {
			msg = res.errCode
		}
		fmt.Fprintf(w, callbackPage, "Authorization Failed", html.EscapeString(msg))
		return
	}
	fmt.Fprintf(w, callbackPage, "Authorization Successful", "You can close this window and return to the terminal.")
}

const callbackPage = `<!DOCTYPE html>
<html>
<head><title>metapost</title></head>
<body style="font-family: sans-serif; text-align: center; margin-top: 20vh">
<h1>%s</h1>
<p>%s</p>
</body>
</html>`
