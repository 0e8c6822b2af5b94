package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// Submission is one multipart request received by the fake API.
type Submission struct {
	Authorization string
	FieldOrder    []string
	Fields        map[string]string
	Files         []string
}

// Upstream is a fake listing API with /auth/login and /car/submit.
type Upstream struct {
	*httptest.Server

	mu           sync.Mutex
	token        string
	loginStatus  int
	loginBody    string
	submitStatus int
	submitBody   string
	logins       int
	submissions  []Submission
}

// NewUpstream starts a fake API that accepts any credentials and issues token.
func NewUpstream(t testing.TB, token string) *Upstream {
	t.Helper()

	u := &Upstream{token: token, loginStatus: http.StatusOK, submitStatus: http.StatusCreated}
	mux := http.NewServeMux()
	mux.HandleFunc("/auth/login", u.handleLogin)
	mux.HandleFunc("/car/submit", u.handleSubmit)
	u.Server = httptest.NewServer(mux)
	t.Cleanup(u.Close)
	return u
}

// FailLogin makes the next logins fail with status and a JSON body.
func (u *Upstream) FailLogin(status int, body string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.loginStatus = status
	u.loginBody = body
}

// FailSubmit makes the next submissions fail with status and a JSON body.
func (u *Upstream) FailSubmit(status int, body string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.submitStatus = status
	u.submitBody = body
}

// Logins reports how many login calls arrived.
func (u *Upstream) Logins() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.logins
}

// Submissions returns a copy of the recorded submissions.
func (u *Upstream) Submissions() []Submission {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]Submission(nil), u.submissions...)
}

func (u *Upstream) handleLogin(w http.ResponseWriter, r *http.Request) {
	var creds struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	_ = json.NewDecoder(r.Body).Decode(&creds)

	u.mu.Lock()
	u.logins++
	status, body, token := u.loginStatus, u.loginBody, u.token
	u.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if status != http.StatusOK {
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]string{"token": token})
}

func (u *Upstream) handleSubmit(w http.ResponseWriter, r *http.Request) {
	sub := Submission{Authorization: r.Header.Get("Authorization"), Fields: map[string]string{}}
	if mr, err := r.MultipartReader(); err == nil {
		for {
			part, err := mr.NextPart()
			if err != nil {
				break
			}
			data, _ := io.ReadAll(part)
			if part.FileName() != "" {
				sub.Files = append(sub.Files, part.FileName())
				continue
			}
			sub.FieldOrder = append(sub.FieldOrder, part.FormName())
			sub.Fields[part.FormName()] = string(data)
		}
	}

	u.mu.Lock()
	u.submissions = append(u.submissions, sub)
	status, body := u.submitStatus, u.submitBody
	u.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != "" {
		_, _ = io.WriteString(w, body)
	}
}
