package slack

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"pulse/bot/internal/app"
	"pulse/bot/internal/authz"
	"pulse/bot/internal/export"
)

// EmailResolver turns a user id into the email the allow-lists key on.
type EmailResolver interface {
	UserEmail(ctx context.Context, userID string) (string, error)
}

// Handler serves the slash command and event endpoints.
type Handler struct {
	svc           *app.Service
	emails        EmailResolver
	signingSecret string
	now           func() time.Time
}

func NewHandler(svc *app.Service, emails EmailResolver, signingSecret string) *Handler {
	return &Handler{svc: svc, emails: emails, signingSecret: signingSecret, now: time.Now}
}

// Routes mounts the bot's HTTP surface.
func (h *Handler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /slack/commands", h.handleCommand)
	mux.HandleFunc("POST /slack/events", h.handleEvent)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, "ok")
	})
	return mux
}

const signatureWindow = 5 * time.Minute

// verifiedBody reads the request body and checks the v0 request
// signature against the signing secret.
func (h *Handler) verifiedBody(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if h.signingSecret == "" {
		return body, nil
	}

	tsHeader := r.Header.Get("X-Slack-Request-Timestamp")
	ts, err := strconv.ParseInt(tsHeader, 10, 64)
	if err != nil {
		return nil, errors.New("missing request timestamp")
	}
	age := h.now().Sub(time.Unix(ts, 0))
	if age > signatureWindow || age < -signatureWindow {
		return nil, errors.New("request timestamp outside the accepted window")
	}

	mac := hmac.New(sha256.New, []byte(h.signingSecret))
	fmt.Fprintf(mac, "v0:%s:%s", tsHeader, body)
	expected := "v0=" + hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(expected), []byte(r.Header.Get("X-Slack-Signature"))) {
		return nil, errors.New("signature mismatch")
	}
	return body, nil
}

type commandRequest struct {
	command   string
	text      string
	userID    string
	channelID string
}

func (h *Handler) handleCommand(w http.ResponseWriter, r *http.Request) {
	body, err := h.verifiedBody(r)
	if err != nil {
		log.Printf("slack: rejected command request: %v", err)
		http.Error(w, "invalid request", http.StatusUnauthorized)
		return
	}
	form, err := url.ParseQuery(string(body))
	if err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	cmd := commandRequest{
		command:   form.Get("command"),
		text:      strings.TrimSpace(form.Get("text")),
		userID:    form.Get("user_id"),
		channelID: form.Get("channel_id"),
	}

	email, err := h.emails.UserEmail(r.Context(), cmd.userID)
	if err != nil {
		log.Printf("slack: email lookup for %s failed: %v", cmd.userID, err)
	}
	actor := app.Actor{UserID: cmd.userID, Email: email}

	text, derr := h.dispatch(r.Context(), actor, cmd)
	if derr != nil {
		respondEphemeral(w, derr.Message)
		return
	}
	respondEphemeral(w, text)
}

// dispatch routes one slash command to the matching service operation.
func (h *Handler) dispatch(ctx context.Context, actor app.Actor, cmd commandRequest) (string, *app.DomainError) {
	var (
		text string
		err  error
	)
	switch cmd.command {
	case "/update":
		client, fields, perr := parseUpdateArgs(cmd.text)
		if perr != nil {
			return "", &app.DomainError{Status: http.StatusBadRequest, Code: "invalid", Message: perr.Error()}
		}
		text, err = h.svc.UpdateProject(ctx, actor, cmd.channelID, client, fields)
	case "/add-client":
		text, err = h.svc.AddClient(ctx, actor, cmd.channelID, cmd.text)
	case "/edit-client":
		from, to, ok := strings.Cut(cmd.text, "->")
		if !ok {
			return "", &app.DomainError{Status: http.StatusBadRequest, Code: "invalid", Message: "usage: /edit-client Old Name -> New Name"}
		}
		text, err = h.svc.RenameClient(ctx, actor, cmd.channelID, strings.TrimSpace(from), strings.TrimSpace(to))
	case "/history":
		client, full := parseHistoryArgs(cmd.text)
		text, err = h.svc.History(ctx, actor, cmd.channelID, client, full)
	case "/ask":
		if err = h.svc.AskAsync(actor, cmd.channelID, cmd.text); err == nil {
			text = "Working on it, I will post the answer here shortly."
		}
	case "/report":
		if err = h.svc.PublishReport(ctx, actor, cmd.channelID); err == nil {
			text = "Report posted."
		}
	case "/report-pdf":
		if err = h.svc.DownloadReport(ctx, actor, cmd.channelID, parseReportKind(cmd.text)); err == nil {
			text = "Report uploaded."
		}
	case "/sync-kb":
		text, err = h.svc.SyncKnowledge(ctx, actor, cmd.channelID)
	case "/admin":
		text, err = h.adminDispatch(ctx, actor, cmd)
	default:
		return "", &app.DomainError{Status: http.StatusBadRequest, Code: "invalid", Message: fmt.Sprintf("unknown command %s", cmd.command)}
	}
	if err != nil {
		var derr *app.DomainError
		if errors.As(err, &derr) {
			return "", derr
		}
		log.Printf("slack: %s failed: %v", cmd.command, err)
		return "", &app.DomainError{Status: http.StatusInternalServerError, Code: "internal", Message: "something went wrong, try again"}
	}
	return text, nil
}

func (h *Handler) adminDispatch(ctx context.Context, actor app.Actor, cmd commandRequest) (string, error) {
	args := strings.Fields(cmd.text)
	if len(args) == 0 {
		return "", &app.DomainError{Status: http.StatusBadRequest, Code: "invalid", Message: "usage: /admin add-user|remove-user|map-channel|set-mailbox ..."}
	}
	switch args[0] {
	case "add-user":
		if len(args) < 2 {
			return "", &app.DomainError{Status: http.StatusBadRequest, Code: "invalid", Message: "usage: /admin add-user email [external]"}
		}
		return h.svc.AdminAddUser(ctx, actor, cmd.channelID, args[1], hasFlag(args[2:], "external"))
	case "remove-user":
		if len(args) < 2 {
			return "", &app.DomainError{Status: http.StatusBadRequest, Code: "invalid", Message: "usage: /admin remove-user email [external]"}
		}
		return h.svc.AdminRemoveUser(ctx, actor, cmd.channelID, args[1], hasFlag(args[2:], "external"))
	case "map-channel":
		if len(args) < 3 {
			return "", &app.DomainError{Status: http.StatusBadRequest, Code: "invalid", Message: "usage: /admin map-channel CHANNEL internal|external [client...]"}
		}
		scope := authz.ScopeInternal
		if args[2] == "external" {
			scope = authz.ScopeExternal
		}
		client := strings.Join(args[3:], " ")
		return h.svc.AdminMapChannel(ctx, actor, cmd.channelID, args[1], client, scope)
	case "set-mailbox":
		mailbox := ""
		if len(args) > 1 {
			mailbox = args[1]
		}
		return h.svc.AdminSetMailbox(ctx, actor, cmd.channelID, mailbox)
	default:
		return "", &app.DomainError{Status: http.StatusBadRequest, Code: "invalid", Message: fmt.Sprintf("unknown admin action %q", args[0])}
	}
}

type eventEnvelope struct {
	Type      string `json:"type"`
	Challenge string `json:"challenge"`
	EventID   string `json:"event_id"`
	Event     struct {
		Type    string `json:"type"`
		Subtype string `json:"subtype"`
		BotID   string `json:"bot_id"`
		User    string `json:"user"`
		Channel string `json:"channel"`
		Text    string `json:"text"`
		TS      string `json:"ts"`
	} `json:"event"`
}

func (h *Handler) handleEvent(w http.ResponseWriter, r *http.Request) {
	body, err := h.verifiedBody(r)
	if err != nil {
		log.Printf("slack: rejected event request: %v", err)
		http.Error(w, "invalid request", http.StatusUnauthorized)
		return
	}
	var env eventEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}

	switch env.Type {
	case "url_verification":
		w.Header().Set("Content-Type", "text/plain")
		io.WriteString(w, env.Challenge)
	case "event_callback":
		// Acknowledge before processing; the events API redelivers on
		// slow responses and dedup handles any overlap.
		w.WriteHeader(http.StatusOK)
		if env.Event.Subtype != "" || env.Event.BotID != "" {
			return
		}
		ev := env
		switch ev.Event.Type {
		case "message":
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
				defer cancel()
				if err := h.svc.ProcessMailboxEvent(ctx, ev.EventID, ev.Event.Channel, ev.Event.Text, ev.Event.TS); err != nil {
					log.Printf("slack: event %s processing failed: %v", ev.EventID, err)
				}
			}()
		case "app_mention":
			go h.handleMention(ev)
		}
	default:
		w.WriteHeader(http.StatusOK)
	}
}

var mentionRe = regexp.MustCompile(`<@[^>]+>`)

// handleMention treats an @-mention of the bot as a question and posts
// the answer back to the channel.
func (h *Handler) handleMention(env eventEnvelope) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	question := strings.TrimSpace(mentionRe.ReplaceAllString(env.Event.Text, ""))
	if question == "" {
		return
	}
	email, err := h.emails.UserEmail(ctx, env.Event.User)
	if err != nil {
		log.Printf("slack: email lookup for %s failed: %v", env.Event.User, err)
	}
	actor := app.Actor{UserID: env.Event.User, Email: email}
	if err := h.svc.AskAsync(actor, env.Event.Channel, question); err != nil {
		log.Printf("slack: mention %s not answered: %v", env.EventID, err)
	}
}

func respondEphemeral(w http.ResponseWriter, text string) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"response_type": "ephemeral",
		"text":          text,
	})
}

// parseUpdateArgs parses "Client ; field=value ; field=value".
func parseUpdateArgs(text string) (string, map[string]string, error) {
	parts := strings.Split(text, ";")
	client := strings.TrimSpace(parts[0])
	fields := map[string]string{}
	for _, part := range parts[1:] {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			return "", nil, fmt.Errorf("cannot parse %q, expected field=value", part)
		}
		fields[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	if len(fields) == 0 {
		return "", nil, errors.New("usage: /update Client ; status=... ; blocker=...")
	}
	return client, fields, nil
}

func parseHistoryArgs(text string) (string, bool) {
	if rest, ok := strings.CutSuffix(text, " full"); ok {
		return strings.TrimSpace(rest), true
	}
	return text, false
}

func parseReportKind(text string) export.Kind {
	switch strings.TrimSpace(text) {
	case "summary":
		return export.KindSummary
	case "blockers":
		return export.KindBlockersOnly
	default:
		return export.KindFull
	}
}

func hasFlag(args []string, flag string) bool {
	for _, a := range args {
		if a == flag {
			return true
		}
	}
	return false
}

