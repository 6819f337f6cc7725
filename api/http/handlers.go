package http

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/twilio/twilio-go/twiml"

	"github.com/chadiek/preapproval-line/internal/call"
	"github.com/chadiek/preapproval-line/internal/config"
	"github.com/chadiek/preapproval-line/internal/convo"
	"github.com/chadiek/preapproval-line/internal/dispatch"
	"github.com/chadiek/preapproval-line/internal/llm"
	"github.com/chadiek/preapproval-line/internal/persona"
	"github.com/chadiek/preapproval-line/internal/poller"
	"github.com/chadiek/preapproval-line/internal/stage"
	"github.com/chadiek/preapproval-line/internal/stt"
	"github.com/chadiek/preapproval-line/internal/tts"
	"github.com/chadiek/preapproval-line/internal/usecase"
)

// Handlers wires the HTTP surface: the Twilio voice webhook, the media
// stream socket, and the loan application form.
type Handlers struct {
	Cfg       config.Config
	App       *usecase.ApplicationService
	Emailer   dispatch.Emailer
	Forwarder dispatch.Forwarder
	Archiver  call.Archiver

	TemplatesDir string

	upgrader websocket.Upgrader
}

func NewHandlers(cfg config.Config, app *usecase.ApplicationService, emailer dispatch.Emailer, forwarder dispatch.Forwarder, archiver call.Archiver) *Handlers {
	return &Handlers{
		Cfg:          cfg,
		App:          app,
		Emailer:      emailer,
		Forwarder:    forwarder,
		Archiver:     archiver,
		TemplatesDir: "templates",
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (h *Handlers) Register(e *echo.Echo) {
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.POST("/", h.voice)
	e.GET("/ws", h.mediaStream)
	e.GET("/loan-application", h.loanApplicationForm)
	e.POST("/loan-application", h.submitLoanApplication)
	e.POST("/test-email", h.testEmail)
}

// voice answers Twilio's incoming call webhook with TwiML that connects the
// call audio to the media stream socket.
func (h *Handlers) voice(c echo.Context) error {
	if params, ok := c.Get("twilioParams").(map[string]string); ok {
		log.Printf("incoming call from %s, CallSid=%s", params["From"], params["CallSid"])
	}

	connect := &twiml.VoiceConnect{
		InnerElements: []twiml.Element{
			twiml.VoiceStream{Url: h.websocketURL(c)},
		},
	}
	// keep the call leg open while the stream runs
	pause := &twiml.VoicePause{Length: "40"}
	response, err := twiml.Voice([]twiml.Element{connect, pause})
	if err != nil {
		return c.String(http.StatusInternalServerError, "failed to build TwiML")
	}
	c.Response().Header().Set(echo.HeaderContentType, "application/xml")
	return c.String(http.StatusOK, response)
}

// websocketURL resolves the public stream URL: explicit configuration wins,
// otherwise it is derived from the request host.
func (h *Handlers) websocketURL(c echo.Context) string {
	if h.Cfg.WebsocketURL != "" {
		return h.Cfg.WebsocketURL
	}
	host := c.Request().Header.Get("X-Forwarded-Host")
	if host == "" {
		host = c.Request().Host
	}
	scheme := "wss"
	if strings.HasPrefix(host, "localhost") || strings.HasPrefix(host, "127.0.0.1") {
		scheme = "ws"
	}
	return fmt.Sprintf("%s://%s/ws", scheme, host)
}

// baseURL resolves the public HTTP base for links sent to callers.
func (h *Handlers) baseURL(c echo.Context) string {
	if h.Cfg.BaseURL != "" {
		return strings.TrimRight(h.Cfg.BaseURL, "/")
	}
	proto := c.Request().Header.Get("X-Forwarded-Proto")
	host := c.Request().Header.Get("X-Forwarded-Host")
	if proto != "" && host != "" {
		return fmt.Sprintf("%s://%s", proto, host)
	}
	host = c.Request().Host
	proto = "https"
	if strings.HasPrefix(host, "localhost") || strings.HasPrefix(host, "127.0.0.1") {
		proto = "http"
	}
	return fmt.Sprintf("%s://%s", proto, host)
}

// mediaStream accepts the Twilio media stream socket and runs the voice
// agent for the duration of the call.
func (h *Handlers) mediaStream(c echo.Context) error {
	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	streamSID, callSID, err := awaitStart(conn)
	if err != nil {
		log.Printf("media stream handshake failed: %v", err)
		return nil
	}
	log.Printf("starting voice session: streamSid=%s callSid=%s", streamSID, callSID)

	h.runCall(c, conn, streamSID, callSID)
	return nil
}

// awaitStart reads stream messages until the start frame arrives. Twilio
// sends a "connected" event first.
func awaitStart(conn *websocket.Conn) (streamSID, callSID string, err error) {
	for i := 0; i < 5; i++ {
		var env call.Envelope
		if err := conn.ReadJSON(&env); err != nil {
			return "", "", err
		}
		if env.Event == "start" {
			return env.Start.StreamSid, env.Start.CallSid, nil
		}
	}
	return "", "", fmt.Errorf("no start frame received")
}

// runCall assembles the per-call pipeline and blocks until the call ends.
func (h *Handlers) runCall(c echo.Context, conn *websocket.Conn, streamSID, callSID string) {
	cfg := h.Cfg

	clog := convo.NewLog("")

	var transcriber call.Transcriber
	if cfg.SpeechProvider == "assemblyai" {
		transcriber = stt.NewAssemblyAIService(cfg.AssemblyAIAPIKey)
	} else {
		transcriber = stt.NewDeepgramService(cfg.DeepgramAPIKey)
	}

	var responder call.Responder
	if cfg.LLMProvider == "cerebras" {
		responder = llm.NewCerebrasClient(cfg.CerebrasAPIKey, cfg.CerebrasModelID)
	} else {
		responder = llm.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIModelID)
	}

	var speaker call.Speaker
	if cfg.TTSProvider == "deepgram" {
		speaker = tts.NewDeepgramClient(cfg.DeepgramAPIKey, cfg.WelcomeVoiceID)
	} else {
		speaker = tts.NewElevenLabsClient(cfg.ElevenLabsAPIKey, cfg.WelcomeVoiceID)
	}

	sess := call.NewSession(conn, streamSID, callSID, clog, transcriber, responder, speaker, h.Archiver)

	board := persona.NewSwitchboard(clog, speaker, sess, persona.Config{
		CompanyName:      cfg.CompanyName,
		WelcomeAgentName: cfg.WelcomeAgentName,
		LoanAgentName:    cfg.LoanAgentName,
		WelcomeVoiceID:   cfg.WelcomeVoiceID,
		LoanVoiceID:      cfg.LoanVoiceID,
	})
	clog.ReplaceSystem(board.WelcomeInstructions())

	state := stage.NewSession(callSID, streamSID)
	effects := dispatch.New(h.Emailer, h.Forwarder, h.baseURL(c), cfg.SupportPhoneNumber)
	machine := stage.NewMachine(state, clog, sess, board, effects, board.LoanAgentName(), cfg.SupportPhoneNumber)

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	pollerDone := make(chan struct{})
	go func() {
		defer close(pollerDone)
		poller.New(machine, poller.DefaultInterval, callSID).Run(ctx)
	}()

	sess.Inject(board.OpeningDirective())
	err := sess.Run(ctx)

	// Stop the evaluation loop and wait for it before archival so no tick
	// interleaves with teardown.
	cancel()
	<-pollerDone
	sess.Teardown()

	if err != nil {
		log.Printf("call %s ended with error: %v", callSID, err)
	}
}

// loanApplicationForm serves the application form. Pre-fill values arrive as
// query parameters and are consumed client side.
func (h *Handlers) loanApplicationForm(c echo.Context) error {
	path := filepath.Join(h.TemplatesDir, "loan_application.html")
	content, err := os.ReadFile(path)
	if err != nil {
		log.Printf("template file not found: %s", path)
		return c.HTML(http.StatusInternalServerError, "<h1>Template file not found</h1>")
	}
	return c.HTMLBlob(http.StatusOK, content)
}

// submitLoanApplication processes the application form end to end.
func (h *Handlers) submitLoanApplication(c echo.Context) error {
	monthlyIncome, _ := strconv.ParseFloat(c.FormValue("monthly_income"), 64)
	requestedAmount, _ := strconv.ParseFloat(c.FormValue("requested_amount"), 64)
	durationYears, _ := strconv.Atoi(c.FormValue("loan_duration_years"))

	form := usecase.ApplicationForm{
		LegalName:         c.FormValue("legal_name"),
		DOB:               c.FormValue("dob"),
		Email:             c.FormValue("email"),
		Phone:             c.FormValue("phone"),
		SSNLast4:          c.FormValue("ssn_last4"),
		MonthlyIncome:     monthlyIncome,
		RequestedAmount:   requestedAmount,
		LoanDurationYears: durationYears,
		PurposeOfLoan:     c.FormValue("purpose_of_loan"),
		TermsConsent:      c.FormValue("terms_consent") != "",
	}

	result, err := h.App.Submit(c.Request().Context(), form)
	if err != nil {
		log.Printf("error processing loan application: %v", err)
		return c.JSON(http.StatusBadRequest, map[string]any{
			"success": false,
			"detail":  err.Error(),
		})
	}
	return c.JSON(http.StatusOK, result)
}

// testEmail sends an application link to the given address so the email
// pipeline can be verified without placing a call.
func (h *Handlers) testEmail(c echo.Context) error {
	to := c.FormValue("email")
	if to == "" {
		to = c.QueryParam("email")
	}
	if to == "" {
		return c.JSON(http.StatusBadRequest, map[string]any{
			"success": false,
			"detail":  "email parameter is required",
		})
	}
	name := c.FormValue("name")
	if name == "" {
		name = "Test Applicant"
	}
	link := h.baseURL(c) + "/loan-application"
	sent := h.Emailer.SendApplicationLink(c.Request().Context(), to, name, link, 24)
	return c.JSON(http.StatusOK, map[string]any{
		"success": sent,
		"sent_to": to,
	})
}
