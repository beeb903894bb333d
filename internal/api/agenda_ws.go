package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"slices"
	"time"

	"agendei/internal/agenda"
	"agendei/internal/config"
	"agendei/internal/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = (wsPongWait * 9) / 10
	wsMaxMessage = 4096
)

// Messages sent by the dashboard.
const (
	msgSelectDay   = "select_day"
	msgOpenDialog  = "open_dialog"
	msgCloseDialog = "close_dialog"
	msgCreate      = "create"
	msgDismiss     = "dismiss"
)

// Messages sent to the dashboard.
const (
	msgSnapshot     = "snapshot"
	msgNotification = "notification"
	msgDialog       = "dialog"
)

type clientMessage struct {
	Type      string `json:"type"`
	Date      string `json:"date,omitempty"`
	ClientID  int64  `json:"client_id,omitempty"`
	ServiceID int64  `json:"service_id,omitempty"`
	Time      string `json:"time,omitempty"`
	ID        string `json:"id,omitempty"`
}

type snapshotMessage struct {
	Type         string                `json:"type"`
	Token        uint64                `json:"token"`
	Date         string                `json:"date"`
	Appointments []*models.Appointment `json:"appointments"`
	Loading      bool                  `json:"loading"`
}

type notificationMessage struct {
	Type    string `json:"type"`
	ID      string `json:"id"`
	Level   string `json:"level"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

type dialogMessage struct {
	Type string `json:"type"`
	Open bool   `json:"open"`
}

func (s *HTTPServer) upgrader() *websocket.Upgrader {
	origins := s.cfg.API.CORSOrigins
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || slices.Contains(origins, "*") || slices.Contains(origins, origin) {
				return true
			}
			u, err := url.Parse(origin)
			return err == nil && u.Host == r.Host
		},
	}
}

// handleAgendaWS binds one AgendaView to the connection for its lifetime.
func (s *HTTPServer) handleAgendaWS(w http.ResponseWriter, r *http.Request) {
	business, ok := s.currentBusiness(w, r)
	if !ok {
		return
	}
	client, _ := clientFrom(r.Context())

	conn, err := s.upgrader().Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}

	logger := s.log.With().Int64("business_id", business.ID).Str("client", client.Name).Logger()
	view := agenda.New(business.ID, business.Location(), s.svc.Agenda, s.svc.Appointments, &logger)

	session := &agendaSession{
		conn:     conn,
		view:     view,
		business: business,
		client:   client,
		out:      make(chan notificationMessage, 16),
		sent:     make(map[string]bool),
		log:      logger,
	}

	// The request context is cancelled as soon as the handler returns for
	// hijacked connections, so the session owns its own.
	ctx, cancel := context.WithCancel(context.WithoutCancel(r.Context()))
	defer cancel()
	defer view.Close()

	logger.Info().Msg("Agenda stream opened")
	go session.readLoop(ctx, cancel)
	session.writeLoop(ctx)
	_ = conn.Close()
	logger.Info().Msg("Agenda stream closed")
}

type agendaSession struct {
	conn     *websocket.Conn
	view     *agenda.View
	business *models.Business
	client   config.APIClientKey
	out      chan notificationMessage
	log      zerolog.Logger

	// writer-owned
	sent       map[string]bool
	lastToken  uint64
	lastSeq    uint64
	lastLoad   bool
	lastDialog bool
	started    bool
}

func (a *agendaSession) readLoop(ctx context.Context, cancel context.CancelFunc) {
	defer cancel()

	a.conn.SetReadLimit(wsMaxMessage)
	_ = a.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	a.conn.SetPongHandler(func(string) error {
		return a.conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		var msg clientMessage
		if err := a.conn.ReadJSON(&msg); err != nil {
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				a.reply(agenda.LevelWarning, "", "invalid message")
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				a.log.Debug().Err(err).Msg("Agenda stream read error")
			}
			return
		}
		a.dispatch(ctx, msg)
	}
}

func (a *agendaSession) dispatch(ctx context.Context, msg clientMessage) {
	switch msg.Type {
	case msgSelectDay:
		day, err := parseDay(msg.Date, "date", a.business.Location())
		if err != nil {
			a.reply(agenda.LevelWarning, "date", err.Error())
			return
		}
		// Failures are surfaced as view notifications.
		_ = a.view.SelectDay(ctx, day)
	case msgOpenDialog:
		a.view.OpenDialog()
	case msgCloseDialog:
		a.view.CloseDialog()
	case msgCreate:
		if !hasPermission(a.client, config.PermWriteAgenda) {
			a.reply(agenda.LevelError, "", errPermissionDenied.Error())
			return
		}
		_, _ = a.view.CreateAppointment(ctx, msg.ClientID, msg.ServiceID, msg.Time)
	case msgDismiss:
		a.view.Dismiss(msg.ID)
	default:
		a.reply(agenda.LevelWarning, "type", "unknown message type")
	}
}

// reply queues a notification that is not part of the view state.
func (a *agendaSession) reply(level, field, message string) {
	msg := notificationMessage{
		Type:    msgNotification,
		ID:      uuid.NewString(),
		Level:   level,
		Message: message,
		Field:   field,
	}
	select {
	case a.out <- msg:
	default:
		a.log.Warn().Str("message", message).Msg("Agenda reply dropped")
	}
}

func (a *agendaSession) writeLoop(ctx context.Context) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	if !a.flush() {
		return
	}
	for {
		select {
		case <-ctx.Done():
			_ = a.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(wsWriteWait))
			return
		case <-a.view.Changes():
			if !a.flush() {
				return
			}
		case msg := <-a.out:
			if !a.write(msg.Type, msg) {
				return
			}
		case <-ticker.C:
			_ = a.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := a.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// flush sends whatever changed in the view since the last flush.
func (a *agendaSession) flush() bool {
	st := a.view.State()

	if !st.Day.IsZero() && (!a.started || st.Token != a.lastToken || st.Seq != a.lastSeq || st.Loading != a.lastLoad) {
		date := st.Day.Format(models.DateLayout)
		appointments := st.Appointments
		if appointments == nil {
			appointments = []*models.Appointment{}
		}
		if !a.write(msgSnapshot, snapshotMessage{Type: msgSnapshot, Token: st.Token, Date: date, Appointments: appointments, Loading: st.Loading}) {
			return false
		}
		a.started = true
		a.lastToken, a.lastSeq, a.lastLoad = st.Token, st.Seq, st.Loading
	}

	if st.DialogOpen != a.lastDialog {
		if !a.write(msgDialog, dialogMessage{Type: msgDialog, Open: st.DialogOpen}) {
			return false
		}
		a.lastDialog = st.DialogOpen
	}

	live := make(map[string]bool, len(st.Notifications))
	for _, n := range st.Notifications {
		live[n.ID] = true
		if a.sent[n.ID] {
			continue
		}
		if !a.write(msgNotification, notificationMessage{Type: msgNotification, ID: n.ID, Level: n.Level, Message: n.Message, Field: n.Field}) {
			return false
		}
	}
	a.sent = live
	return true
}

func (a *agendaSession) write(msgType string, msg any) bool {
	_ = a.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := a.conn.WriteJSON(msg); err != nil {
		a.log.Debug().Err(err).Str("type", msgType).Msg("Agenda stream write failed")
		return false
	}
	return true
}
