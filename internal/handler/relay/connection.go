package relay

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zhouzirui/z-journal/backend/internal/analysis/mood"
	"github.com/zhouzirui/z-journal/backend/internal/auth"
	guidedmodel "github.com/zhouzirui/z-journal/backend/internal/model/guided"
	"github.com/zhouzirui/z-journal/backend/internal/model/journal"
	model "github.com/zhouzirui/z-journal/backend/internal/model/session"
	"github.com/zhouzirui/z-journal/backend/internal/model/usage"
	"github.com/zhouzirui/z-journal/backend/internal/protocol"
	"github.com/zhouzirui/z-journal/backend/internal/service/guided"
	"github.com/zhouzirui/z-journal/backend/internal/service/session"
	usagesvc "github.com/zhouzirui/z-journal/backend/internal/service/usage"
)

// connection is one authenticated client socket. Frames are handled one at a
// time on the read loop; writes may also come from a realtime bridge pump.
type connection struct {
	h    *Handler
	conn *websocket.Conn
	user string

	writeMu sync.Mutex
}

func newConnection(h *Handler, conn *websocket.Conn, userID string) *connection {
	return &connection{h: h, conn: conn, user: userID}
}

func (c *connection) userID() string { return c.user }

func (c *connection) send(msg protocol.ServerMessage) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.conn.WriteJSON(msg); err != nil {
		log.Printf("[relay] write %s failed user=%s: %v", msg.MessageType(), c.user, err)
	}
}

func (c *connection) sendError(err *protocol.Error) {
	if err.Err != nil {
		log.Printf("[relay] %s user=%s: %v", err.Kind, c.user, err)
	}
	c.send(protocol.ErrorFrom(err))
}

func (c *connection) close(code int, reason string) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	closeWith(c.conn, code, reason)
}

// pingLoop 定期发送 ping 消息
func (c *connection) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.writeMu.Lock()
			err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// handleFrame decodes and runs one inbound frame to completion. It returns
// false when the connection must be closed.
func (c *connection) handleFrame(ctx context.Context, data []byte) bool {
	msg, decodeErr := protocol.DecodeClient(data)
	if decodeErr != nil {
		c.send(protocol.NewError(decodeErr.Code, decodeErr.Error(), true))
		return true
	}

	if _, ending := msg.(protocol.EndSession); !ending && c.enforceDuration(ctx) {
		return true
	}

	switch m := msg.(type) {
	case protocol.StartSession:
		c.startSession(ctx, m)
	case protocol.AudioChunk:
		c.audioChunk(m)
	case protocol.EndTurn:
		c.endTurn(ctx)
	case protocol.EndSession:
		c.endSession(ctx, m)
	case protocol.TokenRefresh:
		return c.tokenRefresh(ctx, m)
	case protocol.RestoreTranscript:
		c.restoreTranscript(m)
	}
	return true
}

func (c *connection) current() *session.Session {
	sess := c.h.deps.Registry.Get(c.user)
	if sess == nil || sess.Ended() {
		return nil
	}
	return sess
}

func (c *connection) requireSession() *session.Session {
	sess := c.current()
	if sess == nil {
		c.sendError(protocol.Protocol(protocol.CodeNoSession, "start a session first"))
	}
	return sess
}

// enforceDuration ends a session that has outlived the per-session cap and
// reports whether it did.
func (c *connection) enforceDuration(ctx context.Context) bool {
	limit := c.h.deps.MaxSessionDuration
	sess := c.current()
	if limit <= 0 || sess == nil {
		return false
	}
	if c.h.deps.Registry.Now().Sub(sess.StartTime) < limit {
		return false
	}
	log.Printf("[relay] session %s exceeded %s", sess.ID, limit)
	c.send(protocol.NewUsageLimit(usage.LimitSessionDuration, usagesvc.Suggestion(usage.LimitSessionDuration)))
	c.finish(ctx, sess, "session_duration")
	return true
}

func (c *connection) startSession(ctx context.Context, msg protocol.StartSession) {
	deps := c.h.deps
	if existing := c.current(); existing != nil {
		c.resume(ctx, existing)
		return
	}

	mode, err := deps.Router.Resolve(ctx, msg.Mode, msg.SessionType)
	if err != nil {
		c.sendError(protocol.Fatal(protocol.CodeSessionStartFailed, "could not choose a processing mode", err))
		return
	}
	if mode == model.ModeRealtime && (deps.Realtime == nil || !deps.Realtime.Enabled()) {
		log.Printf("[relay] realtime backend unavailable, using standard user=%s", c.user)
		mode = model.ModeStandard
	}

	sess, resumed, err := deps.Registry.Create(ctx, session.CreateParams{
		UserID:      c.user,
		Mode:        mode,
		SessionType: msg.SessionType,
	})
	var admission *session.AdmissionError
	switch {
	case errors.As(err, &admission):
		log.Printf("[relay] admission denied user=%s mode=%s limit=%s", c.user, mode, admission.Decision.LimitType)
		c.send(protocol.NewUsageLimit(admission.Decision.LimitType, admission.Decision.Suggestion))
		return
	case err != nil:
		c.sendError(protocol.Fatal(protocol.CodeSessionStartFailed, "the session could not be started", err))
		return
	case resumed:
		c.resume(ctx, sess)
		return
	}

	c.h.claim(sess.ID, c)
	snapshot := deps.Context.Load(ctx, c.user)
	sess.SetContext(snapshot)
	if state := guided.NewState(deps.Guided, msg.SessionType, snapshot, deps.Registry.Now()); state != nil {
		sess.SetGuided(state)
	}
	log.Printf("[relay] session started id=%s user=%s mode=%s type=%q guided=%t", sess.ID, c.user, sess.Mode, sess.SessionType, sess.IsGuided())

	if sess.Mode == model.ModeRealtime {
		bridge, err := deps.Realtime.Open(ctx, sess, c.send)
		if err != nil {
			c.finish(ctx, sess, "start_failed")
			c.sendError(protocol.Fatal(protocol.CodeSessionStartFailed, "the realtime backend is unavailable", err))
			return
		}
		bridge.BeginOnReady()
		return
	}

	c.send(protocol.NewSessionReady(sess.ID, sess.Mode, false))
	deps.Pipeline.Begin(ctx, sess, c.send)
}

// resume hands an existing session to this connection.
func (c *connection) resume(ctx context.Context, sess *session.Session) {
	c.h.claim(sess.ID, c)
	sess.Touch(c.h.deps.Registry.Now())

	if sess.Mode == model.ModeRealtime && c.h.deps.Realtime != nil {
		if bridge := c.h.deps.Realtime.Get(sess.ID); bridge != nil {
			bridge.Attach(c.send)
		} else {
			// A fresh bridge announces itself once the upstream session exists.
			if _, err := c.h.deps.Realtime.Open(ctx, sess, c.send); err != nil {
				c.sendError(protocol.Upstream(protocol.CodeRealtimeError, "the realtime backend is unavailable", err))
			}
			return
		}
	}
	log.Printf("[relay] session resumed id=%s user=%s", sess.ID, c.user)
	c.send(protocol.NewSessionReady(sess.ID, sess.Mode, true))
}

func (c *connection) audioChunk(msg protocol.AudioChunk) {
	sess := c.requireSession()
	if sess == nil {
		return
	}
	if sess.Mode == model.ModeRealtime {
		bridge := c.h.deps.Realtime.Get(sess.ID)
		if bridge == nil {
			c.sendError(protocol.Protocol(protocol.CodeRealtimeError, "the realtime connection is closed; please restart the session"))
			return
		}
		if err := bridge.AppendAudio(msg.Audio); err != nil {
			c.sendError(protocol.Upstream(protocol.CodeRealtimeError, "audio could not be forwarded", err))
		}
		return
	}

	if err := sess.AppendAudio(msg.Audio); err != nil {
		if errors.Is(err, session.ErrAudioBufferFull) {
			c.sendError(protocol.Protocol(protocol.CodeAudioBufferFull, "too much audio buffered; send end_turn"))
			return
		}
		c.sendError(protocol.Processing("audio could not be buffered", err))
		return
	}
	sess.Touch(c.h.deps.Registry.Now())
}

func (c *connection) endTurn(ctx context.Context) {
	sess := c.requireSession()
	if sess == nil {
		return
	}
	if sess.Mode == model.ModeRealtime {
		bridge := c.h.deps.Realtime.Get(sess.ID)
		if bridge == nil {
			c.sendError(protocol.Protocol(protocol.CodeRealtimeError, "the realtime connection is closed; please restart the session"))
			return
		}
		if err := bridge.Commit(); err != nil {
			c.sendError(protocol.Upstream(protocol.CodeRealtimeError, "the turn could not be committed", err))
		}
		return
	}

	err := c.h.deps.Pipeline.RunTurn(ctx, sess, c.send)
	if err == nil {
		return
	}
	var perr *protocol.Error
	if !errors.As(err, &perr) {
		perr = protocol.Processing("the turn could not be processed", err)
	}
	c.sendError(perr)
}

func (c *connection) endSession(ctx context.Context, msg protocol.EndSession) {
	sess := c.requireSession()
	if sess == nil {
		return
	}
	c.finish(ctx, sess, "client")

	if msg.SaveOptions == nil || !msg.SaveOptions.Save {
		return
	}
	entryID, err := c.save(ctx, sess, msg.SaveOptions)
	if err != nil {
		c.send(protocol.NewSessionSaved("", false))
		c.sendError(&protocol.Error{
			Kind:        protocol.KindProcessing,
			Code:        protocol.CodeSaveFailed,
			Message:     "the journal entry could not be saved",
			Recoverable: true,
			Err:         err,
		})
		return
	}
	c.send(protocol.NewSessionSaved(entryID, true))
}

// save stores the guided answers (or the transcript of a free session) as a
// journal entry.
func (c *connection) save(ctx context.Context, sess *session.Session, opts *protocol.SaveOptions) (string, error) {
	saver := c.h.deps.Saver
	if saver == nil {
		return "", errors.New("no entry saver configured")
	}
	now := c.h.deps.Registry.Now()
	entry := journal.NewEntry{
		UserID:      sess.UserID,
		Title:       strings.TrimSpace(opts.Title),
		Tags:        opts.Tags,
		Source:      "voice_" + string(sess.Mode),
		SessionType: sess.SessionType,
		CreatedAt:   now,
	}
	sess.WithGuided(func(state *guidedmodel.State) {
		entry.Content = guided.PlainText(state)
		if summary := guided.Summarize(state, now); summary != nil {
			entry.Summary = map[string]any{
				"responses":       summary.Responses,
				"durationSeconds": summary.DurationSeconds,
				"instructions":    summary.Instructions,
			}
			if entry.Title == "" {
				entry.Title = summary.Title
			}
		}
	})
	if strings.TrimSpace(entry.Content) == "" {
		entry.Content = sess.TranscriptText()
	}
	if strings.TrimSpace(entry.Content) == "" {
		return "", errors.New("nothing to save")
	}

	spoken := sess.SpokenBy(model.SpeakerUser)
	if sess.IsGuided() {
		spoken = entry.Content
	}
	if decision := mood.Analyze(spoken); decision.Mood != mood.Neutral {
		if entry.Summary == nil {
			entry.Summary = map[string]any{}
		}
		entry.Summary["mood"] = string(decision.Mood)
	}
	return saver.SaveEntry(ctx, entry)
}

// finish closes the bridge and ends the session so usage is recorded.
func (c *connection) finish(ctx context.Context, sess *session.Session, reason string) {
	c.h.forget(sess.ID)
	c.h.closeBridge(sess.ID)
	if _, err := c.h.deps.Registry.End(ctx, sess.UserID, reason); err != nil && !errors.Is(err, session.ErrSessionNotFound) {
		log.Printf("[relay] end session failed id=%s: %v", sess.ID, err)
	}
}

// tokenRefresh re-verifies the connection's identity. A token for another
// user is treated like an invalid one.
func (c *connection) tokenRefresh(ctx context.Context, msg protocol.TokenRefresh) bool {
	userID, err := c.h.deps.Verifier.Verify(ctx, msg.Token)
	if err == nil && userID == c.user {
		return true
	}
	if err == nil {
		err = auth.ErrInvalidToken
	}
	log.Printf("[relay] token refresh rejected user=%s: %v", c.user, err)
	c.send(protocol.NewError(protocol.CodeTokenInvalid, "the refreshed token is not valid for this connection", false))
	c.close(auth.CloseInvalidToken, "invalid token")
	return false
}

func (c *connection) restoreTranscript(msg protocol.RestoreTranscript) {
	sess := c.requireSession()
	if sess == nil {
		return
	}
	seq := sess.RestoreTranscript(msg.Content, msg.SequenceID)
	log.Printf("[relay] transcript restored session=%s sequence=%d", sess.ID, seq)
}
