// Package importer drives the conversational bulletin import. Every turn
// loads the session, works on a copy, and writes it back under optimistic
// concurrency; no session state lives in the process between turns.
package importer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MikeSquared-Agency/shiftbook/internal/apperr"
	"github.com/MikeSquared-Agency/shiftbook/internal/archive"
	"github.com/MikeSquared-Agency/shiftbook/internal/bulletin"
	"github.com/MikeSquared-Agency/shiftbook/internal/catalog"
	"github.com/MikeSquared-Agency/shiftbook/internal/conflict"
	"github.com/MikeSquared-Agency/shiftbook/internal/hermes"
	"github.com/MikeSquared-Agency/shiftbook/internal/llm"
	"github.com/MikeSquared-Agency/shiftbook/internal/normalize"
	"github.com/MikeSquared-Agency/shiftbook/internal/qa"
	"github.com/MikeSquared-Agency/shiftbook/internal/reconcile"
	"github.com/MikeSquared-Agency/shiftbook/internal/resolver"
	"github.com/MikeSquared-Agency/shiftbook/internal/schedule"
	"github.com/MikeSquared-Agency/shiftbook/internal/session"
	"github.com/MikeSquared-Agency/shiftbook/internal/structuring"
)

const pdfMIME = "application/pdf"

// Directory is the read-only agent directory.
type Directory interface {
	ListAgents(ctx context.Context) ([]resolver.Agent, error)
	GetAgent(ctx context.Context, id string) (*resolver.Agent, error)
}

// Structurer turns a prompt and the conversation so far into candidate entries.
type Structurer interface {
	Structure(ctx context.Context, req structuring.Request, prompt string) (*structuring.Result, error)
}

type Deps struct {
	Sessions   session.Store
	Schedule   schedule.Store
	Directory  Directory
	Reader     llm.DocumentReader
	Structurer Structurer
	Catalog    *catalog.Catalog
	Archive    archive.Archiver
	Events     *hermes.Emitter
	QA         *qa.Executor
	// Location is the zone "today" is taken in. Defaults to UTC.
	Location *time.Location
	Now      func() time.Time
	Logger   *slog.Logger
}

type Importer struct {
	sessions   session.Store
	schedule   schedule.Store
	directory  Directory
	reader     llm.DocumentReader
	structurer Structurer
	catalog    *catalog.Catalog
	normalizer *normalize.Normalizer
	reconciler *reconcile.Engine
	archive    archive.Archiver
	events     *hermes.Emitter
	qa         *qa.Executor
	loc        *time.Location
	now        func() time.Time
	logger     *slog.Logger
}

func New(d Deps) *Importer {
	im := &Importer{
		sessions:   d.Sessions,
		schedule:   d.Schedule,
		directory:  d.Directory,
		reader:     d.Reader,
		structurer: d.Structurer,
		catalog:    d.Catalog,
		normalizer: normalize.New(d.Catalog),
		reconciler: reconcile.New(d.Schedule, d.Logger),
		archive:    d.Archive,
		events:     d.Events,
		qa:         d.QA,
		loc:        d.Location,
		now:        d.Now,
		logger:     d.Logger,
	}
	if im.archive == nil {
		im.archive = archive.Inline{}
	}
	if im.events == nil {
		im.events = hermes.NewEmitter(nil, d.Logger)
	}
	if im.loc == nil {
		im.loc = time.UTC
	}
	if im.now == nil {
		im.now = time.Now
	}
	return im
}

// turn is the working state of one request.
type turn struct {
	sess  *session.Session
	user  session.UserTurn
	today schedule.Date
	// terminal is applied after the turn's messages are recorded, since a
	// terminal session accepts no further turns.
	terminal session.Status
	qa       *qa.Response
	events   []func()
}

// HandleTurn runs one import or Q&A turn.
//
// Validation errors and stale writes return a nil response and leave the
// session untouched. Any other failure is recorded in the session history as
// an assistant turn, with the session otherwise in its prior state; the error
// is then returned together with the response describing it.
func (im *Importer) HandleTurn(ctx context.Context, req TurnRequest) (*TurnResponse, error) {
	if err := Validate(req); err != nil {
		return nil, err
	}

	sess, created, err := im.load(ctx, req)
	if err != nil {
		return nil, err
	}
	if sess.OwnerID != req.AgentID {
		return nil, apperr.Validation(fmt.Sprintf("session %s belongs to another agent", sess.ID))
	}
	if sess.IsTerminal() {
		return nil, apperr.ConflictState(fmt.Sprintf("session %s is %s and accepts no further turns", sess.ID, sess.Status))
	}
	if len(req.PDFBytes) > 0 && (sess.Status != session.StatusNew || len(sess.Candidates) > 0) {
		return nil, apperr.Validation("a bulletin import is already in progress for this conversation")
	}

	now := im.now()
	t := &turn{
		sess:  sess.Clone(),
		user:  session.UserTurn{Text: req.Message, At: now},
		today: schedule.DateOf(now.In(im.loc)),
	}
	if req.QuickReply != nil && req.Message == "" {
		t.user.Text = quickReplyText(*req.QuickReply)
	}

	reply, err := im.dispatch(ctx, t, req)
	if err != nil && apperr.Is(err, apperr.KindValidation) {
		return nil, err
	}

	target := t.sess
	if err != nil {
		im.logger.Error("turn failed",
			"session_id", sess.ID,
			"status", sess.Status,
			"kind", apperr.GetKind(err).String(),
			"error", err,
		)
		target = sess
		reply = errorTurn(err, now)
		t.terminal = ""
		t.events = nil
		t.qa = nil
	}

	if appendErr := target.Append(t.user); appendErr != nil {
		return nil, appendErr
	}
	if appendErr := target.Append(reply); appendErr != nil {
		return nil, appendErr
	}
	if t.terminal != "" {
		if trErr := target.Transition(t.terminal); trErr != nil {
			return nil, trErr
		}
	}
	target.UpdatedAt = now

	if created {
		if saveErr := im.sessions.Create(ctx, target); saveErr != nil {
			return nil, fmt.Errorf("create session: %w", saveErr)
		}
	} else if saveErr := im.sessions.Save(ctx, target, sess.Version); saveErr != nil {
		return nil, saveErr
	}

	for _, emit := range t.events {
		emit()
	}

	resp := im.response(target, reply, t.qa)
	if err != nil {
		resp.Success = false
		resp.Error = apperr.GetKind(err).String()
		return resp, err
	}
	return resp, nil
}

func (im *Importer) load(ctx context.Context, req TurnRequest) (*session.Session, bool, error) {
	if req.ConversationID == "" {
		sess := session.New(req.AgentID, im.now())
		sess.AgentID = req.AgentID
		return sess, true, nil
	}
	sess, err := im.sessions.Get(ctx, req.ConversationID)
	if err != nil {
		return nil, false, err
	}
	return sess, false, nil
}

func (im *Importer) dispatch(ctx context.Context, t *turn, req TurnRequest) (session.AssistantTurn, error) {
	switch {
	case len(req.PDFBytes) > 0:
		return im.handlePDF(ctx, t, req.PDFBytes)
	case req.QuickReply != nil:
		return im.handleQuickReply(ctx, t, *req.QuickReply)
	default:
		return im.handleMessage(ctx, t, req.Message)
	}
}

// handlePDF archives the bulletin and reads its text concurrently. An archive
// failure only costs the stored copy; a read failure fails the turn.
func (im *Importer) handlePDF(ctx context.Context, t *turn, pdf []byte) (session.AssistantTurn, error) {
	var key, text string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		k, err := im.archive.Put(gctx, t.sess.OwnerID, pdf, pdfMIME)
		if err != nil {
			im.logger.Warn("bulletin archive failed, keeping inline reference", "session_id", t.sess.ID, "error", err)
			k, _ = archive.Inline{}.Put(gctx, t.sess.OwnerID, pdf, pdfMIME)
		}
		key = k
		return nil
	})
	g.Go(func() error {
		out, err := im.reader.ReadDocument(gctx, pdf, pdfMIME)
		if err != nil {
			return external("extract", "document extraction failed", err)
		}
		text = out
		return nil
	})
	err := g.Wait()
	t.user.Attachment = &session.Attachment{Key: key, ContentType: pdfMIME, Size: len(pdf)}
	if err != nil {
		return session.AssistantTurn{}, err
	}
	if text == "" {
		return session.AssistantTurn{}, apperr.ExternalService("document extraction returned no text", nil)
	}

	im.logger.Info("bulletin read", "session_id", t.sess.ID, "archive_key", key, "text_len", len(text))
	t.sess.SourceKey = key
	t.sess.SourceText = text
	return im.structure(ctx, t, structuring.BulletinPrompt(t.today, text))
}

// handleMessage routes free text. Before any bulletin is loaded the text is a
// calendar question; afterwards it is a correction of the candidate set.
func (im *Importer) handleMessage(ctx context.Context, t *turn, message string) (session.AssistantTurn, error) {
	if t.sess.Status == session.StatusNew {
		return im.answer(ctx, t, message)
	}
	return im.structure(ctx, t, structuring.CorrectionPrompt(t.sess.Candidates, message))
}

func (im *Importer) answer(ctx context.Context, t *turn, question string) (session.AssistantTurn, error) {
	if im.qa == nil {
		return session.AssistantTurn{}, apperr.Internal("calendar questions are not available", nil)
	}
	resp, err := im.qa.Answer(ctx, t.sess.OwnerID, question, t.today)
	if err != nil {
		return session.AssistantTurn{}, apperr.Internal("answer calendar question", err)
	}
	t.qa = resp
	return session.AssistantTurn{Text: resp.Message, At: im.now()}, nil
}

// structure runs the structuring model and replaces the candidate set
// wholesale with its normalized answer.
func (im *Importer) structure(ctx context.Context, t *turn, prompt string) (session.AssistantTurn, error) {
	res, err := im.structurer.Structure(ctx, structuring.Request{
		History:    llmHistory(t.sess.History),
		Candidates: t.sess.Candidates,
	}, prompt)
	if err != nil {
		return session.AssistantTurn{}, external("structure", "structuring failed", err)
	}

	sess := t.sess
	if err := sess.SetCandidates(im.normalizer.NormalizeAll(res.Services)); err != nil {
		return session.AssistantTurn{}, err
	}
	sess.Questions = res.Questions
	sess.Conflicts = nil
	im.flagCollisions(sess)
	mergeMetadata(&sess.Metadata, res.Metadata)
	im.detectAgent(ctx, sess)

	if sess.Status == session.StatusNew {
		if err := sess.Transition(session.StatusInProgress); err != nil {
			return session.AssistantTurn{}, err
		}
	}
	next := session.StatusInProgress
	if res.ReadyToImport && !sess.HasQuestions() && len(sess.Candidates) > 0 {
		next = session.StatusReadyToImport
	}
	if err := sess.Transition(next); err != nil {
		return session.AssistantTurn{}, err
	}

	msg := res.Message
	if msg == "" {
		msg = fmt.Sprintf("J'ai relevé %d services.", len(sess.Candidates))
	}
	payload := &session.Payload{
		Services:      sess.Candidates,
		Questions:     sess.Questions,
		ReadyToImport: sess.Status == session.StatusReadyToImport,
	}
	if res.ParseErr != nil {
		im.logger.Warn("structuring response recovered", "session_id", sess.ID, "error", res.ParseErr)
		payload.ErrorKind = apperr.KindParse.String()
	}

	im.logger.Info("candidates updated",
		"session_id", sess.ID,
		"candidates", len(sess.Candidates),
		"questions", len(sess.Questions),
		"status", sess.Status,
	)
	return session.AssistantTurn{Text: msg, Payload: payload, At: im.now()}, nil
}

// flagCollisions raises a question on every candidate that falls on the same
// effective date as an earlier one. Questions from a previous check are
// replaced, so the set always reflects the current candidates.
func (im *Importer) flagCollisions(sess *session.Session) {
	questions := sess.Questions[:0:0]
	for _, q := range sess.Questions {
		if q.Kind != bulletin.QuestionDateCollision {
			questions = append(questions, q)
		}
	}

	collisions := conflict.Collisions(sess.Candidates)
	if len(collisions) > 0 {
		sess.Candidates = append([]bulletin.CandidateEntry(nil), sess.Candidates...)
	}
	for _, col := range collisions {
		c := &sess.Candidates[col.Index]
		other := sess.Candidates[col.With]
		if c.Confidence != bulletin.ConfidenceUserCorrected {
			c.Confidence = bulletin.ConfidenceLow
		}
		questions = append(questions, bulletin.Question{
			Index: col.Index,
			Kind:  bulletin.QuestionDateCollision,
			Text: fmt.Sprintf("Le %s porte déjà %s (ligne %s du %s). Que faire de la ligne %s du %s ?",
				col.Date, im.serviceLabel(other.ServiceCode), other.RawCode, displayed(other),
				c.RawCode, displayed(*c)),
			Options: []bulletin.Option{
				{Label: fmt.Sprintf("Ignorer %s, garder %s", c.RawCode, other.RawCode), Value: ValueDrop},
				{Label: fmt.Sprintf("Garder %s, retirer %s", c.RawCode, other.RawCode), Value: ValueReplace},
			},
		})
	}
	if len(collisions) > 0 {
		im.logger.Info("candidates share a date", "session_id", sess.ID, "collisions", len(collisions))
	}
	sess.Questions = questions
}

func displayed(c bulletin.CandidateEntry) schedule.Date {
	if c.DisplayedDate.IsZero() {
		return c.Date
	}
	return c.DisplayedDate
}

// detectAgent resolves the name read on the bulletin against the directory.
// It only informs the caller; the import target stays the session owner.
func (im *Importer) detectAgent(ctx context.Context, sess *session.Session) {
	name := sess.Metadata.AgentName
	if name == "" || im.directory == nil {
		return
	}
	if sess.DetectedAgent != nil && sess.DetectedAgent.Query == name {
		return
	}
	agents, err := im.directory.ListAgents(ctx)
	if err != nil {
		im.logger.Warn("agent directory unavailable", "session_id", sess.ID, "error", err)
		return
	}
	res := resolver.Resolve(name, agents, sess.OwnerID)
	sess.DetectedAgent = &res
	if res.Mismatch {
		im.logger.Info("bulletin agent differs from calendar owner",
			"session_id", sess.ID,
			"owner", sess.OwnerID,
			"detected", res.Agent.ID,
		)
	}
}

func mergeMetadata(dst *bulletin.AgentMetadata, src bulletin.AgentMetadata) {
	if src.AgentName != "" {
		dst.AgentName = src.AgentName
	}
	if src.PeriodStart != "" {
		dst.PeriodStart = src.PeriodStart
	}
	if src.PeriodEnd != "" {
		dst.PeriodEnd = src.PeriodEnd
	}
}

// external marks adapter failures that did not already carry a kind.
func external(op, msg string, err error) error {
	if apperr.GetKind(err) != apperr.KindUnknown {
		return err
	}
	return apperr.ExternalService(msg, err).WithOp(op)
}

func (im *Importer) response(sess *session.Session, reply session.AssistantTurn, qaResp *qa.Response) *TurnResponse {
	resp := &TurnResponse{
		Success:        true,
		ConversationID: sess.ID,
		Status:         sess.Status,
		Message:        reply.Text,
		QAResponse:     qaResp,
	}
	if qaResp != nil {
		return resp
	}
	resp.Services = sess.Candidates
	resp.Questions = sess.Questions
	resp.ReadyToImport = sess.Status == session.StatusReadyToImport
	resp.Conflicts = sess.Conflicts
	resp.DetectedAgent = sess.DetectedAgent
	resp.AgentMismatch = sess.DetectedAgent != nil && sess.DetectedAgent.Mismatch
	if r := sess.ImportResult; r != nil {
		resp.ImportResult = &ImportSummary{
			Count:    r.Imported,
			Success:  sess.Status == session.StatusImported,
			Skipped:  r.Skipped,
			Strategy: string(r.Strategy),
		}
	}
	return resp
}
