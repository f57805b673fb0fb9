package importer

import (
	"context"
	"fmt"
	"strings"

	"github.com/MikeSquared-Agency/shiftbook/internal/apperr"
	"github.com/MikeSquared-Agency/shiftbook/internal/bulletin"
	"github.com/MikeSquared-Agency/shiftbook/internal/conflict"
	"github.com/MikeSquared-Agency/shiftbook/internal/hermes"
	"github.com/MikeSquared-Agency/shiftbook/internal/reconcile"
	"github.com/MikeSquared-Agency/shiftbook/internal/schedule"
	"github.com/MikeSquared-Agency/shiftbook/internal/session"
	"github.com/MikeSquared-Agency/shiftbook/internal/structuring"
)

const retryInstruction = "Reprends l'analyse complète et renvoie la liste des services au format demandé."

func (im *Importer) handleQuickReply(ctx context.Context, t *turn, qr QuickReply) (session.AssistantTurn, error) {
	switch qr.Type {
	case ReplySelectCode:
		if qr.ServiceIndex == nil {
			switch qr.Value {
			case ValueRetry:
				return im.retry(ctx, t)
			case ValueCancel:
				return im.cancel(t)
			}
			return session.AssistantTurn{}, apperr.Validation("service_index is required for select_code")
		}
		switch qr.Value {
		case ValueDrop, ValueReplace:
			return im.resolveCollision(t, *qr.ServiceIndex, qr.Value)
		}
		return im.selectCode(t, *qr.ServiceIndex, qr.Value)
	case ReplyConfirmImport:
		return im.confirm(ctx, t)
	case ReplyResolveConflicts:
		strategy := qr.ConflictStrategy
		if strategy == "" {
			strategy = qr.Value
		}
		return im.resolveConflicts(ctx, t, strategy)
	case ReplyCancel:
		return im.cancel(t)
	}
	return session.AssistantTurn{}, apperr.Validation(fmt.Sprintf("unknown quick reply type %q", qr.Type))
}

// selectCode applies the user's answer to the question about one candidate.
// value is either a bulletin code, which also sets the poste, or a canonical
// service code.
func (im *Importer) selectCode(t *turn, index int, value string) (session.AssistantTurn, error) {
	sess := t.sess
	if index < 0 || index >= len(sess.Candidates) {
		return session.AssistantTurn{}, apperr.Validation(fmt.Sprintf("service_index %d is out of range (%d candidates)", index, len(sess.Candidates)))
	}

	value = strings.TrimSpace(value)
	var corr bulletin.Correction
	if e, ok := im.catalog.Lookup(value); ok {
		corr.ServiceCode = &e.ServiceCode
		corr.PosteCode = &e.PosteCode
	} else if im.catalog.IsKnownService(value) {
		corr.ServiceCode = &value
	} else {
		return session.AssistantTurn{}, apperr.Validation(fmt.Sprintf("unknown service code %q", value))
	}

	corrected := im.normalizer.Normalize(sess.Candidates[index].Apply(corr))
	candidates := append([]bulletin.CandidateEntry(nil), sess.Candidates...)
	candidates[index] = corrected
	if err := sess.SetCandidates(candidates); err != nil {
		return session.AssistantTurn{}, err
	}

	remaining := sess.Questions[:0:0]
	for _, q := range sess.Questions {
		if q.Index != index {
			remaining = append(remaining, q)
		}
	}
	sess.Questions = remaining
	sess.Conflicts = nil
	im.flagCollisions(sess)

	im.logger.Info("candidate corrected", "session_id", sess.ID, "index", index, "service_code", corrected.ServiceCode, "date", corrected.Date)
	return im.settle(sess, fmt.Sprintf("Service du %s corrigé : %s.", corrected.Date, im.serviceLabel(corrected.ServiceCode)))
}

// resolveCollision answers a date collision question: drop removes the entry
// at index, replace removes the other entries on its date.
func (im *Importer) resolveCollision(t *turn, index int, value string) (session.AssistantTurn, error) {
	sess := t.sess
	if index < 0 || index >= len(sess.Candidates) {
		return session.AssistantTurn{}, apperr.Validation(fmt.Sprintf("service_index %d is out of range (%d candidates)", index, len(sess.Candidates)))
	}
	target := sess.Candidates[index]

	removed := make(map[int]bool)
	if value == ValueDrop {
		removed[index] = true
	} else {
		for i, c := range sess.Candidates {
			if i != index && c.Date == target.Date {
				removed[i] = true
			}
		}
		if len(removed) == 0 {
			return session.AssistantTurn{}, apperr.Validation(fmt.Sprintf("no other entry on %s to replace", target.Date))
		}
	}

	moved := make(map[int]int, len(sess.Candidates))
	kept := make([]bulletin.CandidateEntry, 0, len(sess.Candidates)-len(removed))
	for i, c := range sess.Candidates {
		if removed[i] {
			continue
		}
		moved[i] = len(kept)
		kept = append(kept, c)
	}
	questions := sess.Questions[:0:0]
	for _, q := range sess.Questions {
		if q.Index < 0 {
			questions = append(questions, q)
			continue
		}
		if n, ok := moved[q.Index]; ok {
			q.Index = n
			questions = append(questions, q)
		}
	}
	if err := sess.SetCandidates(kept); err != nil {
		return session.AssistantTurn{}, err
	}
	sess.Questions = questions
	sess.Conflicts = nil
	im.flagCollisions(sess)

	im.logger.Info("date collision resolved", "session_id", sess.ID, "index", index, "action", value, "removed", len(removed))
	msg := fmt.Sprintf("Ligne %s du %s retirée.", target.RawCode, displayed(target))
	if value == ValueReplace {
		msg = fmt.Sprintf("Ligne %s conservée pour le %s.", target.RawCode, target.Date)
	}
	return im.settle(sess, msg)
}

// settle moves the session to READY_TO_IMPORT when nothing is left to answer,
// and to IN_PROGRESS otherwise.
func (im *Importer) settle(sess *session.Session, msg string) (session.AssistantTurn, error) {
	next := session.StatusInProgress
	if !sess.HasQuestions() && len(sess.Candidates) > 0 {
		next = session.StatusReadyToImport
	}
	if err := sess.Transition(next); err != nil {
		return session.AssistantTurn{}, err
	}

	if next == session.StatusReadyToImport {
		msg += " Tout est prêt, vous pouvez confirmer l'import."
	} else {
		msg += fmt.Sprintf(" Il reste %d question(s).", len(sess.Questions))
	}
	return session.AssistantTurn{
		Text: msg,
		Payload: &session.Payload{
			Services:      sess.Candidates,
			Questions:     sess.Questions,
			ReadyToImport: next == session.StatusReadyToImport,
		},
		At: im.now(),
	}, nil
}

// retry reruns structuring after an unreadable model answer: from the
// bulletin text when nothing was extracted, otherwise from the current set.
func (im *Importer) retry(ctx context.Context, t *turn) (session.AssistantTurn, error) {
	if t.sess.Status == session.StatusNew {
		return session.AssistantTurn{}, apperr.ConflictState("nothing to analyse yet: send a bulletin first")
	}
	if len(t.sess.Candidates) == 0 && t.sess.SourceText != "" {
		return im.structure(ctx, t, structuring.BulletinPrompt(t.today, t.sess.SourceText))
	}
	return im.structure(ctx, t, structuring.CorrectionPrompt(t.sess.Candidates, retryInstruction))
}

// confirm checks the candidates against the calendar. Without conflicts the
// import is committed at once; otherwise the conflicts are attached and the
// session waits for a strategy.
func (im *Importer) confirm(ctx context.Context, t *turn) (session.AssistantTurn, error) {
	sess := t.sess
	if sess.Status != session.StatusReadyToImport || sess.HasQuestions() {
		return session.AssistantTurn{}, apperr.ConflictState(fmt.Sprintf("cannot confirm an import while the session is %s", sess.Status))
	}
	if _, err := im.directory.GetAgent(ctx, sess.AgentID); err != nil {
		return session.AssistantTurn{}, err
	}

	if col := conflict.Collisions(sess.Candidates); len(col) > 0 {
		return session.AssistantTurn{}, apperr.ConflictState(fmt.Sprintf("%d entries share a date with another (first on %s)", len(col), col[0].Date))
	}

	span, ok := conflict.Span(sess.Candidates)
	if !ok {
		return session.AssistantTurn{}, apperr.ConflictState("no candidate entries to import")
	}
	persisted, err := im.schedule.Query(ctx, sess.AgentID, span, schedule.Filter{})
	if err != nil {
		return session.AssistantTurn{}, apperr.Internal("read calendar", err)
	}

	conflicts := conflict.Detect(sess.Candidates, persisted)
	if len(conflicts) == 0 {
		return im.commit(ctx, t, reconcile.OverwriteAll, nil)
	}

	if err := sess.Transition(session.StatusReadyToImport); err != nil {
		return session.AssistantTurn{}, err
	}
	sess.Conflicts = conflicts

	dates := make([]string, len(conflicts))
	lines := make([]string, len(conflicts))
	for i, c := range conflicts {
		dates[i] = c.Date.String()
		lines[i] = "- " + c.Describe()
	}
	ev := hermes.ImportConflicts{SessionID: sess.ID, AgentID: sess.AgentID, Dates: dates, At: im.now()}
	t.events = append(t.events, func() { im.events.Conflicts(ev) })

	im.logger.Info("import conflicts detected", "session_id", sess.ID, "conflicts", len(conflicts))
	msg := fmt.Sprintf("%d jour(s) déjà renseigné(s) diffèrent du bulletin :\n%s\nÉcraser tout (overwrite_all) ou conserver l'existant (skip_existing) ?",
		len(conflicts), strings.Join(lines, "\n"))
	return session.AssistantTurn{
		Text: msg,
		Payload: &session.Payload{
			Services:      sess.Candidates,
			ReadyToImport: true,
			Conflicts:     conflicts,
		},
		At: im.now(),
	}, nil
}

func (im *Importer) resolveConflicts(ctx context.Context, t *turn, raw string) (session.AssistantTurn, error) {
	sess := t.sess
	if sess.Status != session.StatusReadyToImport || len(sess.Conflicts) == 0 {
		return session.AssistantTurn{}, apperr.ConflictState(fmt.Sprintf("no conflicts awaiting a strategy (session is %s)", sess.Status))
	}
	strategy, err := reconcile.ParseStrategy(raw)
	if err != nil {
		return session.AssistantTurn{}, apperr.Validation(err.Error())
	}
	if _, err := im.directory.GetAgent(ctx, sess.AgentID); err != nil {
		return session.AssistantTurn{}, err
	}
	return im.commit(ctx, t, strategy, sess.Conflicts)
}

// commit writes the candidates. The IMPORTED transition is checked here and
// applied once the turn is recorded.
func (im *Importer) commit(ctx context.Context, t *turn, strategy reconcile.Strategy, conflicts []conflict.Conflict) (session.AssistantTurn, error) {
	sess := t.sess
	if !session.CanTransition(sess.Status, session.StatusImported) {
		return session.AssistantTurn{}, apperr.ConflictState(fmt.Sprintf("cannot import from %s", sess.Status))
	}

	res, err := im.reconciler.Apply(ctx, sess.AgentID, sess.Candidates, strategy, conflicts)
	if err != nil {
		return session.AssistantTurn{}, apperr.Internal("commit import", err)
	}
	sess.ImportResult = &res
	t.terminal = session.StatusImported

	ev := hermes.ImportCommitted{
		SessionID: sess.ID,
		AgentID:   sess.AgentID,
		Imported:  res.Imported,
		Skipped:   res.Skipped,
		Strategy:  string(res.Strategy),
		At:        im.now(),
	}
	t.events = append(t.events, func() { im.events.Committed(ev) })

	im.logger.Info("import committed",
		"session_id", sess.ID,
		"agent_id", sess.AgentID,
		"imported", res.Imported,
		"skipped", res.Skipped,
		"strategy", res.Strategy,
	)
	msg := fmt.Sprintf("%d service(s) importé(s) dans le calendrier.", res.Imported)
	if res.Skipped > 0 {
		msg += fmt.Sprintf(" %d jour(s) existant(s) conservé(s).", res.Skipped)
	}
	return session.AssistantTurn{
		Text:    msg,
		Payload: &session.Payload{ImportResult: &res},
		At:      im.now(),
	}, nil
}

func (im *Importer) cancel(t *turn) (session.AssistantTurn, error) {
	sess := t.sess
	if !session.CanTransition(sess.Status, session.StatusCancelled) {
		return session.AssistantTurn{}, apperr.ConflictState(fmt.Sprintf("cannot cancel from %s", sess.Status))
	}
	t.terminal = session.StatusCancelled

	ev := hermes.ImportCancelled{SessionID: sess.ID, AgentID: sess.AgentID, At: im.now()}
	t.events = append(t.events, func() { im.events.Cancelled(ev) })
	im.logger.Info("import cancelled", "session_id", sess.ID)
	return session.AssistantTurn{Text: "Import annulé. Aucun service n'a été enregistré.", At: im.now()}, nil
}

func (im *Importer) serviceLabel(code string) string {
	if s, ok := im.catalog.Service(code); ok {
		return fmt.Sprintf("%s (%s)", s.Label, code)
	}
	return code
}
