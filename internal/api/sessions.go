package api

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/MrWong99/podsync/internal/export"
	"github.com/MrWong99/podsync/internal/session"
	"github.com/MrWong99/podsync/pkg/sentiment"
	"github.com/MrWong99/podsync/pkg/words"
)

// errBadRequest marks malformed request input.
var errBadRequest = errors.New("api: bad request")

// maxTranscriptBytes caps the size of an uploaded transcript.
const maxTranscriptBytes = 8 << 20

func badRequest(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errBadRequest, fmt.Sprintf(format, args...))
}

func bindJSON(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		abort(c, badRequest("decode body: %v", err))
		return false
	}
	return true
}

func intParam(c *gin.Context, name string) (int, bool) {
	n, err := strconv.Atoi(c.Param(name))
	if err != nil {
		abort(c, badRequest("%s must be an integer", name))
		return 0, false
	}
	return n, true
}

func (s *Server) createSession(c *gin.Context) {
	sess, err := s.sessions.Create()
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": sess.ID()})
}

func (s *Server) listSessions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"sessions": s.sessions.List()})
}

func (s *Server) deleteSession(c *gin.Context) {
	id := c.Param("id")
	if err := s.sessions.Delete(id); err != nil {
		abort(c, err)
		return
	}
	s.forgetProject(id)
	c.Status(http.StatusNoContent)
}

// transcriptFormat picks the transcript decoder from the request
// Content-Type. Plain text is the native bracketed format.
func transcriptFormat(contentType string) (export.Format, bool) {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return "", false
	}
	switch mt {
	case "application/x-subrip", "text/srt":
		return export.SRT, true
	case "text/vtt":
		return export.VTT, true
	}
	return "", false
}

func (s *Server) loadTranscript(c *gin.Context) {
	sess := s.session(c)
	if sess == nil {
		return
	}
	body := io.LimitReader(c.Request.Body, maxTranscriptBytes)

	var text string
	if f, ok := transcriptFormat(c.GetHeader("Content-Type")); ok {
		t, err := export.ToTranscript(body, f)
		if err != nil {
			abort(c, badRequest("import %s: %v", f, err))
			return
		}
		text = t
	} else {
		raw, err := io.ReadAll(body)
		if err != nil {
			abort(c, badRequest("read body: %v", err))
			return
		}
		text = string(raw)
	}

	snap := sess.LoadTranscript(text)
	c.JSON(http.StatusOK, gin.H{
		"sentences": snap.Sentences,
		"words":     snap.Words,
		"speakers":  snap.Speakers,
	})
}

func (s *Server) loadAudio(c *gin.Context) {
	sess := s.session(c)
	if sess == nil {
		return
	}
	var req struct {
		Ref string `json:"ref" binding:"required"`
	}
	if !bindJSON(c, &req) {
		return
	}
	sess.LoadAudio(req.Ref)
	c.JSON(http.StatusOK, gin.H{"audio_ref": req.Ref})
}

func (s *Server) getWords(c *gin.Context) {
	if sess := s.session(c); sess != nil {
		c.JSON(http.StatusOK, sess.Snapshot().Words)
	}
}

func (s *Server) getSpeakers(c *gin.Context) {
	if sess := s.session(c); sess != nil {
		c.JSON(http.StatusOK, sess.Snapshot().Speakers)
	}
}

func (s *Server) getState(c *gin.Context) {
	if sess := s.session(c); sess != nil {
		c.JSON(http.StatusOK, sess.State())
	}
}

func (s *Server) analyze(c *gin.Context) {
	sess := s.session(c)
	if sess == nil {
		return
	}
	if err := sess.Analyze(c.Request.Context()); err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sentiment": sess.Snapshot().Sentiment})
}

func (s *Server) dismissError(c *gin.Context) {
	if sess := s.session(c); sess != nil {
		sess.DismissError()
		c.Status(http.StatusNoContent)
	}
}

func (s *Server) setSentiment(c *gin.Context) {
	sess := s.session(c)
	if sess == nil {
		return
	}
	i, ok := intParam(c, "sentence")
	if !ok {
		return
	}
	var req struct {
		Sentiment string `json:"sentiment" binding:"required"`
	}
	if !bindJSON(c, &req) {
		return
	}
	label, err := sentiment.ParseLabel(strings.ToLower(req.Sentiment))
	if err != nil {
		abort(c, badRequest("%v", err))
		return
	}
	if err := sess.SetSentiment(i, label); err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, sess.Snapshot().Sentiment[i])
}

func (s *Server) renameWord(c *gin.Context) {
	sess := s.session(c)
	if sess == nil {
		return
	}
	i, ok := intParam(c, "word")
	if !ok {
		return
	}
	var req struct {
		Word string `json:"word"`
	}
	if !bindJSON(c, &req) {
		return
	}
	respondWord(c, sess, i, sess.RenameWord(i, req.Word))
}

func (s *Server) setAnimation(c *gin.Context) {
	sess := s.session(c)
	if sess == nil {
		return
	}
	i, ok := intParam(c, "word")
	if !ok {
		return
	}
	var a words.Animation
	if !bindJSON(c, &a) {
		return
	}
	respondWord(c, sess, i, sess.SetAnimation(i, a))
}

func (s *Server) setEnhancement(c *gin.Context) {
	sess := s.session(c)
	if sess == nil {
		return
	}
	i, ok := intParam(c, "word")
	if !ok {
		return
	}
	var e words.Enhancement
	if !bindJSON(c, &e) {
		return
	}
	respondWord(c, sess, i, sess.SetEnhancement(i, e))
}

// respondWord writes the edited word, or err if the edit failed.
func respondWord(c *gin.Context, sess *session.Session, i int, err error) {
	if err != nil {
		abort(c, err)
		return
	}
	ws := sess.Snapshot().Words
	if i >= len(ws) {
		// The transcript was replaced right after the edit.
		c.Status(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, ws[i])
}

func (s *Server) updateSpeaker(c *gin.Context) {
	sess := s.session(c)
	if sess == nil {
		return
	}
	var req struct {
		DisplayName string `json:"display_name"`
		Photo       string `json:"photo"`
	}
	if !bindJSON(c, &req) {
		return
	}
	sp, err := sess.UpdateSpeaker(c.Param("name"), req.DisplayName, req.Photo)
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, sp)
}

func (s *Server) updateSettings(c *gin.Context) {
	sess := s.session(c)
	if sess == nil {
		return
	}
	var req struct {
		Tracking  *bool    `json:"tracking"`
		Intensity *float64 `json:"intensity"`
		DarkTheme *bool    `json:"dark_theme"`
	}
	if !bindJSON(c, &req) {
		return
	}
	if req.Tracking != nil {
		sess.SetTracking(*req.Tracking)
	}
	if req.Intensity != nil {
		sess.SetIntensity(*req.Intensity)
	}
	if req.DarkTheme != nil {
		sess.SetTheme(*req.DarkTheme)
	}
	c.JSON(http.StatusOK, sess.State())
}

func (s *Server) exportSession(c *gin.Context) {
	sess := s.session(c)
	if sess == nil {
		return
	}
	f, err := export.ParseFormat(c.Query("format"))
	if err != nil {
		abort(c, err)
		return
	}
	g, err := export.ParseGranularity(c.Query("granularity"))
	if err != nil {
		abort(c, err)
		return
	}
	snap := sess.Snapshot()
	if len(snap.Words) == 0 {
		abort(c, badRequest("nothing to export: no transcript loaded"))
		return
	}

	var buf strings.Builder
	if err := export.Write(&buf, snap.Words, snap.Speakers, f, g); err != nil {
		abort(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.%s"`, sess.ID(), f))
	c.Data(http.StatusOK, export.ContentType(f), []byte(buf.String()))
}
