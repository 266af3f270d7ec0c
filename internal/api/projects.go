package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/MrWong99/podsync/internal/session"
)

var errProjectNotFound = errors.New("api: project not found")

// defaultProjectName is used when a session is saved without a name.
const defaultProjectName = "Untitled"

// saveSession writes the session to the store and keeps it autosaved from
// then on. The first save assigns a project id unless one is supplied.
func (s *Server) saveSession(c *gin.Context) {
	sess := s.session(c)
	if sess == nil {
		return
	}
	var req struct {
		ProjectID string `json:"project_id"`
		Name      string `json:"name"`
	}
	if c.Request.ContentLength != 0 && !bindJSON(c, &req) {
		return
	}

	s.mu.Lock()
	ref, known := s.projects[sess.ID()]
	s.mu.Unlock()
	if req.ProjectID != "" {
		ref.id = req.ProjectID
	}
	if req.Name != "" {
		ref.name = req.Name
	}
	if ref.id == "" {
		ref.id = uuid.NewString()
	}
	if ref.name == "" {
		ref.name = defaultProjectName
	}

	if err := s.store.Save(c.Request.Context(), sess.Project(ref.id, ref.name)); err != nil {
		abort(c, err)
		return
	}
	s.attachAutosaver(sess, ref)

	logger(c).Info("session saved",
		"project_id", ref.id,
		"first_save", !known,
	)
	c.JSON(http.StatusOK, gin.H{"project_id": ref.id, "name": ref.name})
}

// attachAutosaver remembers ref for the session and starts periodic saves.
func (s *Server) attachAutosaver(sess *session.Session, ref projectRef) {
	s.mu.Lock()
	s.projects[sess.ID()] = ref
	s.mu.Unlock()

	a := session.NewAutosaver(session.AutosaverConfig{
		Store:     s.store,
		Session:   sess,
		ProjectID: ref.id,
		Name:      ref.name,
		Interval:  s.autosaveInterval,
	})
	// The autosaver lives as long as the session, not the request.
	sess.SetAutosaver(context.Background(), a)
}

func (s *Server) listProjects(c *gin.Context) {
	list, err := s.store.List(c.Request.Context())
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"projects": list})
}

// openProject restores a saved project into a new session.
func (s *Server) openProject(c *gin.Context) {
	pid := c.Param("pid")
	p, err := s.store.Load(c.Request.Context(), pid)
	if err != nil {
		abort(c, err)
		return
	}
	if p == nil {
		abort(c, errProjectNotFound)
		return
	}

	sess, err := s.sessions.Create()
	if err != nil {
		abort(c, err)
		return
	}
	snap := sess.RestoreProject(p)
	s.attachAutosaver(sess, projectRef{id: p.ID, name: p.Name})

	logger(c).Info("project opened", "project_id", p.ID, "session_id", sess.ID(), "words", len(snap.Words))
	c.JSON(http.StatusOK, gin.H{
		"id":         sess.ID(),
		"project_id": p.ID,
		"name":       p.Name,
		"words":      snap.Words,
		"speakers":   snap.Speakers,
		"sentiment":  snap.Sentiment,
	})
}

func (s *Server) deleteProject(c *gin.Context) {
	if err := s.store.Delete(c.Request.Context(), c.Param("pid")); err != nil {
		abort(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
