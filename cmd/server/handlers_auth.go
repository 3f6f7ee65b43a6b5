package main

import (
	"net/http"

	"github.com/u4rad/campcost/internal/auth"
	"github.com/u4rad/campcost/internal/metrics"
	"github.com/u4rad/campcost/internal/wizard"
)

type credentialsRequest struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	CompanyName string `json:"company_name"`
}

type userResponse struct {
	ID          int64  `json:"id"`
	Username    string `json:"username"`
	CompanyName string `json:"company_name"`
	Role        string `json:"role"`
}

type sessionResponse struct {
	Token       string `json:"token"`
	Username    string `json:"username"`
	Role        string `json:"role"`
	CompanyName string `json:"company_name"`
	WizardID    string `json:"wizard_id"`
	Step        string `json:"step"`
}

func flowFor(role auth.Role) wizard.Flow {
	if role == auth.RoleCoordinator {
		return wizard.FlowCoordinator
	}
	return wizard.FlowCustomer
}

// handleLogin authenticates the user and opens a wizard session for them.
func (s *server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	sess, err := s.auth.Authenticate(r.Context(), auth.Credentials{Username: req.Username, Password: req.Password})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp, err := s.startWizard(sess)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.logger.Info("user logged in", "username", sess.Username, "role", sess.Role)
	writeJSON(w, http.StatusOK, resp)
}

// startWizard opens a fresh wizard session and issues a token bound to it.
func (s *server) startWizard(sess auth.Session) (sessionResponse, error) {
	sess.WizardID = s.wizards.Start(flowFor(sess.Role), sess.Username, sess.CompanyName)
	metrics.ActiveWizardSessions.Set(float64(s.wizards.Len()))

	token, err := s.tokens.Issue(sess)
	if err != nil {
		s.wizards.End(sess.WizardID)
		return sessionResponse{}, err
	}
	return sessionResponse{
		Token:       token,
		Username:    sess.Username,
		Role:        string(sess.Role),
		CompanyName: sess.CompanyName,
		WizardID:    sess.WizardID,
		Step:        wizard.StepCampDetails.String(),
	}, nil
}

func (s *server) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	s.wizards.End(sess.WizardID)
	metrics.ActiveWizardSessions.Set(float64(s.wizards.Len()))
	w.WriteHeader(http.StatusNoContent)
}

// handleSignup registers a customer account.
func (s *server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	u, err := s.auth.Register(r.Context(), req.Username, req.Password, req.CompanyName)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, userResponse{
		ID:          u.ID,
		Username:    u.Username,
		CompanyName: u.CompanyName,
		Role:        u.Role,
	})
}
