package server

import (
	"meshi/internal/service"

	"github.com/gofiber/fiber/v2"
)

// Signup handles POST /api/auth/signup
// @Summary User signup
// @Description Register a new email/password account
// @Tags auth
// @Accept json
// @Produce json
// @Param request body object{email=string,password=string,display_name=string} true "Signup request"
// @Success 201 {object} service.AuthResult
// @Failure 400 {object} object{error=string}
// @Failure 409 {object} object{error=string}
// @Router /auth/signup [post]
func (s *Server) Signup(c *fiber.Ctx) error {
	var req struct {
		Email       string `json:"email"`
		Password    string `json:"password"`
		DisplayName string `json:"display_name"`
	}
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	res, err := s.authService.SignUp(c.UserContext(), service.SignUpInput{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		return respondServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(res)
}

// Login handles POST /api/auth/login
// @Summary User login
// @Description Authenticate with email and password and return a JWT
// @Tags auth
// @Accept json
// @Produce json
// @Param request body object{email=string,password=string} true "Login credentials"
// @Success 200 {object} service.AuthResult
// @Failure 400 {object} object{error=string}
// @Failure 401 {object} object{error=string}
// @Router /auth/login [post]
func (s *Server) Login(c *fiber.Ctx) error {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	res, err := s.authService.SignIn(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(res)
}

// GuestLogin handles POST /api/auth/guest
// @Summary Guest login
// @Description Sign in with the shared demo account
// @Tags auth
// @Produce json
// @Success 200 {object} service.AuthResult
// @Failure 401 {object} object{error=string}
// @Failure 403 {object} object{error=string}
// @Router /auth/guest [post]
func (s *Server) GuestLogin(c *fiber.Ctx) error {
	res, err := s.authService.SignInGuest(c.UserContext())
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(res)
}

// Logout handles POST /api/auth/logout
// @Summary Logout
// @Description Revoke the presented token
// @Tags auth
// @Security BearerAuth
// @Success 204
// @Router /auth/logout [post]
func (s *Server) Logout(c *fiber.Ctx) error {
	claims, _ := c.Locals("claims").(*service.TokenClaims)
	if err := s.authService.Logout(c.UserContext(), claims); err != nil {
		return respondServiceError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// StartGoogleLogin handles GET /api/auth/federated/google
// @Summary Begin Google sign-in
// @Description Returns the consent URL to open in a popup and the state to echo back
// @Tags auth
// @Produce json
// @Success 200 {object} object{url=string,state=string}
// @Failure 400 {object} object{error=string}
// @Router /auth/federated/google [get]
func (s *Server) StartGoogleLogin(c *fiber.Ctx) error {
	url, state, err := s.authService.StartFederated(c.UserContext())
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"url": url, "state": state})
}

// CompleteGoogleLogin handles POST /api/auth/federated/google/callback
// @Summary Finish Google sign-in
// @Tags auth
// @Accept json
// @Produce json
// @Param request body object{code=string,state=string} true "Callback parameters"
// @Success 200 {object} service.AuthResult
// @Failure 401 {object} object{error=string}
// @Router /auth/federated/google/callback [post]
func (s *Server) CompleteGoogleLogin(c *fiber.Ctx) error {
	var req struct {
		Code  string `json:"code"`
		State string `json:"state"`
	}
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	res, err := s.authService.CompleteFederated(c.UserContext(), req.Code, req.State)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(res)
}

// RequestPasswordReset handles POST /api/auth/password-reset
// @Summary Send a password reset email
// @Tags auth
// @Accept json
// @Param request body object{email=string} true "Account email"
// @Success 202
// @Failure 404 {object} object{error=string}
// @Router /auth/password-reset [post]
func (s *Server) RequestPasswordReset(c *fiber.Ctx) error {
	var req struct {
		Email string `json:"email"`
	}
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	if err := s.authService.RequestPasswordReset(c.UserContext(), req.Email); err != nil {
		return respondServiceError(c, err)
	}
	return c.SendStatus(fiber.StatusAccepted)
}

// ConfirmPasswordReset handles POST /api/auth/password-reset/confirm
// @Summary Set a new password with a reset token
// @Tags auth
// @Accept json
// @Param request body object{token=string,password=string} true "Reset token and new password"
// @Success 204
// @Failure 401 {object} object{error=string}
// @Router /auth/password-reset/confirm [post]
func (s *Server) ConfirmPasswordReset(c *fiber.Ctx) error {
	var req struct {
		Token    string `json:"token"`
		Password string `json:"password"`
	}
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	if err := s.authService.ConfirmPasswordReset(c.UserContext(), req.Token, req.Password); err != nil {
		return respondServiceError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// IssueWSTicket handles POST /api/ws/ticket
// @Summary Issue a live-socket ticket
// @Description Returns a single-use ticket valid for 60 seconds
// @Tags live
// @Security BearerAuth
// @Produce json
// @Success 200 {object} object{ticket=string,expires_in=int}
// @Router /ws/ticket [post]
func (s *Server) IssueWSTicket(c *fiber.Ctx) error {
	userID := c.Locals("userID").(uint)

	ticket, err := s.tokens.IssueWSTicket(c.UserContext(), userID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"ticket": ticket, "expires_in": 60})
}

