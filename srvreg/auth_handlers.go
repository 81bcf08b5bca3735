package srvreg

import (
	"encoding/json"
	"net/http"
)

type loginRequest struct {
	Name     string `json:"name"`
	Password string `json:"password"`
}

type tokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// LoginHandler exchanges credentials for a token pair
func (sr *ServiceRegistry) LoginHandler(req *Request) (*Response, error) {
	var body loginRequest
	if err := json.Unmarshal([]byte(req.Body), &body); err != nil {
		return badRequest("invalid request body")
	}
	if body.Name == "" || body.Password == "" {
		return badRequest("name and password are required")
	}

	user, repoErr := sr.repository.Authenticate(body.Name, body.Password)
	if repoErr != nil {
		return sr.errorResponse(req, repoErr)
	}
	if user == nil {
		sr.logger.Infow("login rejected", "request_id", req.RequestID, "name", body.Name)
		return jsonResponse(http.StatusUnauthorized, errorBody{
			Error:   "INVALID_CREDENTIALS",
			Message: "invalid name or password",
		})
	}

	access, err := sr.tokens.IssueAccessToken(user.ID)
	if err != nil {
		return sr.errorResponse(req, err)
	}
	refresh, err := sr.tokens.IssueRefreshToken(user.ID)
	if err != nil {
		return sr.errorResponse(req, err)
	}

	sr.logger.Infow("login succeeded", "request_id", req.RequestID, "user_id", user.ID)
	return jsonResponse(http.StatusOK, tokenPair{AccessToken: access, RefreshToken: refresh})
}

// RefreshHandler exchanges a refresh token for a fresh token pair
func (sr *ServiceRegistry) RefreshHandler(req *Request) (*Response, error) {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := json.Unmarshal([]byte(req.Body), &body); err != nil || body.RefreshToken == "" {
		return badRequest("refresh_token is required")
	}

	userID, err := sr.tokens.VerifyRefreshToken(body.RefreshToken)
	if err != nil {
		return jsonResponse(http.StatusUnauthorized, errorBody{
			Error:   "INVALID_TOKEN",
			Message: "refresh token is invalid or expired",
		})
	}

	// The account may have been deactivated since the token was issued
	user, repoErr := sr.repository.GetUser(userID)
	if repoErr != nil || !user.Active {
		return jsonResponse(http.StatusUnauthorized, errorBody{
			Error:   "INVALID_TOKEN",
			Message: "account is no longer active",
		})
	}

	access, err := sr.tokens.IssueAccessToken(userID)
	if err != nil {
		return sr.errorResponse(req, err)
	}
	refresh, err := sr.tokens.IssueRefreshToken(userID)
	if err != nil {
		return sr.errorResponse(req, err)
	}
	return jsonResponse(http.StatusOK, tokenPair{AccessToken: access, RefreshToken: refresh})
}
