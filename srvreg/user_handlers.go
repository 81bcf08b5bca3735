package srvreg

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/finsys-id/finance-api/repository"
	"github.com/finsys-id/finance-api/repository/models"
)

// userView is the wire shape of a user, without the credential hash
type userView struct {
	ID             uint       `json:"id"`
	Name           string     `json:"name"`
	Role           string     `json:"role"`
	Active         bool       `json:"active"`
	LastLogin      *time.Time `json:"last_login,omitempty"`
	DepartmentName *string    `json:"department_name,omitempty"`
}

func viewUser(u *models.User) userView {
	return userView{
		ID:             u.ID,
		Name:           u.Name,
		Role:           u.Role,
		Active:         u.Active,
		LastLogin:      u.LastLogin,
		DepartmentName: u.DepartmentName,
	}
}

// requireAdmin rejects the request unless the acting user is an administrator
func (sr *ServiceRegistry) requireAdmin(req *Request) (*Response, error) {
	if sr.repository.IsAdmin(req.UserID) {
		return nil, nil
	}
	return jsonResponse(http.StatusForbidden, errorBody{
		Error:   repository.ErrMissingRole,
		Message: "administrator role required",
	})
}

type createUserRequest struct {
	Name           string  `json:"name"`
	Password       string  `json:"password"`
	Role           string  `json:"role"`
	DepartmentName *string `json:"department_name"`
}

func (sr *ServiceRegistry) CreateUserHandler(req *Request) (*Response, error) {
	if resp, err := sr.requireAdmin(req); resp != nil || err != nil {
		return resp, err
	}

	var body createUserRequest
	if err := json.Unmarshal([]byte(req.Body), &body); err != nil {
		return badRequest("invalid request body")
	}
	if body.Name == "" || body.Password == "" {
		return badRequest("name and password are required")
	}
	if body.Role == "" {
		body.Role = models.RoleUser
	}
	if body.Role != models.RoleAdmin && body.Role != models.RoleUser {
		return badRequest("role must be ADMIN or USER")
	}

	user, repoErr := sr.repository.CreateUser(body.Name, body.Password, body.Role, body.DepartmentName)
	if repoErr != nil {
		return sr.errorResponse(req, repoErr)
	}
	return jsonResponse(http.StatusCreated, viewUser(user))
}

func (sr *ServiceRegistry) ListUsersHandler(req *Request) (*Response, error) {
	users, repoErr := sr.repository.ListUsers()
	if repoErr != nil {
		return sr.errorResponse(req, repoErr)
	}
	views := make([]userView, 0, len(users))
	for i := range users {
		views = append(views, viewUser(&users[i]))
	}
	return jsonResponse(http.StatusOK, views)
}

func (sr *ServiceRegistry) GetUserHandler(req *Request) (*Response, error) {
	id, ok := req.uintParam("id")
	if !ok {
		return badRequest("invalid user id")
	}
	user, repoErr := sr.repository.GetUser(id)
	if repoErr != nil {
		return sr.errorResponse(req, repoErr)
	}
	return jsonResponse(http.StatusOK, viewUser(user))
}

type updateUserRequest struct {
	Name           *string `json:"name"`
	Role           *string `json:"role"`
	Active         *bool   `json:"active"`
	DepartmentName *string `json:"department_name"`
}

func (sr *ServiceRegistry) UpdateUserHandler(req *Request) (*Response, error) {
	id, ok := req.uintParam("id")
	if !ok {
		return badRequest("invalid user id")
	}
	var body updateUserRequest
	if err := json.Unmarshal([]byte(req.Body), &body); err != nil {
		return badRequest("invalid request body")
	}
	if body.Role != nil && *body.Role != models.RoleAdmin && *body.Role != models.RoleUser {
		return badRequest("role must be ADMIN or USER")
	}

	// Admins may update anyone; a department manager may update members of
	// their own department, but never grant roles.
	if !sr.repository.IsAdmin(req.UserID) {
		target, repoErr := sr.repository.GetUser(id)
		if repoErr != nil {
			return sr.errorResponse(req, repoErr)
		}
		managed := target.DepartmentName != nil &&
			sr.repository.IsDepartmentManager(*target.DepartmentName, req.UserID)
		if !managed || body.Role != nil {
			return jsonResponse(http.StatusForbidden, errorBody{
				Error:   repository.ErrMissingRole,
				Message: "administrator or department manager role required",
			})
		}
	}

	user, repoErr := sr.repository.UpdateUser(id, body.Name, body.Role, body.Active, body.DepartmentName)
	if repoErr != nil {
		return sr.errorResponse(req, repoErr)
	}
	return jsonResponse(http.StatusOK, viewUser(user))
}

func (sr *ServiceRegistry) DeleteUserHandler(req *Request) (*Response, error) {
	if resp, err := sr.requireAdmin(req); resp != nil || err != nil {
		return resp, err
	}

	id, ok := req.uintParam("id")
	if !ok {
		return badRequest("invalid user id")
	}
	if repoErr := sr.repository.DeleteUser(id); repoErr != nil {
		return sr.errorResponse(req, repoErr)
	}
	return jsonResponse(http.StatusOK, map[string]string{"status": "deleted"})
}
