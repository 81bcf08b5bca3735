package srvreg

import (
	"encoding/json"
	"net/http"
)

type departmentRequest struct {
	Name      string `json:"name"`
	ManagerID *uint  `json:"manager_id"`
}

func (sr *ServiceRegistry) CreateDepartmentHandler(req *Request) (*Response, error) {
	if resp, err := sr.requireAdmin(req); resp != nil || err != nil {
		return resp, err
	}

	var body departmentRequest
	if err := json.Unmarshal([]byte(req.Body), &body); err != nil {
		return badRequest("invalid request body")
	}
	if body.Name == "" {
		return badRequest("name is required")
	}

	dept, repoErr := sr.repository.CreateDepartment(body.Name, body.ManagerID)
	if repoErr != nil {
		return sr.errorResponse(req, repoErr)
	}
	return jsonResponse(http.StatusCreated, dept)
}

func (sr *ServiceRegistry) ListDepartmentsHandler(req *Request) (*Response, error) {
	depts, repoErr := sr.repository.ListDepartments()
	if repoErr != nil {
		return sr.errorResponse(req, repoErr)
	}
	return jsonResponse(http.StatusOK, depts)
}

func (sr *ServiceRegistry) GetDepartmentHandler(req *Request) (*Response, error) {
	dept, repoErr := sr.repository.GetDepartment(req.params()["name"])
	if repoErr != nil {
		return sr.errorResponse(req, repoErr)
	}
	return jsonResponse(http.StatusOK, dept)
}

func (sr *ServiceRegistry) SetDepartmentManagerHandler(req *Request) (*Response, error) {
	if resp, err := sr.requireAdmin(req); resp != nil || err != nil {
		return resp, err
	}

	var body struct {
		ManagerID *uint `json:"manager_id"`
	}
	if err := json.Unmarshal([]byte(req.Body), &body); err != nil {
		return badRequest("invalid request body")
	}

	dept, repoErr := sr.repository.SetDepartmentManager(req.params()["name"], body.ManagerID)
	if repoErr != nil {
		return sr.errorResponse(req, repoErr)
	}
	return jsonResponse(http.StatusOK, dept)
}

func (sr *ServiceRegistry) DeleteDepartmentHandler(req *Request) (*Response, error) {
	if resp, err := sr.requireAdmin(req); resp != nil || err != nil {
		return resp, err
	}

	if repoErr := sr.repository.DeleteDepartment(req.params()["name"]); repoErr != nil {
		return sr.errorResponse(req, repoErr)
	}
	return jsonResponse(http.StatusOK, map[string]string{"status": "deleted"})
}
