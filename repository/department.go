package repository

import (
	"errors"
	"fmt"

	"github.com/finsys-id/finance-api/repository/models"
	"gorm.io/gorm"
)

// CreateDepartment stores a new department
func (r *Repository) CreateDepartment(name string, managerID *uint) (*models.Department, *RepositoryError) {
	dept := models.Department{Name: name, ManagerID: managerID}
	if err := r.db.Create(&dept).Error; err != nil {
		return nil, dbError(err)
	}
	return &dept, nil
}

// GetDepartment loads one department with its users
func (r *Repository) GetDepartment(name string) (*models.Department, *RepositoryError) {
	var dept models.Department
	err := r.db.Preload("Users").Where("name = ?", name).First(&dept).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ruleError(ErrEntityNotFound, "Department does not exist",
				fmt.Sprintf("department %s does not exist", name))
		}
		return nil, dbError(err)
	}
	return &dept, nil
}

// ListDepartments returns all departments
func (r *Repository) ListDepartments() ([]models.Department, *RepositoryError) {
	var depts []models.Department
	if err := r.db.Order("name ASC").Find(&depts).Error; err != nil {
		return nil, dbError(err)
	}
	return depts, nil
}

// SetDepartmentManager assigns or clears the department's manager
func (r *Repository) SetDepartmentManager(name string, managerID *uint) (*models.Department, *RepositoryError) {
	dept, repoErr := r.GetDepartment(name)
	if repoErr != nil {
		return nil, repoErr
	}
	dept.ManagerID = managerID
	if err := r.db.Save(dept).Error; err != nil {
		return nil, dbError(err)
	}
	return dept, nil
}

// DeleteDepartment removes a department
func (r *Repository) DeleteDepartment(name string) *RepositoryError {
	result := r.db.Where("name = ?", name).Delete(&models.Department{})
	if result.Error != nil {
		return dbError(result.Error)
	}
	if result.RowsAffected == 0 {
		return ruleError(ErrEntityNotFound, "Department does not exist",
			fmt.Sprintf("department %s does not exist", name))
	}
	return nil
}
