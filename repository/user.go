package repository

import (
	"errors"
	"fmt"
	"time"

	"github.com/finsys-id/finance-api/repository/models"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// CreateUser stores a new user with a bcrypt-hashed password
func (r *Repository) CreateUser(name, password, role string, departmentName *string) (*models.User, *RepositoryError) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, &RepositoryError{
			Code:    ErrDatabase,
			Message: "Failed to hash password",
			Detail:  err.Error(),
		}
	}

	user := models.User{
		Name:           name,
		HashedPassword: string(hashed),
		Role:           role,
		Active:         true,
		DepartmentName: departmentName,
	}
	if err := r.db.Create(&user).Error; err != nil {
		return nil, dbError(err)
	}
	return &user, nil
}

// GetUser loads one user by ID
func (r *Repository) GetUser(id uint) (*models.User, *RepositoryError) {
	var user models.User
	err := r.db.Where("user_id = ?", id).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ruleError(ErrEntityNotFound, "User does not exist",
				fmt.Sprintf("user %d does not exist", id))
		}
		return nil, dbError(err)
	}
	return &user, nil
}

// ListUsers returns all users
func (r *Repository) ListUsers() ([]models.User, *RepositoryError) {
	var users []models.User
	if err := r.db.Order("user_id ASC").Find(&users).Error; err != nil {
		return nil, dbError(err)
	}
	return users, nil
}

// UpdateUser applies non-nil field updates
func (r *Repository) UpdateUser(id uint, name, role *string, active *bool, departmentName *string) (*models.User, *RepositoryError) {
	user, repoErr := r.GetUser(id)
	if repoErr != nil {
		return nil, repoErr
	}

	if name != nil {
		user.Name = *name
	}
	if role != nil {
		user.Role = *role
	}
	if active != nil {
		user.Active = *active
	}
	if departmentName != nil {
		user.DepartmentName = departmentName
	}

	if err := r.db.Save(user).Error; err != nil {
		return nil, dbError(err)
	}
	return user, nil
}

// DeleteUser removes a user
func (r *Repository) DeleteUser(id uint) *RepositoryError {
	result := r.db.Delete(&models.User{}, id)
	if result.Error != nil {
		return dbError(result.Error)
	}
	if result.RowsAffected == 0 {
		return ruleError(ErrEntityNotFound, "User does not exist",
			fmt.Sprintf("user %d does not exist", id))
	}
	return nil
}

// Authenticate verifies the name/password pair and records the login time.
// Returns nil without error on bad credentials so the handler can answer
// uniformly.
func (r *Repository) Authenticate(name, password string) (*models.User, *RepositoryError) {
	var user models.User
	err := r.db.Where("name = ?", name).First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, dbError(err)
	}
	if !user.Active {
		return nil, nil
	}
	if bcrypt.CompareHashAndPassword([]byte(user.HashedPassword), []byte(password)) != nil {
		return nil, nil
	}

	now := time.Now().UTC()
	user.LastLogin = &now
	if err := r.db.Save(&user).Error; err != nil {
		return nil, dbError(err)
	}
	return &user, nil
}

// IsAdmin reports whether the user holds the admin role. Unknown users are
// not admins.
func (r *Repository) IsAdmin(userID uint) bool {
	var user models.User
	if err := r.db.Where("user_id = ?", userID).First(&user).Error; err != nil {
		return false
	}
	return user.IsAdmin()
}

// IsDepartmentManager reports whether the user manages the named department
func (r *Repository) IsDepartmentManager(deptName string, userID uint) bool {
	var dept models.Department
	if err := r.db.Where("name = ?", deptName).First(&dept).Error; err != nil {
		return false
	}
	return dept.ManagerID != nil && *dept.ManagerID == userID
}
