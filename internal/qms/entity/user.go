package entity

import "time"

// User is the minimal profile-directory row backing enrichment and
// assignee pickers. Accounts are provisioned by the identity provider.
type User struct {
	ID        string    `json:"id" gorm:"primaryKey;size:32"`
	CompanyID string    `json:"company_id" gorm:"size:32;index;not null"`
	Name      string    `json:"name" gorm:"size:128;not null"`
	Email     string    `json:"email" gorm:"size:128"`
	Status    string    `json:"status" gorm:"size:20;default:active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (User) TableName() string {
	return "qms_users"
}
