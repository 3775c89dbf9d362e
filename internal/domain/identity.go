package domain

// Identity is the verified caller supplied by the auth collaborator
type Identity struct {
	UserID uint64 `json:"userId"`
	Email  string `json:"email"`
	Role   string `json:"role"`
}

// Profile is the display data denormalized onto participants and messages
type Profile struct {
	UserID uint64 `gorm:"column:user_id;primaryKey" json:"userId"`
	Name   string `gorm:"column:name" json:"name"`
	Role   string `gorm:"column:role" json:"role"`
	Avatar string `gorm:"column:avatar" json:"avatar,omitempty"`
}

// TableName is the read-only profile view owned by the accounts service
func (Profile) TableName() string {
	return "user_profiles"
}
