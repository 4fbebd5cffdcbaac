package models

// User 代表系统中的用户。
// 邮箱是登录标识，唯一且按小写比较；用户名是展示名。
type User struct {
	BaseModel
	Email        string `gorm:"type:varchar(100);uniqueIndex;not null" json:"email"`
	Username     string `gorm:"type:varchar(100);not null" json:"username"`
	PasswordHash string `gorm:"type:varchar(255);not null" json:"-"` // 不暴露密码哈希
	AvatarURL    string `gorm:"type:varchar(255)" json:"avatarUrl,omitempty"`
	Bio          string `gorm:"type:text" json:"bio,omitempty"`
}

// UserBasicInfo holds minimal public information about a user.
// Used for friend lists and for requester info on pending requests.
type UserBasicInfo struct {
	ID        uint   `json:"id"`
	Email     string `json:"email"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// TableName 指定 User 模型的表名。
func (User) TableName() string {
	return "users"
}
