package models

import "time"

// User is the player profile stored in the "user" collection.
// The document key is the identity provider's uid.
type User struct {
	ID            string    `json:"id,omitempty" firestore:"-" gorm:"primaryKey;type:varchar(128)"`
	UserName      string    `json:"userName" firestore:"userName" gorm:"type:varchar(64)" validate:"required,username"`
	UserNameLower string    `json:"-" firestore:"userNameLower" gorm:"index;type:varchar(64)"`
	Name          string    `json:"name" firestore:"name" gorm:"type:varchar(255)"`
	Birthday      string    `json:"birthday" firestore:"birthday" gorm:"type:varchar(10)" validate:"required,birthday"`
	Gender        string    `json:"gender" firestore:"gender" gorm:"type:varchar(6)" validate:"required,gender"`
	CreatedAt     time.Time `json:"-" firestore:"-"`
	UpdatedAt     time.Time `json:"-" firestore:"-"`
}

// TableName keeps GORM away from the reserved word "user".
func (User) TableName() string {
	return "user_profiles"
}

// Register is the sign-up request.
type Register struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,password"`
}

// Login is the credential exchange request.
type Login struct {
	Email    string `json:"email" validate:"required,loginemail"`
	Password string `json:"password" validate:"required,min=8"`
}

// PasswordUpdate carries a replacement password.
type PasswordUpdate struct {
	Password string `json:"password" validate:"required,password"`
}

// Registration reports the outcome of account creation. The account exists
// whenever a Registration is returned; the verification email may still have failed.
// VerificationEmailSent means the mailer accepted the message. When the mailer
// is the RabbitMQ queue that is the enqueue, not the delivery.
type Registration struct {
	UID                   string `json:"uid"`
	VerificationEmailSent bool   `json:"verificationEmailSent"`
	VerificationError     string `json:"verificationError,omitempty"`
}
