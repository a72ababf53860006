// Package validation holds the credential and profile format rules shared by
// the service layer and the HTTP request validator.
package validation

import (
	"regexp"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

const (
	PasswordMinLength = 8
	PasswordMaxLength = 32
	UsernameMinLength = 3
	UsernameMaxLength = 32
)

const (
	GenderMale   = "Male"
	GenderFemale = "Female"
)

// Human-readable rejection messages.
const (
	MsgPassword      = "Password should be between 8-32 characters, at least 1 uppercase, 1 lowercase letter, 1 digit and 1 special character."
	MsgGender        = "Gender must be 'Male' or 'Female'"
	MsgBirthday      = "Incorrect birthday format, format should be DD/MM/YYYY"
	MsgUsername      = "Username should be between 3-32 characters long"
	MsgUsernameTaken = "Username exists, please choose another username"
	MsgLoginEmail    = "Invalid email format"
	MsgLoginPassword = "Password must be at least 8 characters long"
)

var (
	upperCase   = regexp.MustCompile(`[A-Z]`)
	lowerCase   = regexp.MustCompile(`[a-z]`)
	digit       = regexp.MustCompile(`[0-9]`)
	specialChar = regexp.MustCompile(`[^a-zA-Z0-9]`)

	// Day and month ranges only; 31/02 passes.
	birthdayPattern = regexp.MustCompile(`^(0[1-9]|[12][0-9]|3[01])/(0[1-9]|1[0-2])/\d{4}$`)
	emailPattern    = regexp.MustCompile(`^[A-Za-z0-9+_.-]+@(.+)$`)
)

// IsPasswordValid checks the length bound and the four character classes.
func IsPasswordValid(password string) bool {
	n := utf8.RuneCountInString(password)
	if n < PasswordMinLength || n > PasswordMaxLength {
		return false
	}
	return upperCase.MatchString(password) &&
		lowerCase.MatchString(password) &&
		digit.MatchString(password) &&
		specialChar.MatchString(password)
}

// IsUsernameValid only checks the length.
func IsUsernameValid(username string) bool {
	n := utf8.RuneCountInString(username)
	return n >= UsernameMinLength && n <= UsernameMaxLength
}

func IsBirthdayValid(birthday string) bool {
	return birthdayPattern.MatchString(birthday)
}

func IsGenderValid(gender string) bool {
	return gender == GenderMale || gender == GenderFemale
}

// IsEmailValid is the loose shape check applied before a login attempt.
func IsEmailValid(email string) bool {
	return emailPattern.MatchString(email)
}

var messages = map[string]string{
	"password":   MsgPassword,
	"username":   MsgUsername,
	"birthday":   MsgBirthday,
	"gender":     MsgGender,
	"loginemail": MsgLoginEmail,
}

// New returns a validator with the custom tags registered.
func New() *validator.Validate {
	v := validator.New()
	register := func(tag string, fn func(string) bool) {
		// RegisterValidation only fails on an empty tag or nil func.
		_ = v.RegisterValidation(tag, func(fl validator.FieldLevel) bool {
			return fn(fl.Field().String())
		})
	}
	register("password", IsPasswordValid)
	register("username", IsUsernameValid)
	register("birthday", IsBirthdayValid)
	register("gender", IsGenderValid)
	register("loginemail", IsEmailValid)
	return v
}

// Message returns the rejection message for a failed tag on field.
func Message(field, tag string) string {
	if msg, ok := messages[tag]; ok {
		return msg
	}
	switch tag {
	case "required":
		return field + " is required"
	case "email":
		return MsgLoginEmail
	case "min":
		if field == "Password" {
			return MsgLoginPassword
		}
	}
	return "Field '" + field + "' failed on the '" + tag + "' tag"
}
