package chat

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

const (
	// MaxRoomNameLength is the longest accepted room name, in characters.
	MaxRoomNameLength = 40
	// MaxNicknameLength is the longest accepted nickname, in characters.
	MaxNicknameLength = 24
	// MaxMessageLength is the longest accepted message text, in characters.
	MaxMessageLength = 500
)

// Letters, marks, digits, underscore, dash and the plain space.
var roomNamePattern = regexp.MustCompile(`^[\p{L}\p{M}\p{N}_\- ]+$`)

var (
	roomNameTag = fmt.Sprintf("min=1,max=%d,roomname", MaxRoomNameLength)
	nicknameTag = fmt.Sprintf("min=1,max=%d,nocontrol", MaxNicknameLength)
	messageTag  = fmt.Sprintf("min=1,max=%d", MaxMessageLength)
)

var validate = newValidate()

func newValidate() *validator.Validate {
	v := validator.New()
	if err := v.RegisterValidation("roomname", isRoomName); err != nil {
		panic(err)
	}
	if err := v.RegisterValidation("nocontrol", hasNoControl); err != nil {
		panic(err)
	}
	return v
}

func isRoomName(fl validator.FieldLevel) bool {
	return roomNamePattern.MatchString(fl.Field().String())
}

// visible covers every assigned category outside C. Control, format,
// surrogate, private-use and unassigned runes all fall outside it.
var visible = []*unicode.RangeTable{unicode.L, unicode.M, unicode.N, unicode.P, unicode.S, unicode.Z}

func hasNoControl(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	if !utf8.ValidString(s) {
		return false
	}
	for _, r := range s {
		if !unicode.In(r, visible...) {
			return false
		}
	}
	return true
}

// ValidateRoomName trims raw and accepts it when it is 1-40 characters of
// letters, digits, spaces, dashes or underscores.
func ValidateRoomName(raw any) (string, error) {
	return check(raw, roomNameTag, ErrInvalidRoomName)
}

// ValidateNickname trims raw and accepts it when it is 1-24 characters with
// no control, format, private-use or unassigned characters.
func ValidateNickname(raw any) (string, error) {
	return check(raw, nicknameTag, ErrInvalidNickname)
}

// ValidateMessageText trims raw and accepts it when it is 1-500 characters.
func ValidateMessageText(raw any) (string, error) {
	return check(raw, messageTag, ErrInvalidMessage)
}

// check rejects anything that is not a string before trimming and applying
// the validator tag. Lengths are counted in runes.
func check(raw any, tag string, rejected error) (string, error) {
	s, ok := raw.(string)
	if !ok {
		return "", rejected
	}
	s = strings.TrimSpace(s)
	if err := validate.Var(s, tag); err != nil {
		return "", rejected
	}
	return s, nil
}
