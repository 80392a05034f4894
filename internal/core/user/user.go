package user

import "strings"

type UserType string

const (
	TypeAdmin   UserType = "admin"
	TypeTeacher UserType = "teacher"
	TypeStudent UserType = "student"
	TypeStaff   UserType = "staff"
	TypeParent  UserType = "parent"
)

var Types = []UserType{TypeAdmin, TypeTeacher, TypeStudent, TypeStaff, TypeParent}

func (t UserType) IsValid() bool {
	for _, known := range Types {
		if t == known {
			return true
		}
	}
	return false
}

// HasProfile reports whether users of this type get a type-specific profile row.
func (t UserType) HasProfile() bool {
	return t == TypeTeacher || t == TypeStudent
}

func (t UserType) String() string {
	return string(t)
}

func ParseUserType(s string) (UserType, bool) {
	t := UserType(strings.ToLower(strings.TrimSpace(s)))
	return t, t.IsValid()
}

func TypeNames() []string {
	names := make([]string, len(Types))
	for i, t := range Types {
		names[i] = string(t)
	}
	return names
}
