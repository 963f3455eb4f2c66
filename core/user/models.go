package user

import (
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/trezcool/planner/core"
)

// Role is the closed set of roles a user may hold.
type Role string

const (
	RoleTeacher          Role = "teacher"
	RolePedagogicalAdmin Role = "pedagogical_admin"
	RoleGeneralAdmin     Role = "general_admin"
)

var (
	AllRoles = []Role{RoleTeacher, RolePedagogicalAdmin, RoleGeneralAdmin}

	rolePriorities = map[Role]int{
		RoleGeneralAdmin:     30,
		RolePedagogicalAdmin: 20,
		RoleTeacher:          10,
	}

	Roles = []RoleInfo{
		{Name: "Teacher", Value: RoleTeacher},
		{Name: "Pedagogical Admin", Value: RolePedagogicalAdmin},
		{Name: "General Admin", Value: RoleGeneralAdmin},
	}
)

type RoleInfo struct {
	Name  string `json:"name"`
	Value Role   `json:"value"`
}

// ParseRole maps a raw role string to a Role.
func ParseRole(s string) (Role, bool) {
	r := Role(core.CleanString(s, true /* lower */))
	return r, r.Valid()
}

func (r Role) Valid() bool {
	_, ok := rolePriorities[r]
	return ok
}

func (r Role) Priority() int {
	return rolePriorities[r]
}

// CanModerate reports whether the role may approve or reject plans and delete others' comments.
func (r Role) CanModerate() bool {
	return r == RolePedagogicalAdmin || r == RoleGeneralAdmin
}

// CanDeletePlan reports whether the role may delete (reset) a plan.
func (r Role) CanDeletePlan() bool {
	return r == RoleGeneralAdmin
}

type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	IsActive     bool      `json:"is_active"`
	Role         Role      `json:"role"`
	ClassIDs     []int64   `json:"class_ids"`
	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"created_at"` // UTC
	UpdatedAt    time.Time `json:"updated_at"` // UTC
	LastLogin    time.Time `json:"last_login"` // UTC
}

func (u *User) SetPassword(pwd string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(pwd), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = hash
	return nil
}

func (u *User) CheckPassword(pwd string) error {
	return bcrypt.CompareHashAndPassword(u.PasswordHash, []byte(pwd))
}

// IsMemberOf reports whether the user is associated with the class.
func (u User) IsMemberOf(classID int64) bool {
	for _, id := range u.ClassIDs {
		if id == classID {
			return true
		}
	}
	return false
}

// CanAccessClass reports whether the user may open, create and comment on the class's plans.
func (u User) CanAccessClass(classID int64) bool {
	return u.Role.CanModerate() || u.IsMemberOf(classID)
}

// NewUser contains information needed to create a new User.
type NewUser struct {
	Name            string  `json:"name" validate:"required"`
	Username        string  `json:"username" validate:"omitempty,min=4,alphanum_"`
	Email           string  `json:"email" validate:"omitempty,email"`
	Password        string  `json:"password" validate:"required"`
	PasswordConfirm string  `json:"password_confirm" validate:"required,eqfield=Password"`
	Role            Role    `json:"role" validate:"required,role"`
	ClassIDs        []int64 `json:"class_ids" validate:"omitempty,dive,gt=0"`
}

func (nu *NewUser) Clean() {
	nu.Name = core.CleanString(nu.Name)
	nu.Username = core.CleanString(nu.Username, true /* lower */)
	nu.Email = core.CleanString(nu.Email, true /* lower */)
	nu.Role = Role(core.CleanString(string(nu.Role), true /* lower */))
}

// GetFilter selects a single user; the first non-empty field wins.
type GetFilter struct {
	ID              string
	UsernameOrEmail string
}

// QueryFilter applies AND operation on the set fields.
type QueryFilter struct {
	Roles      []Role
	ClassID    int64
	ActiveOnly bool
}
