package auth

import "smartattend/internal/model"

// Institution is stamped on every account.
const Institution = "Tech University"

// Directory is the compiled-in user list standing in for a user database.
type Directory struct {
	users []model.User
}

// NewDirectory builds a directory from users. With no users it uses the
// demo accounts.
func NewDirectory(users ...model.User) *Directory {
	if len(users) == 0 {
		users = DemoUsers()
	}
	return &Directory{users: users}
}

// DemoUsers returns the seeded student and teacher accounts.
func DemoUsers() []model.User {
	return []model.User{
		{
			ID:              "1",
			Email:           "student@kiit.edu",
			FirstName:       "Kshitij",
			LastName:        "Jaiswal",
			Role:            model.RoleStudent,
			AdmissionNumber: "CS2021001",
			Department:      "Computer Science",
			Institution:     Institution,
			CreatedAt:       "2021-08-15T00:00:00Z",
			Avatar:          "https://images.unsplash.com/photo-1494790108755-2616b612b277?w=150&h=150&fit=crop&crop=face",
			Student: &model.Student{
				Batch:                "2021",
				Section:              "A",
				AttendancePercentage: 92,
			},
		},
		{
			ID:          "2",
			Email:       "teacher@kiit.edu",
			FirstName:   "Dr. Ajit",
			LastName:    "Pasayat",
			Role:        model.RoleTeacher,
			EmployeeID:  "EMP001",
			Department:  "Computer Science",
			Institution: Institution,
			CreatedAt:   "2020-01-15T00:00:00Z",
			Avatar:      "https://images.unsplash.com/photo-1472099645785-5658abf4ff4e?w=150&h=150&fit=crop&crop=face",
			Teacher: &model.Teacher{
				Subjects: []string{"Data Structures", "Database Systems", "Computer Networks"},
				Classes:  []string{"CS301", "CS302", "CS303"},
			},
		},
	}
}

// Find returns the user whose email and role both match exactly.
func (d *Directory) Find(email string, role model.Role) (model.User, bool) {
	for _, u := range d.users {
		if u.Email == email && u.Role == role {
			return u, true
		}
	}
	return model.User{}, false
}
