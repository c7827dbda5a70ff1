package domain

// User is an account that owns a collection of tasks.
type User struct {
	ID    int64   `db:"id,pk,auto" json:"id"`
	Name  string  `db:"name,size=50,notnull" json:"name" validate:"required,max=50"`
	Email string  `db:"email,size=100,unique,notnull" json:"email" validate:"required,email,max=100"`
	Age   int     `db:"age" json:"age" validate:"gte=0,lte=150"`
	Tasks []*Task `rel:"hasmany,fk=user_id" json:"tasks,omitempty" validate:"-"`
}

func (User) TableName() string { return "users" }

// UserTaskCount is an aggregate row: a user together with the number
// of tasks they own.
type UserTaskCount struct {
	UserID    int64  `json:"user_id"`
	Name      string `json:"name"`
	TaskCount int64  `json:"task_count"`
}
