package domain

// Task is a unit of work assigned to a user.
type Task struct {
	ID          int64  `db:"id,pk,auto" json:"id"`
	Title       string `db:"title,size=200,notnull" json:"title" validate:"required,max=200"`
	Description string `db:"description,size=1000" json:"description,omitempty" validate:"max=1000"`
	Completed   bool   `db:"completed,default=false" json:"completed"`
	UserID      int64  `db:"user_id,references=users.id" json:"user_id" validate:"required"`
	User        *User  `rel:"belongsto,fk=user_id" json:"-" validate:"-"`
}

func (Task) TableName() string { return "tasks" }
