package validation

import (
	"errors"
	"testing"

	qt "github.com/frankban/quicktest"
)

type sample struct {
	Name  string `validate:"required,min=3"`
	Email string `validate:"omitempty,uchat_email"`
}

func TestStruct(t *testing.T) {
	c := qt.New(t)

	c.Assert(Struct(sample{Name: "alice", Email: "a@b.io"}), qt.IsNil)

	err := Struct(sample{Name: "al", Email: "nope"})
	var errs Errors
	c.Assert(errors.As(err, &errs), qt.IsTrue)
	c.Assert(errs, qt.HasLen, 2)
	c.Assert(errs[0], qt.Equals, FieldError{Field: "sample.Name", Tag: "min", Param: "3"})
	c.Assert(errs[1].Tag, qt.Equals, "uchat_email")
	c.Assert(err, qt.ErrorMatches, "sample.Name failed min=3; sample.Email failed uchat_email")
}

func TestVar(t *testing.T) {
	c := qt.New(t)

	c.Assert(Var("headline", "hello", "max=30"), qt.IsNil)

	err := Var("headline", "", "required,max=30")
	var fe FieldError
	c.Assert(errors.As(err, &fe), qt.IsTrue)
	c.Assert(fe, qt.Equals, FieldError{Field: "headline", Tag: "required"})
}

func TestEmailRule(t *testing.T) {
	c := qt.New(t)
	for _, ok := range []string{"a@b.co", "first.last@example.org"} {
		c.Assert(Var("email", ok, "uchat_email"), qt.IsNil, qt.Commentf("%q", ok))
	}
	for _, bad := range []string{"ab.co", "a @b.co", "a@b", "a@b."} {
		c.Assert(Var("email", bad, "uchat_email"), qt.IsNotNil, qt.Commentf("%q", bad))
	}
}
